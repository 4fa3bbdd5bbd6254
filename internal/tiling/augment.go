package tiling

import "fmt"

// Augmentation is one element of the dihedral group of the square, used for
// test-time augmentation.
type Augmentation int

const (
	Identity Augmentation = iota
	FlipHorizontal
	FlipVertical
	Rotate90
	Rotate180
	Rotate270
	FlipHorizontalRotate90
	FlipVerticalRotate90
)

// transform maps a buffer to a new, possibly transposed, buffer.
type transform func(*Buffer) *Buffer

// augmentations pairs every Augmentation with the transforms applying it and
// the transforms undoing it. Both lists run left to right.
var augmentations = [TTASize]struct {
	name    string
	apply   []transform
	reverse []transform
}{
	Identity:               {"identity", nil, nil},
	FlipHorizontal:         {"flip-horizontal", []transform{flipH}, []transform{flipH}},
	FlipVertical:           {"flip-vertical", []transform{flipV}, []transform{flipV}},
	Rotate90:               {"rotate-90", []transform{rotate90}, []transform{rotate270}},
	Rotate180:              {"rotate-180", []transform{rotate180}, []transform{rotate180}},
	Rotate270:              {"rotate-270", []transform{rotate270}, []transform{rotate90}},
	FlipHorizontalRotate90: {"flip-horizontal-rotate-90", []transform{flipH, rotate90}, []transform{rotate270, flipH}},
	FlipVerticalRotate90:   {"flip-vertical-rotate-90", []transform{flipV, rotate90}, []transform{rotate270, flipV}},
}

// Augmentations returns all eight variants in step order.
func Augmentations() []Augmentation {
	all := make([]Augmentation, TTASize)
	for i := range all {
		all[i] = Augmentation(i)
	}
	return all
}

// Valid reports whether a names one of the eight variants.
func (a Augmentation) Valid() bool { return a >= 0 && int(a) < TTASize }

func (a Augmentation) String() string {
	if !a.Valid() {
		return fmt.Sprintf("augmentation(%d)", int(a))
	}
	return augmentations[a].name
}

// SwapsAxes reports whether the variant transposes width and height.
func (a Augmentation) SwapsAxes() bool {
	switch a {
	case Rotate90, Rotate270, FlipHorizontalRotate90, FlipVerticalRotate90:
		return true
	}
	return false
}

// Apply returns src transformed by a. src is never modified; Identity returns
// a copy.
func (a Augmentation) Apply(src *Buffer) *Buffer {
	return run(src, augmentations[a].apply)
}

// Reverse undoes Apply: a.Reverse(a.Apply(t)) equals t exactly.
func (a Augmentation) Reverse(src *Buffer) *Buffer {
	return run(src, augmentations[a].reverse)
}

func run(src *Buffer, ts []transform) *Buffer {
	if len(ts) == 0 {
		return src.Clone()
	}
	out := src
	for _, t := range ts {
		out = t(out)
	}
	return out
}

// remap builds a w x h buffer where pixel (x, y) is copied from src at
// at(x, y).
func remap(src *Buffer, w, h int, at func(x, y int) (int, int)) *Buffer {
	dst := NewBuffer(w, h, src.Channels)
	ch := src.Channels
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sx, sy := at(x, y)
			d := dst.Offset(x, y)
			s := src.Offset(sx, sy)
			copy(dst.Pix[d:d+ch], src.Pix[s:s+ch])
		}
	}
	return dst
}

func flipH(src *Buffer) *Buffer {
	w := src.Width
	return remap(src, w, src.Height, func(x, y int) (int, int) { return w - 1 - x, y })
}

func flipV(src *Buffer) *Buffer {
	h := src.Height
	return remap(src, src.Width, h, func(x, y int) (int, int) { return x, h - 1 - y })
}

// rotate90 rotates clockwise.
func rotate90(src *Buffer) *Buffer {
	h := src.Height
	return remap(src, h, src.Width, func(x, y int) (int, int) { return y, h - 1 - x })
}

func rotate180(src *Buffer) *Buffer {
	w, h := src.Width, src.Height
	return remap(src, w, h, func(x, y int) (int, int) { return w - 1 - x, h - 1 - y })
}

// rotate270 rotates counter-clockwise.
func rotate270(src *Buffer) *Buffer {
	w := src.Width
	return remap(src, src.Height, w, func(x, y int) (int, int) { return w - 1 - y, x })
}

// fitInto copies src into dst anchored at the top-left corner, cropping
// what does not fit and zeroing what src does not cover.
func fitInto(dst, src *Buffer) {
	if dst.SameShape(src) {
		copy(dst.Pix, src.Pix)
		return
	}
	dst.Zero()
	n := min(dst.Width, src.Width) * dst.Channels
	for y := 0; y < min(dst.Height, src.Height); y++ {
		copy(dst.Pix[dst.Offset(0, y):dst.Offset(0, y)+n], src.Pix[src.Offset(0, y):src.Offset(0, y)+n])
	}
}
