package tiling

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// Size is a width/height pair in pixels.
type Size struct {
	W int `json:"width"`
	H int `json:"height"`
}

// Rect is an integer pixel rectangle. X and Y may be negative and the
// rectangle may extend past the image it refers to.
type Rect struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"width"`
	H int `json:"height"`
}

// Right returns the exclusive right edge.
func (r Rect) Right() int { return r.X + r.W }

// Bottom returns the exclusive bottom edge.
func (r Rect) Bottom() int { return r.Y + r.H }

// Size returns the rectangle's width and height.
func (r Rect) Size() Size { return Size{W: r.W, H: r.H} }

// Intersect returns the overlap of r and s. The result has zero or negative
// width/height when they do not overlap.
func (r Rect) Intersect(s Rect) Rect {
	x1, y1 := max(r.X, s.X), max(r.Y, s.Y)
	x2, y2 := min(r.Right(), s.Right()), min(r.Bottom(), s.Bottom())
	return Rect{X: x1, Y: y1, W: x2 - x1, H: y2 - y1}
}

// Empty reports whether the rectangle covers no pixels.
func (r Rect) Empty() bool { return r.W <= 0 || r.H <= 0 }

// Buffer is a float pixel grid. Pixels are stored row-major with channels
// interleaved; values are nominally in [0,1].
type Buffer struct {
	Width    int
	Height   int
	Channels int
	Pix      []float64
}

// NewBuffer allocates a zeroed buffer.
func NewBuffer(width, height, channels int) *Buffer {
	return &Buffer{
		Width:    width,
		Height:   height,
		Channels: channels,
		Pix:      make([]float64, width*height*channels),
	}
}

// Bounds returns the buffer rectangle anchored at the origin.
func (b *Buffer) Bounds() Rect { return Rect{W: b.Width, H: b.Height} }

// Size returns the buffer dimensions.
func (b *Buffer) Size() Size { return Size{W: b.Width, H: b.Height} }

// Stride is the number of values in one row.
func (b *Buffer) Stride() int { return b.Width * b.Channels }

// Offset returns the index of channel 0 of pixel (x, y).
func (b *Buffer) Offset(x, y int) int { return y*b.Stride() + x*b.Channels }

// At returns the value of channel c at (x, y).
func (b *Buffer) At(x, y, c int) float64 { return b.Pix[b.Offset(x, y)+c] }

// Set stores v in channel c at (x, y).
func (b *Buffer) Set(x, y, c int, v float64) { b.Pix[b.Offset(x, y)+c] = v }

// Fill sets every channel of every pixel to v.
func (b *Buffer) Fill(v float64) {
	for i := range b.Pix {
		b.Pix[i] = v
	}
}

// Zero clears the buffer.
func (b *Buffer) Zero() { clear(b.Pix) }

// Clone returns a deep copy.
func (b *Buffer) Clone() *Buffer {
	c := NewBuffer(b.Width, b.Height, b.Channels)
	copy(c.Pix, b.Pix)
	return c
}

// CopyFrom overwrites b with src. Both must have the same shape.
func (b *Buffer) CopyFrom(src *Buffer) {
	b.mustMatch(src)
	copy(b.Pix, src.Pix)
}

// Add adds src into b element-wise.
func (b *Buffer) Add(src *Buffer) {
	b.mustMatch(src)
	floats.Add(b.Pix, src.Pix)
}

// Mul multiplies b by w element-wise.
func (b *Buffer) Mul(w *Buffer) {
	b.mustMatch(w)
	floats.Mul(b.Pix, w.Pix)
}

// Scale multiplies every value by s.
func (b *Buffer) Scale(s float64) { floats.Scale(s, b.Pix) }

// SameShape reports whether o has b's dimensions and channel count.
func (b *Buffer) SameShape(o *Buffer) bool {
	return b.Width == o.Width && b.Height == o.Height && b.Channels == o.Channels
}

// AddRegion adds the top-left r.W x r.H pixels of src into b at r.
func (b *Buffer) AddRegion(src *Buffer, r Rect) {
	n := r.W * b.Channels
	for y := 0; y < r.H; y++ {
		d := b.Offset(r.X, r.Y+y)
		s := src.Offset(0, y)
		floats.Add(b.Pix[d:d+n], src.Pix[s:s+n])
	}
}

func (b *Buffer) mustMatch(o *Buffer) {
	if !b.SameShape(o) {
		panic(fmt.Sprintf("tiling: buffer shape %dx%dx%d does not match %dx%dx%d",
			b.Width, b.Height, b.Channels, o.Width, o.Height, o.Channels))
	}
}
