package tiling

import "fmt"

// Extract copies rect out of src into a new buffer of exactly rect's size.
//
// Parts of rect outside src are filled by replicating the nearest edge
// pixel. Extract fails with ErrInvalidRegion when rect does not overlap src
// at all.
func Extract(src *Buffer, rect Rect) (*Buffer, error) {
	dst := NewBuffer(rect.W, rect.H, src.Channels)
	if err := ExtractInto(dst, src, rect); err != nil {
		return nil, err
	}
	return dst, nil
}

// ExtractInto is Extract writing into a caller-owned buffer, which must be
// rect.W x rect.H with src's channel count.
func ExtractInto(dst, src *Buffer, rect Rect) error {
	if rect.Empty() {
		return fmt.Errorf("%w: rectangle %dx%d is empty", ErrInvalidRegion, rect.W, rect.H)
	}
	if dst.Width != rect.W || dst.Height != rect.H || dst.Channels != src.Channels {
		return fmt.Errorf("%w: destination %dx%dx%d for region %dx%dx%d",
			ErrConfigurationMismatch, dst.Width, dst.Height, dst.Channels, rect.W, rect.H, src.Channels)
	}
	valid := rect.Intersect(src.Bounds())
	if valid.Empty() {
		return fmt.Errorf("%w: (%d,%d %dx%d) lies outside %dx%d image",
			ErrInvalidRegion, rect.X, rect.Y, rect.W, rect.H, src.Width, src.Height)
	}

	ch := src.Channels
	rowLen := valid.W * ch
	left := valid.X - rect.X
	right := rect.Right() - valid.Right()

	for y := 0; y < rect.H; y++ {
		// Clamping the source row replicates the top and bottom edges.
		sy := clampInt(rect.Y+y, valid.Y, valid.Bottom()-1)
		srow := src.Offset(valid.X, sy)
		drow := dst.Offset(0, y)

		copy(dst.Pix[drow+left*ch:drow+left*ch+rowLen], src.Pix[srow:srow+rowLen])

		first := src.Pix[srow : srow+ch]
		for x := 0; x < left; x++ {
			copy(dst.Pix[drow+x*ch:], first)
		}
		last := src.Pix[srow+rowLen-ch : srow+rowLen]
		for x := rect.W - right; x < rect.W; x++ {
			copy(dst.Pix[drow+x*ch:drow+(x+1)*ch], last)
		}
	}
	return nil
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
