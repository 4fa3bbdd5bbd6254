package tiling

// WeightMap holds the four directional alpha ramps applied to output tiles
// that have neighbours. Each map has the output tile's shape.
type WeightMap struct {
	Top    *Buffer
	Bottom *Buffer
	Left   *Buffer
	Right  *Buffer
}

// NewWeightMap builds ramps for an overlap (in output pixels) over a tile.
//
// Row r < overlap.H of Top holds (r+1)/(overlap.H+1); every other row is 1.
// Bottom mirrors Top vertically, Left and Right are the horizontal
// counterparts. With zero overlap all maps are uniformly 1.
func NewWeightMap(overlap Size, tile Shape) *WeightMap {
	w := &WeightMap{
		Top:    NewBuffer(tile.Width, tile.Height, tile.Channels),
		Bottom: NewBuffer(tile.Width, tile.Height, tile.Channels),
		Left:   NewBuffer(tile.Width, tile.Height, tile.Channels),
		Right:  NewBuffer(tile.Width, tile.Height, tile.Channels),
	}
	for y := 0; y < tile.Height; y++ {
		for x := 0; x < tile.Width; x++ {
			for c := 0; c < tile.Channels; c++ {
				w.Top.Set(x, y, c, ramp(y, overlap.H))
				w.Bottom.Set(x, y, c, ramp(tile.Height-1-y, overlap.H))
				w.Left.Set(x, y, c, ramp(x, overlap.W))
				w.Right.Set(x, y, c, ramp(tile.Width-1-x, overlap.W))
			}
		}
	}
	return w
}

func ramp(i, overlap int) float64 {
	if i >= overlap {
		return 1
	}
	return float64(i+1) / float64(overlap+1)
}

// Apply fades tile on every side of rect that does not touch the canvas
// edge. The applicable maps are multiplied in turn into tile.
func (w *WeightMap) Apply(tile *Buffer, rect Rect, canvas Size) {
	if rect.X > 0 {
		tile.Mul(w.Left)
	}
	if rect.Y > 0 {
		tile.Mul(w.Top)
	}
	if rect.Right() < canvas.W {
		tile.Mul(w.Right)
	}
	if rect.Bottom() < canvas.H {
		tile.Mul(w.Bottom)
	}
}
