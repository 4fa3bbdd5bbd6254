package tiling

import (
	"fmt"
	"math"
)

// Geometry holds the tile measurements derived from a Config. It is computed
// once per configuration and shared by every Plan.
type Geometry struct {
	InputTile  Size `json:"input_tile"`
	OutputTile Size `json:"output_tile"`

	// ScaledOutputTile is the input tile size multiplied by the requested
	// scale.
	ScaledOutputTile Vec2 `json:"scaled_output_tile"`

	// ScaledInputTile is the input-space extent whose scaled size fills one
	// output tile. It differs from InputTile when the backend's native scale
	// differs from the requested one.
	ScaledInputTile Size `json:"scaled_input_tile"`

	InputOverlap  Size `json:"input_overlap"`
	OutputOverlap Size `json:"output_overlap"`

	Scale Vec2 `json:"scale"`
}

// NewGeometry derives tile geometry from a validated configuration.
func NewGeometry(cfg Config) (Geometry, error) {
	if err := cfg.Validate(); err != nil {
		return Geometry{}, err
	}
	in, out := cfg.InputTile.Size(), cfg.OutputTile.Size()
	g := Geometry{
		InputTile:  in,
		OutputTile: out,
		Scale:      cfg.Scale,
		ScaledOutputTile: Vec2{
			X: float64(in.W) * cfg.Scale.X,
			Y: float64(in.H) * cfg.Scale.Y,
		},
	}
	g.ScaledInputTile = Size{
		W: roundInt(float64(out.W) / g.ScaledOutputTile.X * float64(in.W)),
		H: roundInt(float64(out.H) / g.ScaledOutputTile.Y * float64(in.H)),
	}
	g.InputOverlap = Size{
		W: roundInt(float64(in.W) * cfg.Overlap.X),
		H: roundInt(float64(in.H) * cfg.Overlap.Y),
	}
	g.OutputOverlap = Size{
		W: roundInt(g.ScaledOutputTile.X * cfg.Overlap.X),
		H: roundInt(g.ScaledOutputTile.Y * cfg.Overlap.Y),
	}

	if g.ScaledInputTile.W <= g.InputOverlap.W || g.ScaledInputTile.H <= g.InputOverlap.H {
		return Geometry{}, fmt.Errorf("%w: scaled input tile %dx%d does not exceed overlap %dx%d",
			ErrInvalidGeometry, g.ScaledInputTile.W, g.ScaledInputTile.H, g.InputOverlap.W, g.InputOverlap.H)
	}
	if out.W <= g.OutputOverlap.W || out.H <= g.OutputOverlap.H {
		return Geometry{}, fmt.Errorf("%w: output tile %dx%d does not exceed overlap %dx%d",
			ErrInvalidGeometry, out.W, out.H, g.OutputOverlap.W, g.OutputOverlap.H)
	}
	return g, nil
}

// RoundingDrift returns, per axis, how far the rounded ScaledInputTile
// lands from exactly filling an output tile, in output pixels. Non-zero
// drift shifts tile boundaries by a fraction of a pixel per tile.
func (g Geometry) RoundingDrift() Vec2 {
	return Vec2{
		X: math.Abs(float64(g.ScaledInputTile.W)*g.Scale.X - float64(g.OutputTile.W)),
		Y: math.Abs(float64(g.ScaledInputTile.H)*g.Scale.Y - float64(g.OutputTile.H)),
	}
}

// OutputSize returns the canvas size for an input of width x height.
func (g Geometry) OutputSize(width, height int) Size {
	return Size{
		W: roundInt(float64(width) * g.Scale.X),
		H: roundInt(float64(height) * g.Scale.Y),
	}
}

// Plan is the tile grid for one canvas. Tiles are indexed row-major:
// index = row*Grid.W + column.
type Plan struct {
	Input       Size   `json:"input"`
	Output      Size   `json:"output"`
	Grid        Size   `json:"grid"`
	InputRects  []Rect `json:"input_rects"`
	OutputRects []Rect `json:"output_rects"`
}

// TileCount returns the number of tiles in the plan.
func (p *Plan) TileCount() int { return len(p.InputRects) }

// Plan lays out tiles over a width x height input image.
func (g Geometry) Plan(width, height int) (*Plan, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: canvas %dx%d", ErrInvalidGeometry, width, height)
	}
	output := g.OutputSize(width, height)
	if output.W <= 0 || output.H <= 0 {
		return nil, fmt.Errorf("%w: output canvas %dx%d", ErrInvalidGeometry, output.W, output.H)
	}

	nx := tileCount(width, g.ScaledInputTile.W, g.InputOverlap.W)
	ny := tileCount(height, g.ScaledInputTile.H, g.InputOverlap.H)

	xs, err := outputOffsets(nx, output.W, g.OutputTile.W, g.OutputOverlap.W)
	if err != nil {
		return nil, fmt.Errorf("horizontal: %w", err)
	}
	ys, err := outputOffsets(ny, output.H, g.OutputTile.H, g.OutputOverlap.H)
	if err != nil {
		return nil, fmt.Errorf("vertical: %w", err)
	}

	p := &Plan{
		Input:       Size{W: width, H: height},
		Output:      output,
		Grid:        Size{W: nx, H: ny},
		InputRects:  make([]Rect, 0, nx*ny),
		OutputRects: make([]Rect, 0, nx*ny),
	}

	// The network sees (InputTile - ScaledInputTile) of context around the
	// useful region; half of it goes before the first tile.
	borderX := -((g.InputTile.W - g.ScaledInputTile.W) / 2)
	borderY := -((g.InputTile.H - g.ScaledInputTile.H) / 2)
	stepX := g.ScaledInputTile.W - g.InputOverlap.W
	stepY := g.ScaledInputTile.H - g.InputOverlap.H

	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			p.InputRects = append(p.InputRects, Rect{
				X: borderX + i*stepX,
				Y: borderY + j*stepY,
				W: g.InputTile.W,
				H: g.InputTile.H,
			})
			p.OutputRects = append(p.OutputRects, Rect{
				X: xs[i],
				Y: ys[j],
				W: min(g.OutputTile.W, output.W-xs[i]),
				H: min(g.OutputTile.H, output.H-ys[j]),
			})
		}
	}

	// A model whose native scale exceeds the requested one covers more input
	// than a tile reads; on narrow canvases its rects can miss the image.
	bounds := Rect{W: width, H: height}
	for i, r := range p.InputRects {
		if r.Intersect(bounds).Empty() {
			return nil, fmt.Errorf("%w: tile %d reads (%d,%d %dx%d) outside the %dx%d image",
				ErrInvalidRegion, i, r.X, r.Y, r.W, r.H, width, height)
		}
	}
	return p, nil
}

// OutputGrid lays out output rectangles of tile size with the given overlap
// over a canvas, the same way Plan does, starting from the canvas size
// alone.
func OutputGrid(canvas, tile, overlap Size) ([]Rect, Size, error) {
	if tile.W <= overlap.W || tile.H <= overlap.H || overlap.W < 0 || overlap.H < 0 {
		return nil, Size{}, fmt.Errorf("%w: tile %dx%d with overlap %dx%d",
			ErrInvalidGeometry, tile.W, tile.H, overlap.W, overlap.H)
	}
	if canvas.W <= 0 || canvas.H <= 0 {
		return nil, Size{}, fmt.Errorf("%w: canvas %dx%d", ErrInvalidGeometry, canvas.W, canvas.H)
	}
	nx := tileCount(canvas.W, tile.W, overlap.W)
	ny := tileCount(canvas.H, tile.H, overlap.H)
	xs, err := outputOffsets(nx, canvas.W, tile.W, overlap.W)
	if err != nil {
		return nil, Size{}, err
	}
	ys, err := outputOffsets(ny, canvas.H, tile.H, overlap.H)
	if err != nil {
		return nil, Size{}, err
	}
	rects := make([]Rect, 0, nx*ny)
	for _, y := range ys {
		for _, x := range xs {
			rects = append(rects, Rect{X: x, Y: y, W: min(tile.W, canvas.W-x), H: min(tile.H, canvas.H-y)})
		}
	}
	return rects, Size{W: nx, H: ny}, nil
}

// tileCount returns ceil((dim - overlap) / (tile - overlap)), at least 1.
func tileCount(dim, tile, overlap int) int {
	n := int(math.Ceil(float64(dim-overlap) / float64(tile-overlap)))
	return max(n, 1)
}

// outputOffsets places n output tiles and checks they cover [0, dim).
func outputOffsets(n, dim, tile, overlap int) ([]int, error) {
	step := tile - overlap
	offsets := make([]int, n)
	for i := range offsets {
		offsets[i] = i * step
	}
	last := offsets[n-1]
	if last >= dim {
		return nil, fmt.Errorf("%w: tile %d starts at %d, past the %d pixel canvas",
			ErrInvalidGeometry, n-1, last, dim)
	}
	if last+tile < dim {
		return nil, fmt.Errorf("%w: %d tiles cover %d of %d output pixels",
			ErrInvalidGeometry, n, last+tile, dim)
	}
	return offsets, nil
}

func roundInt(v float64) int { return int(math.Round(v)) }
