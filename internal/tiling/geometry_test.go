package tiling

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func squareConfig(tile, outTile, batch int, scale, overlap float64) Config {
	return Config{
		InputTile:  Shape{Width: tile, Height: tile, Channels: 3},
		OutputTile: Shape{Width: outTile, Height: outTile, Channels: 3},
		Scale:      Uniform(scale),
		Overlap:    Uniform(overlap),
		BatchSize:  batch,
	}
}

func TestNewGeometry(t *testing.T) {
	g, err := NewGeometry(squareConfig(64, 128, 4, 2, 1.0/16))
	require.NoError(t, err)
	require.Equal(t, Size{W: 64, H: 64}, g.InputTile)
	require.Equal(t, Size{W: 128, H: 128}, g.OutputTile)
	require.Equal(t, Vec2{X: 128, Y: 128}, g.ScaledOutputTile)
	require.Equal(t, Size{W: 64, H: 64}, g.ScaledInputTile)
	require.Equal(t, Size{W: 4, H: 4}, g.InputOverlap)
	require.Equal(t, Size{W: 8, H: 8}, g.OutputOverlap)
	require.Equal(t, Vec2{}, g.RoundingDrift())
}

func TestNewGeometryScaleBelowModel(t *testing.T) {
	// A 2x model asked for 1x covers twice the input per tile.
	g, err := NewGeometry(squareConfig(64, 128, 1, 1, 0))
	require.NoError(t, err)
	require.Equal(t, Size{W: 128, H: 128}, g.ScaledInputTile)
	require.Equal(t, Size{W: 256, H: 128}, g.OutputSize(256, 128))
}

func TestNewGeometryInvalid(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"zero input tile", squareConfig(0, 64, 1, 1, 0)},
		{"zero output tile", squareConfig(64, 0, 1, 1, 0)},
		{"zero scale", squareConfig(64, 64, 1, 0, 0)},
		{"negative scale", squareConfig(64, 64, 1, -2, 0)},
		{"overlap half", squareConfig(64, 64, 1, 1, 0.5)},
		{"negative overlap", squareConfig(64, 64, 1, 1, -0.1)},
		{"zero batch", squareConfig(64, 64, 0, 1, 0)},
		{"tiny scaled tile", squareConfig(4, 64, 1, 64, 0.25)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewGeometry(tc.cfg)
			require.ErrorIs(t, err, ErrInvalidGeometry)
		})
	}
}

func TestNewGeometryChannelMismatch(t *testing.T) {
	cfg := squareConfig(64, 64, 1, 1, 0)
	cfg.OutputTile.Channels = 1
	_, err := NewGeometry(cfg)
	require.ErrorIs(t, err, ErrConfigurationMismatch)
}

func TestPlanEndToEndLayout(t *testing.T) {
	g, err := NewGeometry(squareConfig(64, 64, 4, 1, 1.0/16))
	require.NoError(t, err)
	require.Equal(t, Size{W: 4, H: 4}, g.InputOverlap)

	p, err := g.Plan(256, 256)
	require.NoError(t, err)
	require.Equal(t, Size{W: 5, H: 5}, p.Grid)
	require.Equal(t, 25, p.TileCount())
	require.Equal(t, Size{W: 256, H: 256}, p.Output)

	// Row-major: index = row*cols + col.
	require.Equal(t, Rect{X: 60, Y: 0, W: 64, H: 64}, p.InputRects[1])
	require.Equal(t, Rect{X: 0, Y: 60, W: 64, H: 64}, p.InputRects[5])
	require.Equal(t, Rect{X: 240, Y: 240, W: 16, H: 16}, p.OutputRects[24])
}

func TestPlanWithoutOverlap(t *testing.T) {
	g, err := NewGeometry(squareConfig(64, 64, 4, 1, 0))
	require.NoError(t, err)
	p, err := g.Plan(256, 256)
	require.NoError(t, err)
	require.Equal(t, 16, p.TileCount())
	for i, r := range p.OutputRects {
		require.Equal(t, p.InputRects[i], r)
	}
}

func TestPlanSmallerThanTile(t *testing.T) {
	g, err := NewGeometry(squareConfig(64, 64, 1, 1, 1.0/8))
	require.NoError(t, err)
	p, err := g.Plan(10, 7)
	require.NoError(t, err)
	require.Equal(t, 1, p.TileCount())
	require.Equal(t, Rect{W: 10, H: 7}, p.OutputRects[0])
}

func TestPlanInvalidCanvas(t *testing.T) {
	g, err := NewGeometry(squareConfig(64, 64, 1, 1, 0))
	require.NoError(t, err)
	_, err = g.Plan(0, 10)
	require.ErrorIs(t, err, ErrInvalidGeometry)
	_, err = g.Plan(10, -1)
	require.ErrorIs(t, err, ErrInvalidGeometry)
}

// checkCoverage asserts every output pixel is covered and every input rect
// touches the image.
func checkCoverage(t *testing.T, p *Plan) {
	t.Helper()
	covered := make([]bool, p.Output.W*p.Output.H)
	for _, r := range p.OutputRects {
		require.GreaterOrEqual(t, r.X, 0)
		require.GreaterOrEqual(t, r.Y, 0)
		require.LessOrEqual(t, r.Right(), p.Output.W)
		require.LessOrEqual(t, r.Bottom(), p.Output.H)
		for y := r.Y; y < r.Bottom(); y++ {
			for x := r.X; x < r.Right(); x++ {
				covered[y*p.Output.W+x] = true
			}
		}
	}
	for i, c := range covered {
		require.True(t, c, "output pixel (%d,%d) uncovered", i%p.Output.W, i/p.Output.W)
	}
	image := Rect{W: p.Input.W, H: p.Input.H}
	for i, r := range p.InputRects {
		require.False(t, r.Intersect(image).Empty(), "input rect %d misses the image", i)
	}
}

func TestPlanCoverage(t *testing.T) {
	overlaps := []float64{0, 1.0 / 32, 1.0 / 16, 1.0 / 8}
	sizes := [][2]int{{1, 1}, {17, 3}, {64, 64}, {65, 63}, {100, 250}, {257, 129}, {511, 13}}

	for _, ov := range overlaps {
		for _, tile := range []int{32, 64} {
			for _, sz := range sizes {
				name := fmt.Sprintf("1x/tile%d/ov%.4f/%dx%d", tile, ov, sz[0], sz[1])
				t.Run(name, func(t *testing.T) {
					g, err := NewGeometry(squareConfig(tile, tile, 1, 1, ov))
					require.NoError(t, err)
					p, err := g.Plan(sz[0], sz[1])
					require.NoError(t, err)
					checkCoverage(t, p)
				})
			}
		}
		for _, sz := range sizes {
			name := fmt.Sprintf("2x/ov%.4f/%dx%d", ov, sz[0], sz[1])
			t.Run(name, func(t *testing.T) {
				g, err := NewGeometry(squareConfig(64, 128, 1, 2, ov))
				require.NoError(t, err)
				p, err := g.Plan(sz[0], sz[1])
				require.NoError(t, err)
				require.Equal(t, Size{W: 2 * sz[0], H: 2 * sz[1]}, p.Output)
				checkCoverage(t, p)
			})
		}
	}
}

func TestOutputGrid(t *testing.T) {
	rects, grid, err := OutputGrid(Size{W: 256, H: 100}, Size{W: 64, H: 64}, Size{W: 4, H: 4})
	require.NoError(t, err)
	require.Equal(t, Size{W: 5, H: 2}, grid)
	require.Len(t, rects, 10)
	require.Equal(t, Rect{X: 60, Y: 60, W: 64, H: 40}, rects[6])

	_, _, err = OutputGrid(Size{W: 10, H: 10}, Size{W: 4, H: 4}, Size{W: 4, H: 0})
	require.ErrorIs(t, err, ErrInvalidGeometry)
}

func TestPlanInputRectOutsideImage(t *testing.T) {
	g, err := NewGeometry(squareConfig(64, 128, 1, 1.5, 0))
	require.NoError(t, err)
	require.Equal(t, Size{W: 85, H: 85}, g.ScaledInputTile)

	_, err = g.Plan(5, 5)
	require.ErrorIs(t, err, ErrInvalidRegion)

	p, err := g.Plan(200, 200)
	require.NoError(t, err)
	require.Equal(t, Rect{X: 10, Y: 10, W: 64, H: 64}, p.InputRects[0])
	checkCoverage(t, p)
}
