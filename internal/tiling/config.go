package tiling

import "fmt"

// TTASize is the number of dihedral variants rendered per tile when
// test-time augmentation is enabled.
const TTASize = 8

// Shape is the fixed shape of one backend tile tensor.
type Shape struct {
	Width    int `json:"width"`
	Height   int `json:"height"`
	Channels int `json:"channels"`
}

// Size returns the spatial part of the shape.
func (s Shape) Size() Size { return Size{W: s.Width, H: s.Height} }

func (s Shape) String() string {
	return fmt.Sprintf("%dx%dx%d", s.Width, s.Height, s.Channels)
}

// Vec2 is a per-axis float pair.
type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Uniform returns a Vec2 with v on both axes.
func Uniform(v float64) Vec2 { return Vec2{X: v, Y: v} }

// Config holds the per-session render configuration. Tile shapes, scale and
// overlap are fixed for the lifetime of a configured Session.
type Config struct {
	// InputTile is the shape of one backend input tile.
	InputTile Shape

	// OutputTile is the shape of one backend output tile.
	OutputTile Shape

	// Scale is the requested output/input size ratio per axis.
	Scale Vec2

	// Overlap is the fraction of a tile shared with each neighbour, in
	// [0, 0.5).
	Overlap Vec2

	// TTA enables 8-way dihedral test-time augmentation.
	TTA bool

	// BatchSize is the number of tiles per backend call.
	BatchSize int
}

// StepsPerTile returns 8 with TTA and 1 without.
func (c Config) StepsPerTile() int {
	if c.TTA {
		return TTASize
	}
	return 1
}

// Overlapping reports whether any blending takes place.
func (c Config) Overlapping() bool {
	return c.Overlap.X != 0 || c.Overlap.Y != 0
}

// Validate checks the configuration before any geometry is derived.
func (c Config) Validate() error {
	if c.InputTile.Width <= 0 || c.InputTile.Height <= 0 {
		return fmt.Errorf("%w: input tile %s", ErrInvalidGeometry, c.InputTile)
	}
	if c.OutputTile.Width <= 0 || c.OutputTile.Height <= 0 {
		return fmt.Errorf("%w: output tile %s", ErrInvalidGeometry, c.OutputTile)
	}
	if c.InputTile.Channels <= 0 || c.InputTile.Channels != c.OutputTile.Channels {
		return fmt.Errorf("%w: input tile has %d channels, output tile has %d",
			ErrConfigurationMismatch, c.InputTile.Channels, c.OutputTile.Channels)
	}
	if c.Scale.X <= 0 || c.Scale.Y <= 0 {
		return fmt.Errorf("%w: scale (%g, %g) must be positive", ErrInvalidGeometry, c.Scale.X, c.Scale.Y)
	}
	if c.Overlap.X < 0 || c.Overlap.X >= 0.5 || c.Overlap.Y < 0 || c.Overlap.Y >= 0.5 {
		return fmt.Errorf("%w: overlap (%g, %g) must be in [0, 0.5)", ErrInvalidGeometry, c.Overlap.X, c.Overlap.Y)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("%w: batch size %d", ErrInvalidGeometry, c.BatchSize)
	}
	return nil
}
