package tiling

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
)

// Backend runs one fixed-size batch of fixed-size tiles through a model.
//
// Configure establishes the tensor shapes for every following RunBatch call
// and fails if the model cannot accept them. RunBatch must return exactly
// len(inputs) tiles of the output shape, slot i of the output belonging to
// slot i of the input. RunBatch may queue work on a device internally but
// must not return before the outputs are ready.
type Backend interface {
	Configure(input, output Shape, batchSize int) error
	RunBatch(inputs []*Buffer) ([]*Buffer, error)
}

// OutputShaper is implemented by backends whose output tile is fixed by the
// model rather than by input size times scale, such as models that trim a
// border off every tile.
type OutputShaper interface {
	OutputShape(input Shape) (Shape, error)
}

// ResolveConfig returns cfg with OutputTile taken from b when b reports its
// own output shape. Other backends keep cfg.OutputTile.
func ResolveConfig(b Backend, cfg Config) (Config, error) {
	shaper, ok := b.(OutputShaper)
	if !ok {
		return cfg, nil
	}
	out, err := shaper.OutputShape(cfg.InputTile)
	if err != nil {
		return cfg, fmt.Errorf("%w: output shape for %s: %w", ErrConfigurationMismatch, cfg.InputTile, err)
	}
	cfg.OutputTile = out
	return cfg, nil
}

// checkBatch verifies a batch against the expected count and shape, as the
// tensor binding would.
func checkBatch(batch []*Buffer, want Shape, count int) error {
	if len(batch) != count {
		return fmt.Errorf("batch has %d tiles, expected %d", len(batch), count)
	}
	for i, b := range batch {
		if b == nil {
			return fmt.Errorf("tile %d is nil", i)
		}
		if b.Channels != want.Channels {
			return fmt.Errorf("tile %d has %d channels, expected %d", i, b.Channels, want.Channels)
		}
		if b.Height != want.Height {
			return fmt.Errorf("tile %d has height %d, expected %d", i, b.Height, want.Height)
		}
		if b.Width != want.Width {
			return fmt.Errorf("tile %d has width %d, expected %d", i, b.Width, want.Width)
		}
		if len(b.Pix) != b.Width*b.Height*b.Channels {
			return fmt.Errorf("tile %d holds %d values, expected %d", i, len(b.Pix), b.Width*b.Height*b.Channels)
		}
	}
	return nil
}

// DiscardLogger returns a logger that drops every entry. Components created
// without a logger use it.
func DiscardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	l.SetLevel(logrus.PanicLevel)
	return l
}
