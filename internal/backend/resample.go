package backend

import (
	"fmt"
	"runtime"
	"slices"

	"github.com/disintegration/imaging"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	imgconv "github.com/ironsheep/image-upscale-mcp/internal/imaging"
	"github.com/ironsheep/image-upscale-mcp/internal/tiling"
)

var resampleFilters = map[string]imaging.ResampleFilter{
	"lanczos":    imaging.Lanczos,
	"catmullrom": imaging.CatmullRom,
	"linear":     imaging.Linear,
	"box":        imaging.Box,
	"nearest":    imaging.NearestNeighbor,
}

// ResampleFilters lists the filter names accepted by NewResample.
func ResampleFilters() []string {
	names := lo.Keys(resampleFilters)
	slices.Sort(names)
	return names
}

// Resample is a model-free backend that scales every tile with an
// interpolation filter. Tiles round-trip through 8-bit color.
type Resample struct {
	log    logrus.FieldLogger
	name   string
	filter imaging.ResampleFilter

	input, output tiling.Shape
	batchSize     int
}

// NewResample returns a resample backend using the named filter.
func NewResample(filter string, log logrus.FieldLogger) (*Resample, error) {
	f, ok := resampleFilters[filter]
	if !ok {
		return nil, fmt.Errorf("unknown resample filter %q (want one of %v)", filter, ResampleFilters())
	}
	if log == nil {
		log = tiling.DiscardLogger()
	}
	return &Resample{log: log.WithField("backend", "resample"), name: filter, filter: f}, nil
}

// Configure accepts any positive tile sizes with 1, 3 or 4 channels.
func (r *Resample) Configure(input, output tiling.Shape, batchSize int) error {
	if input.Channels != output.Channels {
		return fmt.Errorf("input has %d channels, output %d", input.Channels, output.Channels)
	}
	if !slices.Contains([]int{1, 3, 4}, input.Channels) {
		return fmt.Errorf("unsupported channel count %d", input.Channels)
	}
	if batchSize <= 0 {
		return fmt.Errorf("batch size %d", batchSize)
	}
	r.input, r.output, r.batchSize = input, output, batchSize
	r.log.WithFields(logrus.Fields{
		"filter": r.name,
		"input":  input.String(),
		"output": output.String(),
	}).Debug("Resample backend configured")
	return nil
}

// RunBatch resizes every slot concurrently.
func (r *Resample) RunBatch(inputs []*tiling.Buffer) ([]*tiling.Buffer, error) {
	if len(inputs) != r.batchSize {
		return nil, fmt.Errorf("batch has %d tiles, configured for %d", len(inputs), r.batchSize)
	}
	outputs := make([]*tiling.Buffer, len(inputs))

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, in := range inputs {
		g.Go(func() error {
			img, err := imgconv.ToNRGBA(in)
			if err != nil {
				return fmt.Errorf("slot %d: %w", i, err)
			}
			resized := imaging.Resize(img, r.output.Width, r.output.Height, r.filter)
			out, err := imgconv.ToBuffer(resized, r.output.Channels)
			if err != nil {
				return fmt.Errorf("slot %d: %w", i, err)
			}
			outputs[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outputs, nil
}
