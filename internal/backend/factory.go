package backend

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/ironsheep/image-upscale-mcp/internal/config"
	"github.com/ironsheep/image-upscale-mcp/internal/tiling"
)

// New builds the backend selected by opts. The options must already be
// validated.
func New(opts config.Options, log logrus.FieldLogger) (tiling.Backend, error) {
	switch opts.Backend {
	case config.BackendONNX:
		b, err := NewONNX(ONNXOptions{
			ModelPath:   opts.ModelFile(),
			LibraryPath: opts.Library,
			Threads:     opts.Threads,
			Device:      opts.Device,
		}, log)
		if err != nil {
			return nil, err
		}
		return b, nil
	case config.BackendResample:
		b, err := NewResample(opts.Filter, log)
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", config.ErrInvalidOptions, opts.Backend)
	}
}
