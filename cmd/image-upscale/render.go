package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ironsheep/image-upscale-mcp/internal/backend"
	"github.com/ironsheep/image-upscale-mcp/internal/config"
	"github.com/ironsheep/image-upscale-mcp/internal/imaging"
	"github.com/ironsheep/image-upscale-mcp/internal/server"
	"github.com/ironsheep/image-upscale-mcp/internal/tiling"
)

type renderCommand struct {
	renderFlags
	Output    string `short:"o" long:"output" description:"Output directory (default: next to each input)"`
	Format    string `short:"f" long:"format" default:"png" choice:"png" choice:"jpg" choice:"bmp" description:"Output format"`
	Recursive bool   `short:"r" long:"recursive" description:"Descend into subdirectories"`
	Jobs      int    `short:"j" long:"jobs" default:"1" description:"Files rendered concurrently, each worker with its own session"`

	Args struct {
		Inputs []string `positional-arg-name:"input" required:"1"`
	} `positional-args:"yes"`
}

func (c *renderCommand) Execute(args []string) error {
	opts, err := c.options()
	if err != nil {
		return err
	}
	log := newLogger()
	files, err := collectInputs(c.Args.Inputs, c.Recursive)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return errors.New("no supported images found")
	}
	log.WithField("files", len(files)).Info("Rendering")

	failed, err := renderFiles(context.Background(), files, renderJob{
		opts:    opts,
		outDir:  c.Output,
		ext:     "." + c.Format,
		jobs:    c.Jobs,
		log:     log,
		backend: backend.New,
	})
	if err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(files))
	}
	return nil
}

// collectInputs expands directories into the supported images they hold.
// Files named explicitly are kept even without a known extension so the
// decoder can report them.
func collectInputs(inputs []string, recursive bool) ([]string, error) {
	var files []string
	for _, in := range inputs {
		info, err := os.Stat(in)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, in)
			continue
		}
		err = filepath.WalkDir(in, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if path != in && !recursive {
					return filepath.SkipDir
				}
				return nil
			}
			if imaging.IsSupported(path) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return lo.Uniq(files), nil
}

// backendFunc builds the backend for a set of options.
type backendFunc func(config.Options, logrus.FieldLogger) (tiling.Backend, error)

// renderJob carries what every worker needs to render one file.
type renderJob struct {
	opts    config.Options
	outDir  string
	ext     string
	jobs    int
	log     logrus.FieldLogger
	backend backendFunc
}

// errBackendSetup marks failures no later file could avoid.
var errBackendSetup = errors.New("backend setup failed")

// worker renders files with sessions it owns, one per channel count.
type worker struct {
	job      renderJob
	cache    *imaging.ImageCache
	sessions map[int]*tiling.Session
	backends []tiling.Backend
}

func (w *worker) session(channels int) (*tiling.Session, error) {
	if s, ok := w.sessions[channels]; ok {
		return s, nil
	}
	s, err := w.open(channels)
	if channels == 4 && errors.Is(err, tiling.ErrConfigurationMismatch) {
		// Alpha is scaled separately by imaging.Render.
		w.job.log.WithError(err).Debug("Backend rejected alpha; rendering RGB")
		if s, err = w.session(3); err != nil {
			return nil, err
		}
		w.sessions[channels] = s
	}
	return s, err
}

func (w *worker) open(channels int) (*tiling.Session, error) {
	b, err := w.job.backend(w.job.opts, w.job.log)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errBackendSetup, err)
	}
	w.backends = append(w.backends, b)
	s, err := tiling.NewSession(b, w.job.opts.Tiling(channels), w.job.log)
	if err != nil {
		return nil, err
	}
	w.sessions[channels] = s
	return s, nil
}

func (w *worker) render(path string) error {
	img, err := w.cache.Load(path)
	if err != nil {
		return err
	}
	defer w.cache.Evict(path)

	sess, err := w.session(imaging.ChannelsFor(img))
	if err != nil {
		return err
	}
	out, stats, err := imaging.Render(sess, img)
	if err != nil {
		return err
	}
	dst := w.job.opts.OutputPath(path, w.job.outDir, w.job.ext)
	if err := imaging.Save(dst, out); err != nil {
		return err
	}
	w.job.log.WithFields(logrus.Fields{
		"input":  path,
		"output": dst,
		"tiles":  stats.TileCount,
		"took":   stats.Elapsed,
	}).Info("Saved")
	return nil
}

func (w *worker) close() {
	for _, b := range w.backends {
		if c, ok := b.(io.Closer); ok {
			if err := c.Close(); err != nil {
				w.job.log.WithError(err).Warn("Failed to release backend")
			}
		}
	}
}

// renderFiles renders files on job.jobs workers. A file that fails,
// including one whose shape the model rejects, is logged and counted;
// backend construction errors stop the run.
func renderFiles(ctx context.Context, files []string, job renderJob) (int, error) {
	jobs := max(job.jobs, 1)
	queue := make(chan string)
	var failed atomic.Int32

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(queue)
		for _, f := range files {
			select {
			case queue <- f:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})
	for i := 0; i < min(jobs, len(files)); i++ {
		w := &worker{job: job, cache: imaging.NewImageCache(), sessions: make(map[int]*tiling.Session)}
		g.Go(func() error {
			defer w.close()
			for path := range queue {
				err := w.render(path)
				switch {
				case err == nil:
				case errors.Is(err, errBackendSetup):
					return fmt.Errorf("%s: %w", path, err)
				default:
					failed.Add(1)
					job.log.WithError(err).WithField("input", path).Error("Render failed")
				}
			}
			return nil
		})
	}
	err := g.Wait()
	return int(failed.Load()), err
}

type planCommand struct {
	renderFlags
	Width  int `long:"width" description:"Canvas width when no image is given"`
	Height int `long:"height" description:"Canvas height when no image is given"`

	Args struct {
		Input string `positional-arg-name:"input"`
	} `positional-args:"yes"`
}

func (c *planCommand) Execute(args []string) error {
	opts, err := c.options()
	if err != nil {
		return err
	}
	result, err := planFor(opts, backend.New, newLogger(), c.Args.Input, c.Width, c.Height)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// planFor lays out tiles for an image file or an explicit canvas size. The
// backend is built to learn its output tile and released afterwards.
func planFor(opts config.Options, newBackend backendFunc, log logrus.FieldLogger, path string, width, height int) (*server.PlanResult, error) {
	if path != "" {
		dims, err := imaging.GetDimensions(imaging.NewImageCache(), path)
		if err != nil {
			return nil, err
		}
		width, height = dims.Width, dims.Height
	}
	if width <= 0 || height <= 0 {
		return nil, errors.New("an input image or positive --width and --height are required")
	}
	b, err := newBackend(opts, log)
	if err != nil {
		return nil, err
	}
	if c, ok := b.(io.Closer); ok {
		defer c.Close()
	}
	cfg, err := tiling.ResolveConfig(b, opts.Tiling(3))
	if err != nil {
		return nil, err
	}
	g, err := tiling.NewGeometry(cfg)
	if err != nil {
		return nil, err
	}
	plan, err := g.Plan(width, height)
	if err != nil {
		return nil, err
	}
	return server.NewPlanResult(g, plan, opts), nil
}
