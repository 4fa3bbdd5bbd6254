package tiling

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Session is one configured tiling pipeline bound to a backend. All
// geometry-dependent state is rebuilt by Configure; nothing is shared
// between sessions.
type Session struct {
	backend Backend
	log     logrus.FieldLogger

	cfg        Config
	geometry   Geometry
	weights    *WeightMap
	queue      *PendingQueue
	configured bool

	// Per-slot input tiles; a batch references them until it is submitted.
	slots []*Buffer
	// Unaugmented tile sampled from the canvas before transforming.
	sample *Buffer
	// Final estimate of the tile being accumulated.
	result *Buffer
	// Reversed output variant being added to the accumulator.
	reversed *Buffer
	acc      accumulator
}

// NewSession creates a session and configures its backend. A nil logger
// discards all output.
func NewSession(backend Backend, cfg Config, log logrus.FieldLogger) (*Session, error) {
	if backend == nil {
		return nil, fmt.Errorf("%w: nil backend", ErrConfigurationMismatch)
	}
	if log == nil {
		log = DiscardLogger()
	}
	s := &Session{backend: backend, log: log}
	if err := s.Configure(cfg); err != nil {
		return nil, err
	}
	return s, nil
}

// Configure replaces the session configuration. Any previous geometry,
// weights and scratch buffers are discarded; on failure the session stays
// unconfigured until a later Configure succeeds. A backend implementing
// OutputShaper overrides cfg.OutputTile.
func (s *Session) Configure(cfg Config) error {
	s.configured = false

	cfg, err := ResolveConfig(s.backend, cfg)
	if err != nil {
		return err
	}
	g, err := NewGeometry(cfg)
	if err != nil {
		return err
	}
	if err := s.backend.Configure(cfg.InputTile, cfg.OutputTile, cfg.BatchSize); err != nil {
		return fmt.Errorf("%w: backend rejected %s -> %s x %d: %w",
			ErrConfigurationMismatch, cfg.InputTile, cfg.OutputTile, cfg.BatchSize, err)
	}

	if d := g.RoundingDrift(); d.X > 0 || d.Y > 0 {
		s.log.WithFields(logrus.Fields{
			"scaled_input_tile": fmt.Sprintf("%dx%d", g.ScaledInputTile.W, g.ScaledInputTile.H),
			"drift_x":           d.X,
			"drift_y":           d.Y,
		}).Warn("Requested scale does not divide the model's output tile; tile boundaries may shift")
	}
	if cfg.TTA && cfg.InputTile.Width != cfg.InputTile.Height {
		s.log.WithField("input_tile", cfg.InputTile.String()).
			Warn("Rotated variants of non-square tiles are cropped to the tile shape")
	}

	s.cfg = cfg
	s.geometry = g
	s.weights = NewWeightMap(g.OutputOverlap, cfg.OutputTile)
	s.queue = NewPendingQueue(cfg.BatchSize)
	s.slots = make([]*Buffer, cfg.BatchSize)
	for i := range s.slots {
		s.slots[i] = NewBuffer(cfg.InputTile.Width, cfg.InputTile.Height, cfg.InputTile.Channels)
	}
	s.sample = NewBuffer(cfg.InputTile.Width, cfg.InputTile.Height, cfg.InputTile.Channels)
	s.result = NewBuffer(cfg.OutputTile.Width, cfg.OutputTile.Height, cfg.OutputTile.Channels)
	s.reversed = NewBuffer(cfg.OutputTile.Width, cfg.OutputTile.Height, cfg.OutputTile.Channels)
	s.acc = accumulator{sum: NewBuffer(cfg.OutputTile.Width, cfg.OutputTile.Height, cfg.OutputTile.Channels), tile: -1}
	s.configured = true

	s.log.WithFields(logrus.Fields{
		"input_tile":  cfg.InputTile.String(),
		"output_tile": cfg.OutputTile.String(),
		"overlap":     fmt.Sprintf("%dx%d", g.OutputOverlap.W, g.OutputOverlap.H),
		"batch_size":  cfg.BatchSize,
		"tta":         cfg.TTA,
	}).Debug("Session configured")
	return nil
}

// Config returns the active configuration.
func (s *Session) Config() Config { return s.cfg }

// Geometry returns the active tile geometry.
func (s *Session) Geometry() Geometry { return s.geometry }

// Weights returns the blend ramps shared by every tile of the session.
func (s *Session) Weights() *WeightMap { return s.weights }

// Plan lays out tiles for a width x height input.
func (s *Session) Plan(width, height int) (*Plan, error) {
	if !s.configured {
		return nil, fmt.Errorf("%w: session is not configured", ErrConfigurationMismatch)
	}
	return s.geometry.Plan(width, height)
}

// Render upscales input into a new canvas. Any error leaves no usable
// result; the whole render must be retried.
func (s *Session) Render(input *Buffer) (*Buffer, *RenderStats, error) {
	if !s.configured {
		return nil, nil, fmt.Errorf("%w: session is not configured", ErrConfigurationMismatch)
	}
	if input == nil {
		return nil, nil, fmt.Errorf("%w: nil input", ErrConfigurationMismatch)
	}
	if input.Channels != s.cfg.InputTile.Channels {
		return nil, nil, fmt.Errorf("%w: canvas has %d channels, tiles have %d",
			ErrConfigurationMismatch, input.Channels, s.cfg.InputTile.Channels)
	}
	if len(input.Pix) != input.Width*input.Height*input.Channels {
		return nil, nil, fmt.Errorf("%w: canvas holds %d values for %dx%dx%d",
			ErrConfigurationMismatch, len(input.Pix), input.Width, input.Height, input.Channels)
	}
	plan, err := s.geometry.Plan(input.Width, input.Height)
	if err != nil {
		return nil, nil, err
	}
	canvas := NewBuffer(plan.Output.W, plan.Output.H, s.cfg.OutputTile.Channels)
	stats, err := s.schedule(input, canvas, plan)
	if err != nil {
		return nil, nil, err
	}
	return canvas, stats, nil
}
