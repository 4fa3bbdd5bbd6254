// Package config holds the render options shared by the CLI and the MCP
// server: the model catalogue, option validation, model file lookup and
// output naming.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/ironsheep/image-upscale-mcp/internal/tiling"
)

// Model describes one model family shipped under the model directory.
type Model struct {
	Name   string `json:"name"`
	Scales []int  `json:"scales"`
}

// Models lists the supported model families.
var Models = []Model{
	{Name: "cunet/art", Scales: []int{1, 2}},
	{Name: "swin_unet/art", Scales: []int{1, 2, 4}},
	{Name: "swin_unet/art_scan", Scales: []int{1, 2, 4}},
	{Name: "swin_unet/photo", Scales: []int{1, 2, 4}},
	{Name: "upconv_7/photo", Scales: []int{1, 2, 4}},
}

// Accepted option values.
var (
	ScaleChoices    = []int{1, 2, 4}
	NoiseChoices    = []int{-1, 0, 1, 2, 3}
	TileSizeChoices = []int{64, 256, 400, 640}
	BlendChoices    = []float64{1.0 / 8, 1.0 / 16, 1.0 / 32, 0}
)

// Backend names.
const (
	BackendONNX     = "onnx"
	BackendResample = "resample"
)

// ErrInvalidOptions wraps every validation failure.
var ErrInvalidOptions = errors.New("invalid options")

// Options selects a model and how images are tiled through it.
type Options struct {
	Backend   string  `json:"backend"`
	Model     string  `json:"model"`
	Filter    string  `json:"filter,omitempty"`
	Scale     int     `json:"scale"`
	Noise     int     `json:"noise"`
	TileSize  int     `json:"tile_size"`
	BatchSize int     `json:"batch_size"`
	Blend     float64 `json:"blend"`
	TTA       bool    `json:"tta"`
	ModelDir  string  `json:"model_dir"`
	Device    int     `json:"device"`
	Threads   int     `json:"threads"`

	// Library overrides the onnxruntime shared library location.
	Library string `json:"library,omitempty"`
}

// Defaults returns the options used when nothing is specified.
func Defaults() Options {
	return Options{
		Backend:   BackendONNX,
		Model:     "swin_unet/art",
		Filter:    "lanczos",
		Scale:     2,
		Noise:     -1,
		TileSize:  256,
		BatchSize: 4,
		Blend:     1.0 / 16,
		ModelDir:  "models",
		Device:    -1,
	}
}

// LookupModel returns the catalogue entry for name.
func LookupModel(name string) (Model, bool) {
	for _, m := range Models {
		if m.Name == name {
			return m, true
		}
	}
	return Model{}, false
}

// Validate checks every option against its choices and the combination
// rules of the model catalogue.
func (o Options) Validate() error {
	switch o.Backend {
	case BackendONNX, BackendResample:
	default:
		return fmt.Errorf("%w: unknown backend %q", ErrInvalidOptions, o.Backend)
	}
	if !slices.Contains(ScaleChoices, o.Scale) {
		return fmt.Errorf("%w: scale %d not in %v", ErrInvalidOptions, o.Scale, ScaleChoices)
	}
	if !slices.Contains(TileSizeChoices, o.TileSize) {
		return fmt.Errorf("%w: tile size %d not in %v", ErrInvalidOptions, o.TileSize, TileSizeChoices)
	}
	if !slices.Contains(BlendChoices, o.Blend) {
		return fmt.Errorf("%w: blend %g not in 1/8, 1/16, 1/32, 0", ErrInvalidOptions, o.Blend)
	}
	if o.BatchSize <= 0 {
		return fmt.Errorf("%w: batch size %d must be positive", ErrInvalidOptions, o.BatchSize)
	}
	if o.Backend == BackendResample {
		return nil
	}

	m, ok := LookupModel(o.Model)
	if !ok {
		return fmt.Errorf("%w: unknown model %q", ErrInvalidOptions, o.Model)
	}
	if !slices.Contains(m.Scales, o.Scale) {
		return fmt.Errorf("%w: %s does not support scale factor %d", ErrInvalidOptions, o.Model, o.Scale)
	}
	if !slices.Contains(NoiseChoices, o.Noise) {
		return fmt.Errorf("%w: noise level %d not in %v", ErrInvalidOptions, o.Noise, NoiseChoices)
	}
	if o.Noise == -1 && o.Scale == 1 {
		return fmt.Errorf("%w: noise level -1 does not support scale factor 1", ErrInvalidOptions)
	}
	return nil
}

// ModelFile returns the model path below ModelDir, e.g.
// models/swin_unet/art/noise1_scale2x.onnx.
func (o Options) ModelFile() string {
	var parts []string
	if o.Noise != -1 {
		parts = append(parts, fmt.Sprintf("noise%d", o.Noise))
	}
	if o.Scale != 1 {
		parts = append(parts, fmt.Sprintf("scale%dx", o.Scale))
	}
	return filepath.Join(o.ModelDir, filepath.FromSlash(o.Model), strings.Join(parts, "_")+".onnx")
}

// Suffix tags output files with the settings that produced them, e.g.
// "(swin_unet_art)(noise1)(scale2)(tta)".
func (o Options) Suffix() string {
	var b strings.Builder
	if o.Backend == BackendResample {
		fmt.Fprintf(&b, "(resample_%s)", o.Filter)
	} else {
		fmt.Fprintf(&b, "(%s)", strings.ReplaceAll(o.Model, "/", "_"))
		if o.Noise != -1 {
			fmt.Fprintf(&b, "(noise%d)", o.Noise)
		}
	}
	if o.Scale != 1 {
		fmt.Fprintf(&b, "(scale%d)", o.Scale)
	}
	if o.TTA {
		b.WriteString("(tta)")
	}
	return b.String()
}

// OutputPath names the rendered file for input. It lands in outDir when
// set and next to the input otherwise.
func (o Options) OutputPath(input, outDir, ext string) string {
	base := filepath.Base(input)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	dir := outDir
	if dir == "" {
		dir = filepath.Dir(input)
	}
	return filepath.Join(dir, stem+o.Suffix()+ext)
}

// Key identifies the backend and session state the options require.
// Options with equal keys can share a session.
func (o Options) Key() string {
	return fmt.Sprintf("%s|%s|%s|s%d|n%d|t%d|b%d|o%g|tta%t|d%d",
		o.Backend, o.Model, o.Filter, o.Scale, o.Noise, o.TileSize, o.BatchSize, o.Blend, o.TTA, o.Device)
}

// Tiling returns the session configuration for channels-deep images.
func (o Options) Tiling(channels int) tiling.Config {
	return tiling.Config{
		InputTile:  tiling.Shape{Width: o.TileSize, Height: o.TileSize, Channels: channels},
		OutputTile: tiling.Shape{Width: o.TileSize * o.Scale, Height: o.TileSize * o.Scale, Channels: channels},
		Scale:      tiling.Uniform(float64(o.Scale)),
		Overlap:    tiling.Uniform(o.Blend),
		TTA:        o.TTA,
		BatchSize:  o.BatchSize,
	}
}
