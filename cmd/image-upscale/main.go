package main

import (
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"
	"github.com/sirupsen/logrus"

	"github.com/ironsheep/image-upscale-mcp/internal/config"
	"github.com/ironsheep/image-upscale-mcp/internal/server"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// globalOptions apply to every command.
type globalOptions struct {
	LogLevel string `long:"log-level" env:"IMAGE_UPSCALE_LOG_LEVEL" default:"info" choice:"trace" choice:"debug" choice:"info" choice:"warn" choice:"error" description:"Log level"`
}

// renderFlags are the render options shared by render, plan and serve.
type renderFlags struct {
	Backend   string `long:"backend" default:"onnx" choice:"onnx" choice:"resample" description:"Inference backend"`
	Model     string `short:"m" long:"model" default:"swin_unet/art" choice:"cunet/art" choice:"swin_unet/art" choice:"swin_unet/art_scan" choice:"swin_unet/photo" choice:"upconv_7/photo" description:"Model family"`
	Filter    string `long:"filter" default:"lanczos" choice:"lanczos" choice:"catmullrom" choice:"linear" choice:"box" choice:"nearest" description:"Resample filter (resample backend)"`
	Scale     int    `short:"s" long:"scale" default:"2" choice:"1" choice:"2" choice:"4" description:"Scale factor"`
	Noise     int    `short:"n" long:"noise" default:"-1" choice:"-1" choice:"0" choice:"1" choice:"2" choice:"3" description:"Noise reduction level"`
	TileSize  int    `short:"t" long:"tile-size" default:"256" choice:"64" choice:"256" choice:"400" choice:"640" description:"Input tile size"`
	BatchSize int    `short:"b" long:"batch-size" default:"4" description:"Tiles per inference batch"`
	Blend     string `long:"blend" default:"1/16" choice:"1/8" choice:"1/16" choice:"1/32" choice:"0" description:"Tile overlap blended with each neighbour"`
	TTA       bool   `long:"tta" description:"Average 8 flipped and rotated passes per tile"`
	ModelDir  string `long:"model-dir" env:"IMAGE_UPSCALE_MODEL_DIR" default:"models" description:"Model directory"`
	Device    int    `short:"d" long:"device" default:"-1" description:"CUDA device, -1 for CPU"`
	Threads   int    `long:"threads" default:"0" description:"Intra-op CPU threads, 0 for runtime default"`
	Library   string `long:"onnxruntime" env:"ONNXRUNTIME_SHARED_LIBRARY_PATH" description:"onnxruntime shared library"`
}

var blendFractions = map[string]float64{
	"1/8":  1.0 / 8,
	"1/16": 1.0 / 16,
	"1/32": 1.0 / 32,
	"0":    0,
}

// options converts the flags to validated render options.
func (f renderFlags) options() (config.Options, error) {
	blend, ok := blendFractions[f.Blend]
	if !ok {
		return config.Options{}, fmt.Errorf("%w: blend %q", config.ErrInvalidOptions, f.Blend)
	}
	o := config.Options{
		Backend:   f.Backend,
		Model:     f.Model,
		Filter:    f.Filter,
		Scale:     f.Scale,
		Noise:     f.Noise,
		TileSize:  f.TileSize,
		BatchSize: f.BatchSize,
		Blend:     blend,
		TTA:       f.TTA,
		ModelDir:  f.ModelDir,
		Device:    f.Device,
		Threads:   f.Threads,
		Library:   f.Library,
	}
	if err := o.Validate(); err != nil {
		return config.Options{}, err
	}
	return o, nil
}

var global globalOptions

// newLogger writes to stderr; stdout carries MCP traffic and plan output.
func newLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	level, err := logrus.ParseLevel(global.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	return log
}

type serveCommand struct {
	renderFlags
}

func (c *serveCommand) Execute(args []string) error {
	opts, err := c.options()
	if err != nil {
		return err
	}
	log := newLogger()
	log.WithFields(logrus.Fields{
		"version": Version,
		"built":   BuildTime,
		"commit":  GitCommit,
	}).Debug("Image upscale MCP server starting")

	server.Version = Version
	srv := server.New(server.WithLogger(log), server.WithDefaults(opts))
	return srv.Run()
}

type versionCommand struct{}

func (c *versionCommand) Execute(args []string) error {
	fmt.Printf("image-upscale %s\n", Version)
	fmt.Printf("  Build time: %s\n", BuildTime)
	fmt.Printf("  Git commit: %s\n", GitCommit)
	return nil
}

func newParser() *flags.Parser {
	parser := flags.NewParser(&global, flags.Default)
	parser.Name = "image-upscale"
	parser.LongDescription = "Tiled image upscaling with overlap blending and test-time augmentation. " +
		"Runs as a CLI or, with serve, as an MCP server over stdin/stdout."

	parser.AddCommand("render", "Upscale images",
		"Upscale image files, or every image in the given directories.", &renderCommand{})
	parser.AddCommand("plan", "Print the tile plan",
		"Print the tile layout for an image or a width and height as JSON.", &planCommand{})
	parser.AddCommand("serve", "Run the MCP server",
		"Serve MCP tools over stdin/stdout. Render flags set the tool defaults.", &serveCommand{})
	parser.AddCommand("version", "Print version information", "", &versionCommand{})
	return parser
}

func main() {
	if _, err := newParser().Parse(); err != nil {
		if fe, ok := err.(*flags.Error); ok && fe.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}
}
