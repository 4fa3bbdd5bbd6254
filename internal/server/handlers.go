package server

import (
	"encoding/json"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/ironsheep/image-upscale-mcp/internal/config"
	imgutil "github.com/ironsheep/image-upscale-mcp/internal/imaging"
	"github.com/ironsheep/image-upscale-mcp/internal/tiling"
)

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "image_load", "image_upscale").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Tool execution errors return a JSON-RPC error response with code -32000.
func (s *Server) handleToolsCall(req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	result, err := s.executeTool(params.Name, params.Arguments)
	if err != nil {
		s.log.WithError(err).WithField("tool", params.Name).Warn("Tool execution failed")
		return s.errorResponse(req.ID, -32000, "Tool execution failed", err.Error())
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
//
// Each tool handler:
//  1. Unmarshals arguments from JSON
//  2. Merges render options over the server defaults and validates them
//  3. Loads images from cache as needed
//  4. Plans or renders through a cached session
//  5. Returns the result or error
func (s *Server) executeTool(name string, args json.RawMessage) (interface{}, error) {
	switch name {
	// Basic Image Information
	case "image_load":
		return s.handleImageLoad(args)
	case "image_dimensions":
		return s.handleImageDimensions(args)

	// Rendering
	case "image_upscale":
		return s.handleImageUpscale(args)

	// Tile Inspection
	case "image_tile_plan":
		return s.handleImageTilePlan(args)
	case "image_tile_overlay":
		return s.handleImageTileOverlay(args)
	case "image_seam_report":
		return s.handleImageSeamReport(args)

	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message, data string) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// Panics are suppressed; on marshal failure, returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

// renderArgs are the render options every rendering or planning tool
// accepts. Unset fields keep the server defaults.
type renderArgs struct {
	Backend   *string  `json:"backend"`
	Model     *string  `json:"model"`
	Filter    *string  `json:"filter"`
	Scale     *int     `json:"scale"`
	Noise     *int     `json:"noise"`
	TileSize  *int     `json:"tile_size"`
	BatchSize *int     `json:"batch_size"`
	Blend     *float64 `json:"blend"`
	TTA       *bool    `json:"tta"`
}

// options merges the arguments over base and validates the result.
func (a renderArgs) options(base config.Options) (config.Options, error) {
	o := base
	if a.Backend != nil {
		o.Backend = *a.Backend
	}
	if a.Model != nil {
		o.Model = *a.Model
	}
	if a.Filter != nil {
		o.Filter = *a.Filter
	}
	if a.Scale != nil {
		o.Scale = *a.Scale
	}
	if a.Noise != nil {
		o.Noise = *a.Noise
	}
	if a.TileSize != nil {
		o.TileSize = *a.TileSize
	}
	if a.BatchSize != nil {
		o.BatchSize = *a.BatchSize
	}
	if a.Blend != nil {
		o.Blend = *a.Blend
	}
	if a.TTA != nil {
		o.TTA = *a.TTA
	}
	if err := o.Validate(); err != nil {
		return config.Options{}, err
	}
	return o, nil
}

// geometry returns the tile geometry of the RGB session for opts. The
// backend decides the output tile, so planning loads the model.
func (s *Server) geometry(opts config.Options) (tiling.Geometry, error) {
	sess, err := s.session(opts, 3)
	if err != nil {
		return tiling.Geometry{}, err
	}
	return sess.Geometry(), nil
}

// === Basic Image Information Handlers ===

type imageLoadArgs struct {
	Path string `json:"path"`
}

func (s *Server) handleImageLoad(args json.RawMessage) (interface{}, error) {
	var a imageLoadArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	return imgutil.LoadImageInfo(s.cache, a.Path)
}

func (s *Server) handleImageDimensions(args json.RawMessage) (interface{}, error) {
	var a imageLoadArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	return imgutil.GetDimensions(s.cache, a.Path)
}

// === Rendering Handlers ===

type imageUpscaleArgs struct {
	Path           string `json:"path"`
	OutputPath     string `json:"output_path"`
	OutputDir      string `json:"output_dir"`
	Preview        bool   `json:"preview"`
	PreviewMaxSide int    `json:"preview_max_side"`
	renderArgs
}

// UpscaleResult describes one rendered file.
type UpscaleResult struct {
	Input        string                `json:"input"`
	Output       string                `json:"output"`
	Width        int                   `json:"width"`
	Height       int                   `json:"height"`
	OutputWidth  int                   `json:"output_width"`
	OutputHeight int                   `json:"output_height"`
	Channels     int                   `json:"channels"`
	Options      config.Options        `json:"options"`
	Stats        *tiling.RenderStats   `json:"stats"`
	Preview      *imgutil.EncodedImage `json:"preview,omitempty"`
}

func (s *Server) handleImageUpscale(args json.RawMessage) (interface{}, error) {
	var a imageUpscaleArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.PreviewMaxSide == 0 {
		a.PreviewMaxSide = 512
	}
	opts, err := a.options(s.defaults)
	if err != nil {
		return nil, err
	}
	img, err := s.cache.Load(a.Path)
	if err != nil {
		return nil, err
	}
	channels := imgutil.ChannelsFor(img)
	sess, err := s.session(opts, channels)
	if err != nil {
		return nil, err
	}
	out, stats, err := imgutil.Render(sess, img)
	if err != nil {
		return nil, err
	}

	outPath := a.OutputPath
	if outPath == "" {
		outPath = opts.OutputPath(a.Path, a.OutputDir, ".png")
	}
	if err := imgutil.Save(outPath, out); err != nil {
		return nil, err
	}
	s.cache.Evict(outPath)

	s.log.WithFields(logrus.Fields{
		"input":  a.Path,
		"output": outPath,
		"tiles":  stats.TileCount,
		"took":   stats.Elapsed,
	}).Info("Upscaled image")

	bounds := img.Bounds()
	result := &UpscaleResult{
		Input:        a.Path,
		Output:       outPath,
		Width:        bounds.Dx(),
		Height:       bounds.Dy(),
		OutputWidth:  out.Bounds().Dx(),
		OutputHeight: out.Bounds().Dy(),
		Channels:     channels,
		Options:      opts,
		Stats:        stats,
	}
	if a.Preview {
		if result.Preview, err = imgutil.EncodePNG(out, a.PreviewMaxSide); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// === Tile Inspection Handlers ===

type imageTilePlanArgs struct {
	Path   string `json:"path"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	renderArgs
}

// TileInfo locates one tile of a plan.
type TileInfo struct {
	Index  int         `json:"index"`
	Row    int         `json:"row"`
	Column int         `json:"column"`
	Input  tiling.Rect `json:"input"`
	Output tiling.Rect `json:"output"`
}

// PlanResult is the tile layout for one image and set of options.
type PlanResult struct {
	Input        tiling.Size     `json:"input"`
	Output       tiling.Size     `json:"output"`
	Grid         tiling.Size     `json:"grid"`
	TileCount    int             `json:"tile_count"`
	StepCount    int             `json:"step_count"`
	BatchCount   int             `json:"batch_count"`
	PaddingSteps int             `json:"padding_steps"`
	Geometry     tiling.Geometry `json:"geometry"`
	Tiles        []TileInfo      `json:"tiles"`
}

// NewPlanResult describes plan with step and batch counts for opts.
func NewPlanResult(g tiling.Geometry, plan *tiling.Plan, opts config.Options) *PlanResult {
	steps := plan.TileCount()
	if opts.TTA {
		steps *= tiling.TTASize
	}
	batches := (steps + opts.BatchSize - 1) / opts.BatchSize
	return &PlanResult{
		Input:        plan.Input,
		Output:       plan.Output,
		Grid:         plan.Grid,
		TileCount:    plan.TileCount(),
		StepCount:    steps,
		BatchCount:   batches,
		PaddingSteps: batches*opts.BatchSize - steps,
		Geometry:     g,
		Tiles: lo.Map(plan.InputRects, func(r tiling.Rect, i int) TileInfo {
			return TileInfo{
				Index:  i,
				Row:    i / plan.Grid.W,
				Column: i % plan.Grid.W,
				Input:  r,
				Output: plan.OutputRects[i],
			}
		}),
	}
}

// plan resolves the canvas size from a path or explicit dimensions.
func (s *Server) plan(path string, width, height int, ra renderArgs) (*tiling.Plan, tiling.Geometry, config.Options, error) {
	opts, err := ra.options(s.defaults)
	if err != nil {
		return nil, tiling.Geometry{}, opts, err
	}
	if path != "" {
		dims, err := imgutil.GetDimensions(s.cache, path)
		if err != nil {
			return nil, tiling.Geometry{}, opts, err
		}
		width, height = dims.Width, dims.Height
	}
	g, err := s.geometry(opts)
	if err != nil {
		return nil, g, opts, err
	}
	plan, err := g.Plan(width, height)
	return plan, g, opts, err
}

func (s *Server) handleImageTilePlan(args json.RawMessage) (interface{}, error) {
	var a imageTilePlanArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.Path == "" && (a.Width <= 0 || a.Height <= 0) {
		return nil, fmt.Errorf("either path or positive width and height are required")
	}
	plan, g, opts, err := s.plan(a.Path, a.Width, a.Height, a.renderArgs)
	if err != nil {
		return nil, err
	}
	return NewPlanResult(g, plan, opts), nil
}

type imageTileOverlayArgs struct {
	Path      string `json:"path"`
	Space     string `json:"space"`
	ShowIndex *bool  `json:"show_index"`
	LineColor string `json:"line_color"`
	MaxSide   int    `json:"max_side"`
	renderArgs
}

func (s *Server) handleImageTileOverlay(args json.RawMessage) (interface{}, error) {
	var a imageTileOverlayArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.Space == "" {
		a.Space = "input"
	}
	if a.LineColor == "" {
		a.LineColor = "#FF0000"
	}
	if a.MaxSide == 0 {
		a.MaxSide = 1024
	}
	showIndex := true
	if a.ShowIndex != nil {
		showIndex = *a.ShowIndex
	}

	plan, _, _, err := s.plan(a.Path, 0, 0, a.renderArgs)
	if err != nil {
		return nil, err
	}
	img, err := s.cache.Load(a.Path)
	if err != nil {
		return nil, err
	}

	var (
		canvas image.Image
		rects  []tiling.Rect
	)
	switch a.Space {
	case "input":
		canvas, rects = img, plan.InputRects
	case "output":
		canvas = imaging.Resize(img, plan.Output.W, plan.Output.H, imaging.Linear)
		rects = plan.OutputRects
	default:
		return nil, fmt.Errorf("invalid space %q (want input or output)", a.Space)
	}
	return imgutil.TileOverlay(canvas, rects, showIndex, a.LineColor, a.MaxSide)
}

type imageSeamReportArgs struct {
	Path      string  `json:"path"`
	Threshold float64 `json:"threshold"`
	renderArgs
}

func (s *Server) handleImageSeamReport(args json.RawMessage) (interface{}, error) {
	var a imageSeamReportArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.Threshold == 0 {
		a.Threshold = 2.0
	}
	opts, err := a.options(s.defaults)
	if err != nil {
		return nil, err
	}
	g, err := s.geometry(opts)
	if err != nil {
		return nil, err
	}
	img, err := s.cache.Load(a.Path)
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	rects, _, err := tiling.OutputGrid(tiling.Size{W: b.Dx(), H: b.Dy()}, g.OutputTile, g.OutputOverlap)
	if err != nil {
		return nil, err
	}
	return imgutil.MeasureSeams(img, rects, a.Threshold)
}
