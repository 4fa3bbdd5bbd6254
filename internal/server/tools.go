package server

import (
	"maps"

	"github.com/ironsheep/image-upscale-mcp/internal/backend"
	"github.com/ironsheep/image-upscale-mcp/internal/config"
)

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// renderProperties describes the render options shared by every rendering
// and planning tool, merged with the tool's own properties.
func renderProperties(own map[string]interface{}) map[string]interface{} {
	models := make([]string, 0, len(config.Models))
	for _, m := range config.Models {
		models = append(models, m.Name)
	}
	props := map[string]interface{}{
		"backend": map[string]interface{}{
			"type":        "string",
			"enum":        []string{config.BackendONNX, config.BackendResample},
			"description": "Inference backend: an ONNX model or a model-free resampling filter. Defaults to the server setting",
		},
		"model": map[string]interface{}{
			"type":        "string",
			"enum":        models,
			"description": "Model family under the model directory (onnx backend only)",
		},
		"filter": map[string]interface{}{
			"type":        "string",
			"enum":        backend.ResampleFilters(),
			"description": "Interpolation filter (resample backend only)",
		},
		"scale": map[string]interface{}{
			"type":        "integer",
			"enum":        config.ScaleChoices,
			"description": "Upscaling factor",
		},
		"noise": map[string]interface{}{
			"type":        "integer",
			"enum":        config.NoiseChoices,
			"description": "Denoise level, -1 for none (onnx backend only)",
		},
		"tile_size": map[string]interface{}{
			"type":        "integer",
			"enum":        config.TileSizeChoices,
			"description": "Input tile edge in pixels",
		},
		"batch_size": map[string]interface{}{
			"type":        "integer",
			"description": "Tiles per backend call",
		},
		"blend": map[string]interface{}{
			"type":        "number",
			"enum":        config.BlendChoices,
			"description": "Fraction of a tile shared with each neighbour and cross-faded (0.125, 0.0625, 0.03125 or 0)",
		},
		"tta": map[string]interface{}{
			"type":        "boolean",
			"description": "Average all 8 flips and rotations of every tile",
		},
	}
	maps.Copy(props, own)
	return props
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		// Basic Image Information
		{
			Name:        "image_load",
			Description: "Load an image file and return its dimensions, format and the channel count it will be rendered with.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to the image file",
					},
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "image_dimensions",
			Description: "Get the width and height of an image file.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to the image file",
					},
				},
				"required": []string{"path"},
			},
		},

		// Rendering
		{
			Name:        "image_upscale",
			Description: "Upscale an image tile by tile, blending overlapping tiles, and save the result. Returns the output path, sizes and render statistics.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": renderProperties(map[string]interface{}{
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to the source image",
					},
					"output_path": map[string]interface{}{
						"type":        "string",
						"description": "Where to write the result (.png, .jpg or .bmp). Defaults to the source name tagged with the render settings",
					},
					"output_dir": map[string]interface{}{
						"type":        "string",
						"description": "Directory for the default output name. Defaults to the source directory",
					},
					"preview": map[string]interface{}{
						"type":        "boolean",
						"description": "Also return a base64 PNG preview of the result",
						"default":     false,
					},
					"preview_max_side": map[string]interface{}{
						"type":        "integer",
						"description": "Longest preview side in pixels. Default 512",
						"default":     512,
					},
				}),
				"required": []string{"path"},
			},
		},

		// Tile Inspection
		{
			Name:        "image_tile_plan",
			Description: "Compute the tile layout for an image (or a width and height) without rendering: grid, input and output rectangles, and batch counts.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": renderProperties(map[string]interface{}{
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to the image file. Optional when width and height are given",
					},
					"width": map[string]interface{}{
						"type":        "integer",
						"description": "Canvas width when no path is given",
					},
					"height": map[string]interface{}{
						"type":        "integer",
						"description": "Canvas height when no path is given",
					},
				}),
			},
		},
		{
			Name:        "image_tile_overlay",
			Description: "Draw the tile rectangles of a plan over the image and return it as base64-encoded PNG. In output space the image is first resized to the output size.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": renderProperties(map[string]interface{}{
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to the source image",
					},
					"space": map[string]interface{}{
						"type":        "string",
						"enum":        []string{"input", "output"},
						"description": "Draw input-space sampling rectangles or output-space write rectangles",
						"default":     "input",
					},
					"show_index": map[string]interface{}{
						"type":        "boolean",
						"description": "Label each tile with its index",
						"default":     true,
					},
					"line_color": map[string]interface{}{
						"type":        "string",
						"description": "Outline color as hex (e.g. '#FF0000')",
						"default":     "#FF0000",
					},
					"max_side": map[string]interface{}{
						"type":        "integer",
						"description": "Longest side of the returned PNG. Default 1024",
						"default":     1024,
					},
				}),
				"required": []string{"path"},
			},
		},
		{
			Name:        "image_seam_report",
			Description: "Measure how visible tile boundaries are in a rendered image: CIE Lab color steps across each boundary compared with the image-wide neighbour difference.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": renderProperties(map[string]interface{}{
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to the rendered image",
					},
					"threshold": map[string]interface{}{
						"type":        "number",
						"description": "Flag boundaries whose step exceeds this multiple of the baseline. Default 2.0",
						"default":     2.0,
					},
				}),
				"required": []string{"path"},
			},
		},
	}
}

// handleToolsList returns the list of available tools
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": GetToolDefinitions(),
		},
	}
}
