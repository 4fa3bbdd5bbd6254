// Package server implements the MCP (Model Context Protocol) server for tiled image upscaling.
//
// This package provides a JSON-RPC 2.0 server that exposes the tiling
// pipeline through the MCP protocol, so MCP-compatible clients can upscale
// images and inspect how an image is cut into tiles.
//
// # Protocol
//
// The server communicates over stdio using JSON-RPC 2.0:
//   - Input: JSON-RPC requests on stdin (one per line)
//   - Output: JSON-RPC responses on stdout
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// # Available Tools
//
// Basic Image Information:
//   - image_load: Load image and get metadata
//   - image_dimensions: Get width and height
//
// Rendering:
//   - image_upscale: Render an image through the tile pipeline and save it
//
// Tile Inspection:
//   - image_tile_plan: Tile grid, rectangles and batch counts
//   - image_tile_overlay: Tile rectangles drawn over the image
//   - image_seam_report: Color steps across tile boundaries of a render
//
// Every rendering and planning tool accepts the render options (backend,
// model, filter, scale, noise, tile_size, batch_size, blend, tta). Unset
// options fall back to the server defaults.
//
// # Sessions
//
// Rendering sessions are cached by their options and channel count. Each
// session owns its backend, so a loaded model is reused across calls and
// released by Close. A backend that rejects an alpha channel renders
// transparent images through its RGB session; alpha is resized on its own.
// Planning tools build the session too, since the model decides the output
// tile.
//
// # Image Caching
//
// The server maintains an in-memory cache of loaded images. Images are cached
// by path and reused across multiple tool calls. Files written by
// image_upscale are evicted so a later call reads the new contents.
//
// # Error Handling
//
// Tool execution errors are returned as JSON-RPC error responses with:
//   - code: -32000 (tool execution failure) or standard JSON-RPC codes
//   - message: Human-readable error description
//   - data: Additional error details (typically the Go error string)
//
// # Usage
//
//	srv := server.New(server.WithLogger(log), server.WithDefaults(opts))
//	if err := srv.Run(); err != nil {
//	    log.Fatal(err)
//	}
package server
