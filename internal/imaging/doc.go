// Package imaging bridges image files and the tiling pipeline.
//
// It decodes source images (PNG, JPEG, GIF, BMP, TIFF, WebP) through a
// shared cache, converts them to and from tiling.Buffer, writes rendered
// results to disk and produces the inspection images and reports served by
// the MCP tools.
//
// # Coordinate System
//
// All pixel coordinates are 0-based with (0,0) at the top-left corner, X
// increasing rightward and Y increasing downward. Rectangles include their
// top-left corner and exclude their bottom-right.
//
// # Value Range
//
// Buffers hold channel values in [0,1]. Converting back to an image scales
// by 255, rounds and clamps, so out-of-range model output saturates instead
// of wrapping.
//
// # Thread Safety
//
// ImageCache is safe for concurrent use. The other functions are stateless
// and may run concurrently on different images.
package imaging
