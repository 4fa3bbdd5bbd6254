// Package tiling splits images that are too large for a fixed-size network
// input into overlapping tiles, runs them through an inference backend in
// fixed-size batches, and reassembles the outputs into one seamless canvas.
//
// # Pipeline
//
// A render walks a linear step index that interleaves tile index and
// augmentation index:
//
//	tile         = step / stepsPerTile
//	augmentation = step % stepsPerTile
//
// stepsPerTile is 8 with test-time augmentation enabled and 1 otherwise.
// Steps are grouped into batches of the configured size; the final batch is
// padded with zero tiles. Every step pushes one entry on a PendingQueue, and
// draining a returned batch pops entries in the same order, which is the only
// link between a backend output slot and the tile it belongs to.
//
// # Geometry
//
// Input tiles are laid out with a fixed step of (scaledInputTile - overlap)
// and centred so that the border the network sees around the useful region
// is split evenly. Input rectangles may start at negative coordinates or run
// past the image; Extract fills those parts by repeating edge pixels.
// Output rectangles step by (outputTile - scaledOutputOverlap) and are
// clipped to the canvas.
//
// The output tile is whatever the model produces for one input tile. A
// backend implementing OutputShaper reports it; models that trim a border
// then give a scaledInputTile smaller than the input tile, and the
// difference is the context split around each tile.
//
// # Blending
//
// Tiles are faded with linear alpha ramps on every side that has a
// neighbour. The ramps of two neighbours sum to exactly 1 across the shared
// strip, so weighted tiles are added into a zeroed canvas with no separate
// normalisation pass.
//
// # Concurrency
//
// A Session is not safe for concurrent use. Independent sessions, each with
// their own backend, may run in parallel.
package tiling
