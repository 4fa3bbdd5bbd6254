// Package backend provides tiling.Backend implementations.
//
// ONNX runs a waifu2x-style model through onnxruntime, packing each batch
// into a single NCHW float32 tensor. Resample needs no model and scales
// tiles with a classic interpolation filter; it is useful for previews and
// for exercising the tiling pipeline without a GPU.
//
// Backends are not safe for concurrent use. A tiling.Session owns its
// backend for its whole lifetime.
package backend
