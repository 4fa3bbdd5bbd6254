package tiling

import "errors"

// Error kinds returned by the engine. All of them abort the current render;
// callers match them with errors.Is.
var (
	// ErrInvalidGeometry reports tiling parameters that cannot produce a
	// covering tile grid.
	ErrInvalidGeometry = errors.New("invalid tile geometry")

	// ErrInvalidRegion reports a sampling rectangle with no overlap with the
	// source image.
	ErrInvalidRegion = errors.New("invalid sampling region")

	// ErrInferenceFailure wraps any failure of a backend batch call.
	ErrInferenceFailure = errors.New("inference failure")

	// ErrConfigurationMismatch reports buffers whose shape disagrees with the
	// configured tile shapes.
	ErrConfigurationMismatch = errors.New("configuration mismatch")
)
