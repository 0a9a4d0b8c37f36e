// Package imaging provides the pixel containers and region handling used by the
// sampling pipeline.
//
// A Buffer is an owned, immutable pixel buffer with either one (grayscale) or
// three (RGB) channels. Buffers are produced by cropping a camera frame to a
// Region and are never mutated after creation: every transform in the
// preprocess package returns a new Buffer.
//
// # Coordinate System
//
// All pixel coordinates in this package are 0-based:
//   - X: horizontal position (0 = leftmost pixel)
//   - Y: vertical position (0 = topmost pixel)
//   - A Region is (X, Y, Width, Height) with (X, Y) the inclusive top-left corner
//
// # Regions
//
// Regions are clamped to the source frame bounds before cropping. A Region whose
// clamped area is zero is invalid and Crop reports ErrEmptyRegion so callers can
// short-circuit before any pipeline work.
//
// # Inspection
//
// Stats summarises a buffer (mean color, gray range, Otsu threshold) and
// Annotate draws a coordinate grid and the selection outline onto a frame.
// Both exist to help pick a region and tune preprocessing.
//
// # Thread Safety
//
// Buffer is immutable and safe to share between goroutines. FrameCache is safe
// for concurrent use.
//
// # Supported Formats
//
// Frames loaded from disk may be PNG, JPEG, GIF, BMP, TIFF or WebP.
package imaging
