// Package camera supplies the frames and the region the sampler reads.
//
// Device captures from a local camera index or an RTSP stream through
// OpenCV (gocv). A capture goroutine keeps only the most recent frame, so
// CurrentFrame never blocks on the camera.
//
// Snapshot serves a frame from an image file instead, re-reading it only
// when the file changes. It is useful for headless testing and for cameras
// that write stills to disk.
//
// Selection holds the OCR region. It is safe for concurrent use and returns
// copies, so a sampling cycle can take a stable snapshot of it.
package camera

import "github.com/ironsheep/thermo-ocr/internal/imaging"

// Frames is anything that can report its latest frame. CurrentFrame returns
// nil when no frame is available.
type Frames interface {
	CurrentFrame() *imaging.Buffer
}

// Source pairs a frame provider with a region selection.
type Source struct {
	Frames
	*Selection
}
