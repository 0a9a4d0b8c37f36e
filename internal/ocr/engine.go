package ocr

import (
	"context"

	"github.com/ironsheep/thermo-ocr/internal/imaging"
)

// Engine recognizes text in an image.
type Engine interface {
	// Recognize returns the raw text found in img. language is a Tesseract
	// language code; engines that do not use it ignore it.
	Recognize(ctx context.Context, img *imaging.Buffer, language string) (string, error)

	// Name identifies the engine in logs and status output.
	Name() string
}

// Info describes the OCR subsystem for status tools.
type Info struct {
	Engine       string `json:"engine"`
	Available    bool   `json:"available"`
	Version      string `json:"version,omitempty"`
	Model        string `json:"model,omitempty"`
	TessdataPath string `json:"tessdata_path,omitempty"`
	Error        string `json:"error,omitempty"`
}

// Bounds represents a rectangular bounding box in pixel coordinates.
type Bounds struct {
	X1 int `json:"x1"` // Left edge
	Y1 int `json:"y1"` // Top edge
	X2 int `json:"x2"` // Right edge
	Y2 int `json:"y2"` // Bottom edge
}

// TextRegion is a recognized word with its location and confidence.
type TextRegion struct {
	Text string `json:"text"`

	// Confidence is the OCR confidence score (0.0 to 1.0).
	Confidence float64 `json:"confidence"`

	Bounds Bounds `json:"bounds"`
}

// Result holds the full text of a region and its individual words.
type Result struct {
	FullText string       `json:"full_text"`
	Regions  []TextRegion `json:"regions"`
}

// Offset shifts every word's bounds by (dx, dy), mapping region-relative
// coordinates back onto the frame the region was cropped from.
func (r *Result) Offset(dx, dy int) {
	for i := range r.Regions {
		r.Regions[i].Bounds.X1 += dx
		r.Regions[i].Bounds.Y1 += dy
		r.Regions[i].Bounds.X2 += dx
		r.Regions[i].Bounds.Y2 += dy
	}
}
