package ocr

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/otiai10/gosseract/v2"

	"github.com/ironsheep/thermo-ocr/internal/imaging"
)

// DefaultLanguage is the Tesseract language used when none is configured.
const DefaultLanguage = "tur"

// Tesseract recognizes text with a local Tesseract installation.
//
// A new gosseract client is created for each call, so a Tesseract value is
// safe for concurrent use.
type Tesseract struct {
	// TessdataPrefix overrides the traineddata directory when non-empty.
	TessdataPrefix string

	// PageSegMode is passed to Tesseract; zero means PSM_SINGLE_BLOCK.
	PageSegMode gosseract.PageSegMode
}

// NewTesseract creates a Tesseract engine. An empty tessdataPrefix uses
// TESSDATA_PREFIX from the environment, or Tesseract's compiled-in default.
func NewTesseract(tessdataPrefix string) *Tesseract {
	if tessdataPrefix == "" {
		tessdataPrefix = os.Getenv("TESSDATA_PREFIX")
	}
	return &Tesseract{TessdataPrefix: tessdataPrefix}
}

// Name implements Engine.
func (t *Tesseract) Name() string { return "tesseract" }

// Recognize implements Engine.
func (t *Tesseract) Recognize(ctx context.Context, img *imaging.Buffer, language string) (string, error) {
	client, err := t.client(ctx, img, language)
	if err != nil {
		return "", err
	}
	defer client.Close()

	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("OCR failed: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return text, nil
}

// RecognizeWords returns the full text of img plus each word with its
// bounding box and confidence. Bounds are relative to img.
func (t *Tesseract) RecognizeWords(ctx context.Context, img *imaging.Buffer, language string) (*Result, error) {
	client, err := t.client(ctx, img, language)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	text, err := client.Text()
	if err != nil {
		return nil, fmt.Errorf("OCR failed: %w", err)
	}

	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		// Return just text if boxes fail
		return &Result{FullText: text, Regions: []TextRegion{}}, nil
	}

	regions := make([]TextRegion, 0, len(boxes))
	for _, box := range boxes {
		if box.Word == "" {
			continue
		}
		regions = append(regions, TextRegion{
			Text:       box.Word,
			Confidence: float64(box.Confidence) / 100.0,
			Bounds: Bounds{
				X1: box.Box.Min.X,
				Y1: box.Box.Min.Y,
				X2: box.Box.Max.X,
				Y2: box.Box.Max.Y,
			},
		})
	}
	return &Result{FullText: text, Regions: regions}, nil
}

// client prepares a gosseract client loaded with img. The caller closes it.
func (t *Tesseract) client(ctx context.Context, img *imaging.Buffer, language string) (*gosseract.Client, error) {
	if img.Empty() {
		return nil, imaging.ErrEmptyBuffer
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if language == "" {
		language = DefaultLanguage
	}

	data, err := img.EncodePNG()
	if err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}

	client := gosseract.NewClient()
	if t.TessdataPrefix != "" {
		client.TessdataPrefix = t.TessdataPrefix
	}
	if err := client.SetLanguage(language); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set language: %w", err)
	}
	psm := t.PageSegMode
	if psm == 0 {
		psm = gosseract.PSM_SINGLE_BLOCK
	}
	if err := client.SetPageSegMode(psm); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set page segmentation mode: %w", err)
	}
	if err := client.SetImageFromBytes(data); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set image: %w", err)
	}
	return client, nil
}

// Info reports the installed Tesseract version.
func (t *Tesseract) Info() Info {
	info := Info{Engine: t.Name(), TessdataPath: t.TessdataPrefix}
	version, err := tesseractVersion()
	if err != nil {
		info.Error = err.Error()
		return info
	}
	info.Available = true
	info.Version = version
	return info
}

func tesseractVersion() (version string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tesseract unavailable: %v", r)
		}
	}()
	client := gosseract.NewClient()
	defer client.Close()
	version = client.Version()
	if version == "" {
		return "", errors.New("tesseract reported no version")
	}
	return version, nil
}
