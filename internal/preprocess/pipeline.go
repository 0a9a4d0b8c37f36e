package preprocess

import (
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/ironsheep/thermo-ocr/internal/imaging"
)

// ErrInvalidInput is returned when the pipeline receives an empty buffer.
var ErrInvalidInput = errors.New("invalid input")

// Process runs the preprocessing pipeline on b and returns a new binary
// grayscale buffer. The input is never modified.
//
// Stages run in a fixed order:
//
//  1. Grayscale conversion (BT.601)
//  2. Contrast, then brightness, then sharpness
//  3. Non-local means denoising when Denoise > 0
//  4. Adaptive Gaussian threshold, or a global threshold at Threshold
//  5. Erode (Erode-1 iterations), then dilate (Dilate-1 iterations)
//  6. Inversion when Invert is set
//
// Reordering the stages changes the output. Parameters are clamped with
// Params.Clamped before use. Identical inputs always produce identical output.
func Process(b *imaging.Buffer, p Params) (*imaging.Buffer, error) {
	if b.Empty() {
		return nil, fmt.Errorf("%w: empty image buffer", ErrInvalidInput)
	}
	p = p.Clamped()

	g := grayImage(imaging.Grayscale(b))
	g = enhance(g, p)
	if p.Denoise > 0 {
		g = denoise(g, float64(p.Denoise))
	}
	if p.Adaptive {
		g = adaptiveThreshold(g, adaptiveBlockSize, adaptiveOffset)
	} else {
		g = threshold(g, uint8(p.Threshold))
	}
	if p.Erode > 1 {
		g = erode(g, p.Erode-1)
	}
	if p.Dilate > 1 {
		g = dilate(g, p.Dilate-1)
	}
	if p.Invert {
		g = invert(g)
	}
	return imaging.FromImage(g), nil
}

// grayImage returns the single-channel buffer as an *image.Gray with origin (0, 0).
func grayImage(b *imaging.Buffer) *image.Gray {
	if g, ok := b.Image().(*image.Gray); ok {
		return g
	}
	return toGray(b.Image())
}

// toGray copies img into a new *image.Gray with origin (0, 0). The per-channel
// filters used by the pipeline return RGBA images with equal color channels,
// so the red channel is taken directly.
func toGray(img image.Image) *image.Gray {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))

	switch src := img.(type) {
	case *image.Gray:
		for y := 0; y < h; y++ {
			off := src.PixOffset(bounds.Min.X, bounds.Min.Y+y)
			copy(out.Pix[y*out.Stride:y*out.Stride+w], src.Pix[off:off+w])
		}
	case *image.RGBA:
		for y := 0; y < h; y++ {
			off := src.PixOffset(bounds.Min.X, bounds.Min.Y+y)
			for x := 0; x < w; x++ {
				out.Pix[y*out.Stride+x] = src.Pix[off+x*4]
			}
		}
	default:
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				out.Set(x, y, img.At(bounds.Min.X+x, bounds.Min.Y+y))
			}
		}
	}
	return out
}

func clampUint8(v float64) uint8 {
	return uint8(math.Round(math.Min(math.Max(v, 0), 255)))
}
