package imaging

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
)

// ErrEmptyBuffer is returned when a buffer with zero width or height is requested.
var ErrEmptyBuffer = errors.New("empty image buffer")

// Channel depths supported by Buffer.
const (
	Gray = 1
	RGB  = 3
)

// Buffer is an immutable pixel buffer.
//
// Pixels are stored row-major with Channels bytes per pixel. The zero value is
// an empty buffer.
type Buffer struct {
	width    int
	height   int
	channels int
	pix      []uint8
}

// NewGray creates a single-channel buffer from a copy of pix.
//
// len(pix) must equal width*height.
func NewGray(width, height int, pix []uint8) (*Buffer, error) {
	return newBuffer(width, height, Gray, pix)
}

// NewRGB creates a three-channel buffer from a copy of pix (R, G, B per pixel).
func NewRGB(width, height int, pix []uint8) (*Buffer, error) {
	return newBuffer(width, height, RGB, pix)
}

func newBuffer(width, height, channels int, pix []uint8) (*Buffer, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrEmptyBuffer, width, height)
	}
	if len(pix) != width*height*channels {
		return nil, fmt.Errorf("pixel data length %d does not match %dx%dx%d", len(pix), width, height, channels)
	}
	owned := make([]uint8, len(pix))
	copy(owned, pix)
	return &Buffer{width: width, height: height, channels: channels, pix: owned}, nil
}

// FromImage copies img into a new Buffer.
//
// *image.Gray sources produce a grayscale buffer; every other color model is
// converted to 8-bit RGB with alpha discarded. The buffer origin is always
// (0, 0) regardless of img.Bounds().Min.
func FromImage(img image.Image) *Buffer {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= 0 || h <= 0 {
		return &Buffer{}
	}

	if g, ok := img.(*image.Gray); ok {
		pix := make([]uint8, w*h)
		for y := 0; y < h; y++ {
			off := g.PixOffset(bounds.Min.X, bounds.Min.Y+y)
			copy(pix[y*w:(y+1)*w], g.Pix[off:off+w])
		}
		return &Buffer{width: w, height: h, channels: Gray, pix: pix}
	}

	pix := make([]uint8, w*h*RGB)
	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			pix[i], pix[i+1], pix[i+2] = c.R, c.G, c.B
			i += RGB
		}
	}
	return &Buffer{width: w, height: h, channels: RGB, pix: pix}
}

// GrayFromImage copies img into a new single-channel Buffer using
// color.GrayModel. Images whose color channels are already equal (such as the
// RGBA output of per-channel filters applied to a gray source) convert exactly.
func GrayFromImage(img image.Image) *Buffer {
	if g, ok := img.(*image.Gray); ok {
		return FromImage(g)
	}
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= 0 || h <= 0 {
		return &Buffer{}
	}
	pix := make([]uint8, 0, w*h)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			pix = append(pix, color.GrayModel.Convert(img.At(x, y)).(color.Gray).Y)
		}
	}
	return &Buffer{width: w, height: h, channels: Gray, pix: pix}
}

// Width returns the buffer width in pixels.
func (b *Buffer) Width() int { return b.width }

// Height returns the buffer height in pixels.
func (b *Buffer) Height() int { return b.height }

// Channels returns 1 for grayscale buffers and 3 for RGB buffers.
func (b *Buffer) Channels() int { return b.channels }

// Empty reports whether the buffer has no pixels.
func (b *Buffer) Empty() bool {
	return b == nil || b.width <= 0 || b.height <= 0 || len(b.pix) == 0
}

// Pix returns a copy of the raw pixel data.
func (b *Buffer) Pix() []uint8 {
	out := make([]uint8, len(b.pix))
	copy(out, b.pix)
	return out
}

// GrayAt returns the value of a grayscale pixel. For RGB buffers it returns the
// red channel. Out-of-range coordinates return 0.
func (b *Buffer) GrayAt(x, y int) uint8 {
	if x < 0 || y < 0 || x >= b.width || y >= b.height {
		return 0
	}
	return b.pix[(y*b.width+x)*b.channels]
}

// Equal reports whether two buffers have identical geometry and pixels.
func (b *Buffer) Equal(other *Buffer) bool {
	if b.Empty() || other.Empty() {
		return b.Empty() && other.Empty()
	}
	return b.width == other.width && b.height == other.height &&
		b.channels == other.channels && bytes.Equal(b.pix, other.pix)
}

// Image returns a fresh image.Image holding a copy of the buffer: *image.Gray
// for grayscale buffers and *image.NRGBA (opaque) for RGB buffers.
func (b *Buffer) Image() image.Image {
	rect := image.Rect(0, 0, b.width, b.height)
	if b.channels == Gray {
		g := image.NewGray(rect)
		copy(g.Pix, b.pix)
		return g
	}
	out := image.NewNRGBA(rect)
	for i, j := 0, 0; i < len(b.pix); i, j = i+RGB, j+4 {
		out.Pix[j], out.Pix[j+1], out.Pix[j+2], out.Pix[j+3] = b.pix[i], b.pix[i+1], b.pix[i+2], 255
	}
	return out
}

// EncodePNG encodes the buffer as PNG.
func (b *Buffer) EncodePNG() ([]byte, error) {
	if b.Empty() {
		return nil, ErrEmptyBuffer
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, b.Image()); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodedImage is a buffer rendered as base64 PNG for transport over MCP.
type EncodedImage struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type"`
}

// EncodeBase64 renders the buffer as a base64 PNG.
func (b *Buffer) EncodeBase64() (*EncodedImage, error) {
	data, err := b.EncodePNG()
	if err != nil {
		return nil, err
	}
	return &EncodedImage{
		Width:       b.width,
		Height:      b.height,
		ImageBase64: base64.StdEncoding.EncodeToString(data),
		MimeType:    "image/png",
	}, nil
}
