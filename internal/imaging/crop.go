package imaging

import (
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// ErrEmptyRegion is returned when a region has zero area after clamping.
var ErrEmptyRegion = errors.New("region has zero area")

// Region is a rectangular crop area inside a frame.
type Region struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Empty reports whether the region has zero (or negative) area.
func (r Region) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Rect converts the region to an image.Rectangle.
func (r Region) Rect() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

func (r Region) String() string {
	return fmt.Sprintf("(%d,%d %dx%d)", r.X, r.Y, r.Width, r.Height)
}

// Clamp returns the region shifted to non-negative coordinates and trimmed to
// a frame of the given size.
func (r Region) Clamp(frameWidth, frameHeight int) Region {
	x1, y1 := max(r.X, 0), max(r.Y, 0)
	x2 := min(r.X+r.Width, frameWidth)
	y2 := min(r.Y+r.Height, frameHeight)
	if x2 <= x1 || y2 <= y1 {
		return Region{X: x1, Y: y1}
	}
	return Region{X: x1, Y: y1, Width: x2 - x1, Height: y2 - y1}
}

// Crop extracts region from frame, clamping it to the frame bounds first.
//
// Returns ErrEmptyBuffer if frame is empty and ErrEmptyRegion if the clamped
// region has zero area.
func Crop(frame *Buffer, region Region) (*Buffer, error) {
	if frame.Empty() {
		return nil, ErrEmptyBuffer
	}
	clamped := region.Clamp(frame.Width(), frame.Height())
	if clamped.Empty() {
		return nil, fmt.Errorf("%w: %s inside %dx%d frame", ErrEmptyRegion, region, frame.Width(), frame.Height())
	}

	src := frame.Image()
	if frame.Channels() == Gray {
		g := src.(*image.Gray).SubImage(clamped.Rect())
		return FromImage(g), nil
	}
	return FromImage(imaging.Crop(src, clamped.Rect())), nil
}
