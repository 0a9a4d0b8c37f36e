package imaging

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strconv"
)

// Default overlay colors.
var (
	DefaultGridColor   = color.RGBA{255, 0, 0, 128}
	DefaultRegionColor = color.RGBA{0, 255, 0, 255}
)

// AnnotateOptions controls how Annotate draws on a frame.
type AnnotateOptions struct {
	// GridSpacing is the distance between grid lines in pixels. Zero disables the grid.
	GridSpacing int
	// ShowCoordinates labels each grid intersection with "x,y".
	ShowCoordinates bool
	GridColor       color.RGBA
	RegionColor     color.RGBA
}

// Annotate returns an RGB copy of frame with an optional coordinate grid and
// the outline of region drawn on top. The region is clamped to the frame; an
// empty region draws no outline. It is used to choose a selection rectangle.
func Annotate(frame *Buffer, region Region, opts AnnotateOptions) (*Buffer, error) {
	if frame.Empty() {
		return nil, ErrEmptyBuffer
	}
	if opts.GridColor == (color.RGBA{}) {
		opts.GridColor = DefaultGridColor
	}
	if opts.RegionColor == (color.RGBA{}) {
		opts.RegionColor = DefaultRegionColor
	}

	src := frame.Image()
	bounds := src.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	result := image.NewRGBA(bounds)
	draw.Draw(result, bounds, src, bounds.Min, draw.Src)

	if opts.GridSpacing > 0 {
		for x := opts.GridSpacing; x < width; x += opts.GridSpacing {
			for y := 0; y < height; y++ {
				blend(result, x, y, opts.GridColor)
			}
		}
		for y := opts.GridSpacing; y < height; y += opts.GridSpacing {
			for x := 0; x < width; x++ {
				blend(result, x, y, opts.GridColor)
			}
		}

		if opts.ShowCoordinates {
			fg := color.RGBA{255, 255, 255, 255}
			bg := color.RGBA{0, 0, 0, 255}
			for y := opts.GridSpacing; y < height; y += opts.GridSpacing {
				for x := opts.GridSpacing; x < width; x += opts.GridSpacing {
					drawLabel(result, x+2, y+2, fmt.Sprintf("%d,%d", x, y), fg, bg)
				}
			}
		}
	}

	if r := region.Clamp(width, height); !r.Empty() {
		x2, y2 := r.X+r.Width-1, r.Y+r.Height-1
		for x := r.X; x <= x2; x++ {
			result.SetRGBA(x, r.Y, opts.RegionColor)
			result.SetRGBA(x, y2, opts.RegionColor)
		}
		for y := r.Y; y <= y2; y++ {
			result.SetRGBA(r.X, y, opts.RegionColor)
			result.SetRGBA(x2, y, opts.RegionColor)
		}
	}

	return FromImage(result), nil
}

// blend draws c over the pixel at (x, y) using c's alpha.
func blend(img *image.RGBA, x, y int, c color.RGBA) {
	dst := img.RGBAAt(x, y)
	a := uint32(c.A)
	mix := func(s, d uint8) uint8 {
		return uint8((uint32(s)*a + uint32(d)*(255-a)) / 255)
	}
	img.SetRGBA(x, y, color.RGBA{mix(c.R, dst.R), mix(c.G, dst.G), mix(c.B, dst.B), 255})
}

// ParseHexColor parses "#RRGGBB" or "#RRGGBBAA".
func ParseHexColor(hex string) (color.RGBA, error) {
	if len(hex) > 0 && hex[0] == '#' {
		hex = hex[1:]
	}
	if len(hex) != 6 && len(hex) != 8 {
		return color.RGBA{}, fmt.Errorf("invalid hex color %q", hex)
	}
	val, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid hex color %q: %w", hex, err)
	}
	if len(hex) == 6 {
		return color.RGBA{uint8(val >> 16), uint8(val >> 8), uint8(val), 255}, nil
	}
	return color.RGBA{uint8(val >> 24), uint8(val >> 16), uint8(val >> 8), uint8(val)}, nil
}

// 3x5 glyphs for coordinate labels.
var glyphs = map[rune][5]string{
	'0': {"111", "101", "101", "101", "111"},
	'1': {"010", "110", "010", "010", "111"},
	'2': {"111", "001", "111", "100", "111"},
	'3': {"111", "001", "111", "001", "111"},
	'4': {"101", "101", "111", "001", "001"},
	'5': {"111", "100", "111", "001", "111"},
	'6': {"111", "100", "111", "101", "111"},
	'7': {"111", "001", "001", "001", "001"},
	'8': {"111", "101", "111", "101", "111"},
	'9': {"111", "101", "111", "001", "111"},
	',': {"000", "000", "000", "010", "010"},
}

func drawLabel(img *image.RGBA, x, y int, text string, fg, bg color.RGBA) {
	const charWidth, labelHeight = 4, 7
	bounds := img.Bounds()
	set := func(px, py int, c color.RGBA) {
		if image.Pt(px, py).In(bounds) {
			img.SetRGBA(px, py, c)
		}
	}

	for dy := -1; dy < labelHeight; dy++ {
		for dx := -1; dx < len(text)*charWidth; dx++ {
			set(x+dx, y+dy, bg)
		}
	}

	cx := x
	for _, ch := range text {
		if glyph, ok := glyphs[ch]; ok {
			for row, line := range glyph {
				for col, p := range line {
					if p == '1' {
						set(cx+col, y+row, fg)
					}
				}
			}
		}
		cx += charWidth
	}
}
