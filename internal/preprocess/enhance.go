package preprocess

import (
	"image"

	"github.com/anthonynsimon/bild/adjust"
	"github.com/anthonynsimon/bild/convolution"
)

// smoothKernel is the 3x3 smoothing filter whose output serves as the
// degenerate image for sharpness enhancement.
var smoothKernel = func() *convolution.Kernel {
	k := convolution.NewKernel(3, 3)
	for i := range k.Matrix {
		k.Matrix[i] = 1.0 / 13.0
	}
	k.Matrix[4] = 5.0 / 13.0
	return k
}()

// enhance applies contrast, brightness and sharpness in that order. A factor
// of exactly 1.0 leaves the image untouched.
func enhance(g *image.Gray, p Params) *image.Gray {
	if p.Contrast != 1.0 {
		g = toGray(adjust.Contrast(g, p.Contrast-1.0))
	}
	if p.Brightness != 1.0 {
		g = toGray(adjust.Brightness(g, p.Brightness-1.0))
	}
	if p.Sharpness != 1.0 {
		g = sharpen(g, p.Sharpness)
	}
	return g
}

// sharpen blends g with its smoothed version: out = smooth + factor*(g - smooth).
// Factors above 1 sharpen, below 1 soften. The one-pixel border is copied
// unchanged.
func sharpen(g *image.Gray, factor float64) *image.Gray {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	if w < 3 || h < 3 {
		return g
	}
	smooth := toGray(convolution.Convolve(g, smoothKernel, &convolution.Options{KeepAlpha: true}))

	out := image.NewGray(g.Rect)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*g.Stride + x
			if x == 0 || y == 0 || x == w-1 || y == h-1 {
				out.Pix[i] = g.Pix[i]
				continue
			}
			s := float64(smooth.Pix[y*smooth.Stride+x])
			out.Pix[i] = clampUint8(s + factor*(float64(g.Pix[i])-s))
		}
	}
	return out
}
