package preprocess

import (
	"image"
	"math"

	"github.com/anthonynsimon/bild/convolution"
	"github.com/anthonynsimon/bild/effect"
)

// Adaptive threshold neighbourhood: 11x11 Gaussian window, mean offset 2.
const (
	adaptiveBlockSize = 11
	adaptiveOffset    = 2
)

// threshold maps pixels at or above level to 255 and all others to 0.
func threshold(g *image.Gray, level uint8) *image.Gray {
	out := image.NewGray(g.Rect)
	for i, v := range g.Pix {
		if v >= level {
			out.Pix[i] = 255
		}
	}
	return out
}

// adaptiveThreshold binarizes against a Gaussian-weighted local mean: a pixel
// becomes white when it is brighter than mean-offset of its block x block
// neighbourhood. Edges are replicated.
func adaptiveThreshold(g *image.Gray, block int, offset int) *image.Gray {
	mean := toGray(convolution.Convolve(g, gaussianKernel(block), &convolution.Options{KeepAlpha: true}))

	out := image.NewGray(g.Rect)
	for i, v := range g.Pix {
		if int(v) > int(mean.Pix[i])-offset {
			out.Pix[i] = 255
		}
	}
	return out
}

// gaussianKernel builds a normalized size x size Gaussian kernel using the
// sigma OpenCV derives from the aperture: 0.3*((size-1)*0.5-1)+0.8.
func gaussianKernel(size int) *convolution.Kernel {
	sigma := 0.3*((float64(size)-1)*0.5-1) + 0.8
	half := size / 2

	weights := make([]float64, size)
	sum := 0.0
	for i := range weights {
		d := float64(i - half)
		weights[i] = math.Exp(-(d * d) / (2 * sigma * sigma))
		sum += weights[i]
	}
	for i := range weights {
		weights[i] /= sum
	}

	k := convolution.NewKernel(size, size)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			k.Matrix[y*size+x] = weights[y] * weights[x]
		}
	}
	return k
}

// invert flips pixel polarity.
func invert(g *image.Gray) *image.Gray {
	return toGray(effect.Invert(g))
}
