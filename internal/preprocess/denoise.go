package preprocess

import (
	"image"
	"math"
)

// Non-local means window sizes: 7x7 patches compared across a 21x21 search area.
const (
	templateRadius = 3
	searchRadius   = 10
)

// denoise applies non-local means filtering with filter strength h.
//
// Every output pixel is a weighted mean of the pixels in its search window,
// each weighted by exp(-d/h²) where d is the mean squared difference between
// the 7x7 patches around the two pixels. Borders are replicated. Patch
// distances for each search offset are read from an integral image, so the
// cost is independent of the patch size.
func denoise(g *image.Gray, h float64) *image.Gray {
	w, ht := g.Rect.Dx(), g.Rect.Dy()
	pad := templateRadius + searchRadius
	pw, ph := w+2*pad, ht+2*pad

	padded := make([]float64, pw*ph)
	for y := 0; y < ph; y++ {
		sy := clampInt(y-pad, 0, ht-1)
		for x := 0; x < pw; x++ {
			sx := clampInt(x-pad, 0, w-1)
			padded[y*pw+x] = float64(g.Pix[sy*g.Stride+sx])
		}
	}

	// Squared differences are accumulated over the area covered by every
	// patch, which starts searchRadius pixels into the padded image.
	rw, rh := w+2*templateRadius, ht+2*templateRadius
	stride := rw + 1
	integral := make([]float64, stride*(rh+1))

	sumW := make([]float64, w*ht)
	sumV := make([]float64, w*ht)
	side := 2*templateRadius + 1
	area := float64(side * side)
	h2 := h * h

	for dy := -searchRadius; dy <= searchRadius; dy++ {
		for dx := -searchRadius; dx <= searchRadius; dx++ {
			for y := 0; y < rh; y++ {
				row := 0.0
				base := (y+searchRadius)*pw + searchRadius
				shifted := base + dy*pw + dx
				for x := 0; x < rw; x++ {
					d := padded[base+x] - padded[shifted+x]
					row += d * d
					integral[(y+1)*stride+x+1] = integral[y*stride+x+1] + row
				}
			}

			for y := 0; y < ht; y++ {
				for x := 0; x < w; x++ {
					x1, y1 := x+side, y+side
					ssd := integral[y1*stride+x1] - integral[y*stride+x1] -
						integral[y1*stride+x] + integral[y*stride+x]
					weight := math.Exp(-(ssd / area) / h2)
					i := y*w + x
					sumW[i] += weight
					sumV[i] += weight * padded[(y+pad+dy)*pw+x+pad+dx]
				}
			}
		}
	}

	out := image.NewGray(image.Rect(0, 0, w, ht))
	for y := 0; y < ht; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			out.Pix[y*out.Stride+x] = clampUint8(sumV[i] / sumW[i])
		}
	}
	return out
}
