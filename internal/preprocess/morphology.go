package preprocess

import "image"

// erode replaces each pixel with the minimum of its 3x3 neighbourhood,
// repeated iterations times. Neighbours outside the image are ignored.
func erode(g *image.Gray, iterations int) *image.Gray {
	for i := 0; i < iterations; i++ {
		g = morph(g, false)
	}
	return g
}

// dilate replaces each pixel with the maximum of its 3x3 neighbourhood,
// repeated iterations times. Neighbours outside the image are ignored.
func dilate(g *image.Gray, iterations int) *image.Gray {
	for i := 0; i < iterations; i++ {
		g = morph(g, true)
	}
	return g
}

func morph(g *image.Gray, takeMax bool) *image.Gray {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	out := image.NewGray(g.Rect)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			best := g.Pix[y*g.Stride+x]
			for ny := max(y-1, 0); ny <= min(y+1, h-1); ny++ {
				for nx := max(x-1, 0); nx <= min(x+1, w-1); nx++ {
					v := g.Pix[ny*g.Stride+nx]
					if (takeMax && v > best) || (!takeMax && v < best) {
						best = v
					}
				}
			}
			out.Pix[y*out.Stride+x] = best
		}
	}
	return out
}
