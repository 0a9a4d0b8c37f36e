package imaging

import (
	"math"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// RegionStats summarises the pixels of a buffer to help tune preprocessing.
//
// MeanHex and Lightness describe the average color of the buffer; the gray
// fields use BT.601 luma for RGB buffers. SuggestedThreshold is the Otsu
// threshold of the gray histogram and is a reasonable starting value for the
// global binary threshold.
type RegionStats struct {
	Width              int     `json:"width"`
	Height             int     `json:"height"`
	MeanHex            string  `json:"mean_hex"`
	Lightness          float64 `json:"lightness"` // HSL lightness, 0-100
	MeanGray           float64 `json:"mean_gray"`
	StdDevGray         float64 `json:"stddev_gray"`
	MinGray            uint8   `json:"min_gray"`
	MaxGray            uint8   `json:"max_gray"`
	SuggestedThreshold uint8   `json:"suggested_threshold"`
}

// Stats computes RegionStats for b. Empty buffers return the zero value.
func Stats(b *Buffer) RegionStats {
	if b.Empty() {
		return RegionStats{}
	}

	var hist [256]int
	var sumR, sumG, sumB float64
	n := b.width * b.height
	for i := 0; i < n; i++ {
		off := i * b.channels
		r, g, bl := b.pix[off], b.pix[off], b.pix[off]
		if b.channels == RGB {
			g, bl = b.pix[off+1], b.pix[off+2]
		}
		sumR += float64(r)
		sumG += float64(g)
		sumB += float64(bl)
		hist[luma(r, g, bl)]++
	}

	mean := colorful.Color{
		R: sumR / float64(n) / 255.0,
		G: sumG / float64(n) / 255.0,
		B: sumB / float64(n) / 255.0,
	}
	_, _, l := mean.Hsl()

	stats := RegionStats{
		Width:              b.width,
		Height:             b.height,
		MeanHex:            mean.Clamped().Hex(),
		Lightness:          math.Round(l*1000) / 10,
		SuggestedThreshold: OtsuThreshold(hist),
	}

	var sum, sumSq float64
	first := true
	for v, count := range hist {
		if count == 0 {
			continue
		}
		if first {
			stats.MinGray = uint8(v)
			first = false
		}
		stats.MaxGray = uint8(v)
		sum += float64(v * count)
		sumSq += float64(v*v) * float64(count)
	}
	stats.MeanGray = sum / float64(n)
	stats.StdDevGray = math.Sqrt(math.Max(sumSq/float64(n)-stats.MeanGray*stats.MeanGray, 0))
	return stats
}

// OtsuThreshold returns the threshold maximising between-class variance of a
// 256-bin histogram. Uniform histograms return 0.
func OtsuThreshold(hist [256]int) uint8 {
	total := 0
	sum := 0.0
	for v, c := range hist {
		total += c
		sum += float64(v * c)
	}
	if total == 0 {
		return 0
	}

	var sumB, best float64
	wB := 0
	threshold := 0
	for t := 0; t < 256; t++ {
		wB += hist[t]
		if wB == 0 {
			continue
		}
		wF := total - wB
		if wF == 0 {
			break
		}
		sumB += float64(t * hist[t])
		mB := sumB / float64(wB)
		mF := (sum - sumB) / float64(wF)
		between := float64(wB) * float64(wF) * (mB - mF) * (mB - mF)
		if between > best {
			best = between
			threshold = t
		}
	}
	return uint8(threshold)
}

// luma converts an RGB triple to ITU-R BT.601 luma, rounded.
func luma(r, g, b uint8) uint8 {
	return uint8((299*int(r) + 587*int(g) + 114*int(b) + 500) / 1000)
}
