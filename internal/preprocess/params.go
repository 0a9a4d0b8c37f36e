package preprocess

import "math"

// Params holds the image processing knobs applied to a region before OCR.
//
// The zero value is not useful; start from DefaultParams. Values outside the
// documented ranges are clamped by Clamped, never rejected.
type Params struct {
	Contrast   float64 `json:"contrast"`   // multiplier around mid-gray, 0.01-4.0
	Brightness float64 `json:"brightness"` // multiplier, 0.01-3.0
	Sharpness  float64 `json:"sharpness"`  // enhancement factor, 0.01-3.0
	Threshold  int     `json:"threshold"`  // global binary threshold, 0-255
	Blur       int     `json:"blur"`       // 0-10, accepted but not applied
	Dilate     int     `json:"dilate"`     // 1-5, n-1 iterations
	Erode      int     `json:"erode"`      // 1-5, n-1 iterations
	Gamma      float64 `json:"gamma"`      // 0.1-5.0, accepted but not applied
	Adaptive   bool    `json:"adaptive_threshold"`
	Invert     bool    `json:"invert"`
	Denoise    int     `json:"denoise"` // non-local means strength, 0-20, 0 disables
}

// DefaultParams returns the processing defaults tuned for LCD thermometers.
func DefaultParams() Params {
	return Params{
		Contrast:   2.0,
		Brightness: 1.0,
		Sharpness:  1.0,
		Threshold:  128,
		Blur:       0,
		Dilate:     1,
		Erode:      1,
		Gamma:      1.0,
		Adaptive:   false,
		Invert:     false,
		Denoise:    0,
	}
}

// Clamped returns a copy of p with every field forced into its range.
// NaN multipliers fall back to 1.0.
func (p Params) Clamped() Params {
	p.Contrast = clampFloat(p.Contrast, 0.01, 4.0)
	p.Brightness = clampFloat(p.Brightness, 0.01, 3.0)
	p.Sharpness = clampFloat(p.Sharpness, 0.01, 3.0)
	p.Gamma = clampFloat(p.Gamma, 0.1, 5.0)
	p.Threshold = clampInt(p.Threshold, 0, 255)
	p.Blur = clampInt(p.Blur, 0, 10)
	p.Dilate = clampInt(p.Dilate, 1, 5)
	p.Erode = clampInt(p.Erode, 1, 5)
	p.Denoise = clampInt(p.Denoise, 0, 20)
	return p
}

func clampFloat(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return 1.0
	}
	return math.Min(math.Max(v, lo), hi)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
