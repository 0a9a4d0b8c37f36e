package imaging

import "github.com/disintegration/imaging"

// Grayscale returns a single-channel copy of b using ITU-R BT.601 luma
// weights. Grayscale buffers are returned unchanged.
func Grayscale(b *Buffer) *Buffer {
	if b.Empty() || b.channels == Gray {
		return b
	}
	return GrayFromImage(imaging.Grayscale(b.Image()))
}

// Scale resizes the buffer by factor using a Lanczos filter. Factors of 1 or
// less than or equal to 0 return the buffer unchanged.
func Scale(b *Buffer, factor float64) *Buffer {
	if factor == 1.0 || factor <= 0 || b.Empty() {
		return b
	}
	w := max(int(float64(b.Width())*factor), 1)
	h := max(int(float64(b.Height())*factor), 1)
	resized := imaging.Resize(b.Image(), w, h, imaging.Lanczos)
	if b.Channels() == Gray {
		return GrayFromImage(resized)
	}
	return FromImage(resized)
}
