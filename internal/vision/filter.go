// Package vision implements the small set of image primitives the bubble
// detector needs: intensity conversion, Gaussian blur, thresholding, Canny
// edges, contour tracing and polygon measurement.
package vision

import (
	"image"
	"image/draw"
	"math"
)

// Gray converts img to single-channel intensity, reusing it when it already is.
func Gray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok && g.Rect.Min == (image.Point{}) {
		return g
	}
	b := img.Bounds()
	g := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(g, g.Rect, img, b.Min, draw.Src)
	return g
}

// GaussianKernel returns a normalized 1-D kernel. A non-positive sigma is
// derived from the size.
func GaussianKernel(size int, sigma float64) []float64 {
	if size < 1 || size%2 == 0 {
		size = 5
	}
	if sigma <= 0 {
		sigma = 0.3*((float64(size)-1)*0.5-1) + 0.8
	}
	k := make([]float64, size)
	half := size / 2
	sum := 0.0
	for i := range k {
		x := float64(i - half)
		k[i] = math.Exp(-(x * x) / (2 * sigma * sigma))
		sum += k[i]
	}
	for i := range k {
		k[i] /= sum
	}
	return k
}

// GaussianBlur applies a separable size×size Gaussian with reflected borders.
func GaussianBlur(src *image.Gray, size int, sigma float64) *image.Gray {
	src = Gray(src)
	k := GaussianKernel(size, sigma)
	half := len(k) / 2
	w, h := src.Rect.Dx(), src.Rect.Dy()

	tmp := make([]float64, w*h)
	for y := 0; y < h; y++ {
		row := src.Pix[y*src.Stride:]
		for x := 0; x < w; x++ {
			acc := 0.0
			for i, kv := range k {
				acc += kv * float64(row[reflect(x+i-half, w)])
			}
			tmp[y*w+x] = acc
		}
	}

	dst := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			acc := 0.0
			for i, kv := range k {
				acc += kv * tmp[reflect(y+i-half, h)*w+x]
			}
			dst.Pix[y*dst.Stride+x] = clamp8(acc)
		}
	}
	return dst
}

// Threshold binarizes src: pixels above thresh become maxVal, others 0. With
// inverse set the outputs swap.
func Threshold(src *image.Gray, thresh, maxVal uint8, inverse bool) *image.Gray {
	src = Gray(src)
	w, h := src.Rect.Dx(), src.Rect.Dy()
	dst := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			above := src.Pix[y*src.Stride+x] > thresh
			if above != inverse {
				dst.Pix[y*dst.Stride+x] = maxVal
			}
		}
	}
	return dst
}

// reflect maps an out-of-range index back inside [0,n) without repeating the
// edge pixel.
func reflect(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i
		}
		if i >= n {
			i = 2*n - i - 2
		}
	}
	return i
}

func clamp8(v float64) uint8 {
	v = math.Round(v)
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	}
	return uint8(v)
}
