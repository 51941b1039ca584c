package hmr

import (
	"image"
	"math"
	"sync"
)

// blurBufferPool recycles float scratch planes for the anti-alias blur.
var blurBufferPool = sync.Pool{
	New: func() interface{} { return make([]float32, 0, 1024*1024) },
}

// rowAccPool recycles row accumulators for the vertical pass.
var rowAccPool = sync.Pool{
	New: func() interface{} { return make([]float32, 0, 1024) },
}

// floatImage is an RGB image with float samples, interleaved, in src coordinates.
type floatImage struct {
	Rect image.Rectangle
	Pix  []float32
}

// at returns channel c of pixel (x, y), or 0 outside Rect.
func (m *floatImage) at(x, y, c int) float32 {
	if x < m.Rect.Min.X || y < m.Rect.Min.Y || x >= m.Rect.Max.X || y >= m.Rect.Max.Y {
		return 0
	}
	return m.Pix[((y-m.Rect.Min.Y)*m.Rect.Dx()+(x-m.Rect.Min.X))*3+c]
}

// gaussianKernel returns normalised 1-D weights truncated at four sigma.
func gaussianKernel(sigma float64) []float32 {
	radius := int(4*sigma + 0.5)
	kernel := make([]float32, 2*radius+1)
	var sum float64
	weights := make([]float64, len(kernel))
	for i := range weights {
		x := float64(i - radius)
		weights[i] = math.Exp(-x * x / (2 * sigma * sigma))
		sum += weights[i]
	}
	for i, w := range weights {
		kernel[i] = float32(w / sum)
	}
	return kernel
}

// blurMargin is how far outside a region the blur reads.
func blurMargin(sigma float64) int {
	return len(gaussianKernel(sigma))/2 + 1
}

// gaussianBlurRegion returns a blurred float copy of rect from src. Pixels past
// the region edge are clamped, matching the "nearest" boundary mode.
// Values are not requantised.
func gaussianBlurRegion(src *image.RGBA, rect image.Rectangle, sigma float64) *floatImage {
	rect = rect.Intersect(src.Bounds())
	out := &floatImage{Rect: rect}
	if rect.Empty() {
		return out
	}
	w, h := rect.Dx(), rect.Dy()

	needed := w * h * 3
	out.Pix = make([]float32, needed)
	for y := 0; y < h; y++ {
		srcRow := src.PixOffset(rect.Min.X, rect.Min.Y+y)
		for x := 0; x < w; x++ {
			off := srcRow + x*4
			p := (y*w + x) * 3
			out.Pix[p] = float32(src.Pix[off])
			out.Pix[p+1] = float32(src.Pix[off+1])
			out.Pix[p+2] = float32(src.Pix[off+2])
		}
	}

	scratchPtr := blurBufferPool.Get().([]float32)
	if cap(scratchPtr) < needed {
		scratchPtr = make([]float32, needed)
	}
	defer blurBufferPool.Put(scratchPtr)
	scratch := scratchPtr[:needed]

	kernel := gaussianKernel(sigma)
	convolveH(out.Pix, scratch, w, h, kernel)
	convolveV(scratch, out.Pix, w, h, kernel)
	return out
}

// convolveH is the horizontal pass from src into dst.
func convolveH(src, dst []float32, w, h int, kernel []float32) {
	radius := len(kernel) / 2
	for y := 0; y < h; y++ {
		row := y * w * 3
		for x := 0; x < w; x++ {
			var r, g, b float32
			for k, weight := range kernel {
				off := row + clampIndex(x+k-radius, w)*3
				r += weight * src[off]
				g += weight * src[off+1]
				b += weight * src[off+2]
			}
			off := row + x*3
			dst[off] = r
			dst[off+1] = g
			dst[off+2] = b
		}
	}
}

// convolveV processes row-by-row, accumulating whole source rows, for cache locality.
func convolveV(src, dst []float32, w, h int, kernel []float32) {
	radius := len(kernel) / 2
	neededCols := w * 3
	accPtr := rowAccPool.Get().([]float32)
	if cap(accPtr) < neededCols {
		accPtr = make([]float32, neededCols)
	}
	acc := accPtr[:neededCols]
	defer rowAccPool.Put(accPtr)

	for y := 0; y < h; y++ {
		// Must zero out recycled buffer
		for i := range acc {
			acc[i] = 0
		}
		for k, weight := range kernel {
			srcRow := src[clampIndex(y+k-radius, h)*neededCols:]
			for i := 0; i < neededCols; i++ {
				acc[i] += weight * srcRow[i]
			}
		}
		copy(dst[y*neededCols:(y+1)*neededCols], acc)
	}
}

// warpBilinear samples a size x size patch where patch pixel (u, v) reads src at
// ((u-tx)/s, (v-ty)/s). Taps outside src read 0. The result is normalised CHW.
func warpBilinear(src *floatImage, size int, s, tx, ty float64, mean, std [3]float32) []float32 {
	plane := size * size
	out := make([]float32, 3*plane)
	for v := 0; v < size; v++ {
		sy := (float64(v) - ty) / s
		y0 := int(math.Floor(sy))
		fy := float32(sy - float64(y0))
		for u := 0; u < size; u++ {
			sx := (float64(u) - tx) / s
			x0 := int(math.Floor(sx))
			fx := float32(sx - float64(x0))
			p := v*size + u
			for c := 0; c < 3; c++ {
				top := (1-fx)*src.at(x0, y0, c) + fx*src.at(x0+1, y0, c)
				bottom := (1-fx)*src.at(x0, y0+1, c) + fx*src.at(x0+1, y0+1, c)
				val := (1-fy)*top + fy*bottom
				out[c*plane+p] = (val - mean[c]) / std[c]
			}
		}
	}
	return out
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
