package corrupt

import (
	"math"

	"github.com/MeKo-Tech/hashprobe/internal/mempool"
	"github.com/MeKo-Tech/hashprobe/internal/tensor"
)

// GaussianKernel returns the normalized 1-D Gaussian taps for an odd kernel
// size, centered on zero.
func GaussianKernel(size int, sigma float64) []float32 {
	half := float64(size-1) / 2
	weights := make([]float64, size)
	var sum float64
	for i := range size {
		x := float64(i) - half
		weights[i] = math.Exp(-0.5 * (x / sigma) * (x / sigma))
		sum += weights[i]
	}
	kernel := make([]float32, size)
	for i, v := range weights {
		kernel[i] = float32(v / sum)
	}
	return kernel
}

// GaussianBlur convolves every plane of t with a separable Gaussian of the
// given odd size and sigma. Borders are reflected without repeating the
// edge pixel.
func GaussianBlur(t tensor.Tensor, size int, sigma float64) tensor.Tensor {
	out := tensor.Like(t)
	if size <= 1 {
		copy(out.Data, t.Data)
		return out
	}
	kernel := GaussianKernel(size, sigma)
	radius := size / 2

	n, c, h, w := t.Dims()
	plane := h * w
	scratch := mempool.GetFloat32(plane)
	defer mempool.PutFloat32(scratch)

	for p := range n * c {
		src := t.Data[p*plane : (p+1)*plane]
		dst := out.Data[p*plane : (p+1)*plane]
		// horizontal pass into scratch
		for y := range h {
			row := src[y*w : (y+1)*w]
			for x := range w {
				var acc float32
				for k, kv := range kernel {
					acc += kv * row[reflect(x+k-radius, w)]
				}
				scratch[y*w+x] = acc
			}
		}
		// vertical pass into dst
		for y := range h {
			for x := range w {
				var acc float32
				for k, kv := range kernel {
					acc += kv * scratch[reflect(y+k-radius, h)*w+x]
				}
				dst[y*w+x] = acc
			}
		}
	}
	return out
}

func reflect(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i
		}
		if i >= n {
			i = 2*(n-1) - i
		}
	}
	return i
}
