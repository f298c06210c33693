package corrupt

import (
	"math"

	"github.com/MeKo-Tech/hashprobe/internal/tensor"
)

// ResizeBilinear resamples every plane of t to outH x outW with bilinear
// interpolation using half-pixel centers (align_corners=false). Resizing to
// the current size returns an exact copy. There is no antialiasing
// prefilter when downsampling.
func ResizeBilinear(t tensor.Tensor, outH, outW int) tensor.Tensor {
	n, c, h, w := t.Dims()
	out := tensor.New(n, c, outH, outW)
	if h == outH && w == outW {
		copy(out.Data, t.Data)
		return out
	}

	ys := axisTaps(h, outH)
	xs := axisTaps(w, outW)
	inPlane := h * w
	outPlane := outH * outW
	for p := range n * c {
		src := t.Data[p*inPlane : (p+1)*inPlane]
		dst := out.Data[p*outPlane : (p+1)*outPlane]
		for oy, ty := range ys {
			row0 := src[ty.i0*w : (ty.i0+1)*w]
			row1 := src[ty.i1*w : (ty.i1+1)*w]
			for ox, tx := range xs {
				top := row0[tx.i0]*(1-tx.f) + row0[tx.i1]*tx.f
				bot := row1[tx.i0]*(1-tx.f) + row1[tx.i1]*tx.f
				dst[oy*outW+ox] = top*(1-ty.f) + bot*ty.f
			}
		}
	}
	return out
}

// tap holds the two source indices and the weight of the second one.
type tap struct {
	i0, i1 int
	f      float32
}

func axisTaps(in, out int) []tap {
	taps := make([]tap, out)
	scale := float64(in) / float64(out)
	for o := range out {
		src := (float64(o)+0.5)*scale - 0.5
		if src < 0 {
			src = 0
		}
		i0 := int(math.Floor(src))
		if i0 > in-1 {
			i0 = in - 1
		}
		i1 := min(i0+1, in-1)
		taps[o] = tap{i0: i0, i1: i1, f: float32(src - float64(i0))}
	}
	return taps
}
