package corrupt

import (
	"fmt"
	"math"

	"github.com/MeKo-Tech/hashprobe/internal/mempool"
	"github.com/MeKo-Tech/hashprobe/internal/tensor"
)

// Standard JPEG quantization tables, rows are vertical frequency.
var (
	lumaTable = [8][8]float64{
		{16, 11, 10, 16, 24, 40, 51, 61},
		{12, 12, 14, 19, 26, 58, 60, 55},
		{14, 13, 16, 24, 40, 57, 69, 56},
		{14, 17, 22, 29, 51, 87, 80, 62},
		{18, 22, 37, 56, 68, 109, 103, 77},
		{24, 35, 55, 64, 81, 104, 113, 92},
		{49, 64, 78, 87, 103, 121, 120, 101},
		{72, 92, 95, 98, 112, 100, 103, 99},
	}
	chromaTable = func() [8][8]float64 {
		var t [8][8]float64
		for i := range t {
			for j := range t[i] {
				t[i][j] = 99
			}
		}
		top := [4][4]float64{
			{17, 18, 24, 47},
			{18, 21, 26, 66},
			{24, 26, 56, 99},
			{47, 66, 99, 99},
		}
		for i := range top {
			copy(t[i][:4], top[i][:])
		}
		return t
	}()

	// dctCos[x][u] = cos((2x+1)u*pi/16)
	dctCos = func() [8][8]float64 {
		var t [8][8]float64
		for x := range 8 {
			for u := range 8 {
				t[x][u] = math.Cos(float64(2*x+1) * float64(u) * math.Pi / 16)
			}
		}
		return t
	}()
)

// QualityFactor maps a JPEG quality in [1,100] to the table scale.
func QualityFactor(quality int) float64 {
	if quality < 50 {
		return 5000.0 / float64(quality) / 100
	}
	return (200.0 - float64(quality)*2) / 100
}

// quantStep scales a table entry by the quality factor. Steps are floored
// at 1: quality 100 has factor 0 and would otherwise divide by zero. For
// every quality in the mode table the scaled step is already above 1.
func quantStep(entry, factor float64) float64 {
	return math.Max(1, entry*factor)
}

// DiffRound is round(x) plus a cubic residual, which keeps a non-zero
// gradient through the quantization step.
func DiffRound(x float64) float64 {
	r := math.Round(x)
	d := x - r
	return r + d*d*d
}

// DiffJPEG approximates JPEG compression and decompression at the given
// quality. Values are mapped back to [0,255] with r, compressed with 4:2:0
// chroma subsampling and 8x8 DCT quantization, clamped to [0,255] and
// normalized again, so the output always lies inside r.
func DiffJPEG(t tensor.Tensor, quality int, r Range) (tensor.Tensor, error) {
	if quality < 1 || quality > 100 {
		return tensor.Tensor{}, fmt.Errorf("jpeg quality must be in [1,100], got %d", quality)
	}
	n, c, h, w := t.Dims()
	if c != 3 || r.Channels() != 3 {
		return tensor.Tensor{}, fmt.Errorf("jpeg needs 3 channels, got tensor %d and range %d", c, r.Channels())
	}
	if h%16 != 0 || w%16 != 0 {
		return tensor.Tensor{}, fmt.Errorf("jpeg needs sides that are multiples of 16, got %dx%d", h, w)
	}

	factor := QualityFactor(quality)
	plane := h * w
	ch, cw := h/2, w/2
	out := tensor.Like(t)

	yPlane := mempool.GetFloat32(plane)
	defer mempool.PutFloat32(yPlane)
	cb := mempool.GetFloat32(ch * cw)
	defer mempool.PutFloat32(cb)
	cr := mempool.GetFloat32(ch * cw)
	defer mempool.PutFloat32(cr)

	for i := range n {
		img := t.Image(i)
		toYCbCr(img, r, h, w, yPlane, cb, cr)

		codecPlane(yPlane, h, w, &lumaTable, factor)
		codecPlane(cb, ch, cw, &chromaTable, factor)
		codecPlane(cr, ch, cw, &chromaTable, factor)

		fromYCbCr(out.Image(i), r, h, w, yPlane, cb, cr)
	}
	return out, nil
}

// toYCbCr writes the luma plane and 2x2 average-pooled chroma planes in
// [0,255] scale.
func toYCbCr(img []float32, r Range, h, w int, yPlane, cb, cr []float32) {
	plane := h * w
	cw := w / 2
	clear(cb[:plane/4])
	clear(cr[:plane/4])
	for y := range h {
		for x := range w {
			idx := y*w + x
			red := float64(r.Denormalize(0, img[idx])) * 255
			green := float64(r.Denormalize(1, img[plane+idx])) * 255
			blue := float64(r.Denormalize(2, img[2*plane+idx])) * 255

			yPlane[idx] = float32(0.299*red + 0.587*green + 0.114*blue)
			cIdx := (y/2)*cw + x/2
			cb[cIdx] += float32((-0.168736*red - 0.331264*green + 0.5*blue + 128) / 4)
			cr[cIdx] += float32((0.5*red - 0.418688*green - 0.081312*blue + 128) / 4)
		}
	}
}

// fromYCbCr upsamples chroma by replication, converts back to RGB, clamps
// to [0,255] and normalizes into dst.
func fromYCbCr(dst []float32, r Range, h, w int, yPlane, cb, cr []float32) {
	plane := h * w
	cw := w / 2
	for y := range h {
		for x := range w {
			idx := y*w + x
			cIdx := (y/2)*cw + x/2
			lum := float64(yPlane[idx])
			b := float64(cb[cIdx]) - 128
			rr := float64(cr[cIdx]) - 128

			rgb := [3]float64{
				lum + 1.402*rr,
				lum - 0.344136*b - 0.714136*rr,
				lum + 1.772*b,
			}
			for k, v := range rgb {
				v = math.Min(255, math.Max(0, v)) / 255
				dst[k*plane+idx] = r.Normalize(k, float32(v))
			}
		}
	}
}

// codecPlane runs DCT, quantization, dequantization and IDCT on every 8x8
// block of p in place.
func codecPlane(p []float32, h, w int, table *[8][8]float64, factor float64) {
	var block, coef [8][8]float64
	for by := 0; by < h; by += 8 {
		for bx := 0; bx < w; bx += 8 {
			for y := range 8 {
				for x := range 8 {
					block[y][x] = float64(p[(by+y)*w+bx+x]) - 128
				}
			}
			forwardDCT(&block, &coef)
			for v := range 8 {
				for u := range 8 {
					q := quantStep(table[v][u], factor)
					coef[v][u] = DiffRound(coef[v][u]/q) * q
				}
			}
			inverseDCT(&coef, &block)
			for y := range 8 {
				for x := range 8 {
					p[(by+y)*w+bx+x] = float32(block[y][x] + 128)
				}
			}
		}
	}
}

func alpha(u int) float64 {
	if u == 0 {
		return 1 / math.Sqrt2
	}
	return 1
}

// forwardDCT computes the orthonormal 8x8 DCT-II: coef[v][u] for vertical
// frequency v and horizontal frequency u.
func forwardDCT(block, coef *[8][8]float64) {
	var tmp [8][8]float64
	for y := range 8 {
		for u := range 8 {
			var s float64
			for x := range 8 {
				s += block[y][x] * dctCos[x][u]
			}
			tmp[y][u] = s
		}
	}
	for v := range 8 {
		for u := range 8 {
			var s float64
			for y := range 8 {
				s += tmp[y][u] * dctCos[y][v]
			}
			coef[v][u] = 0.25 * alpha(u) * alpha(v) * s
		}
	}
}

func inverseDCT(coef, block *[8][8]float64) {
	var tmp [8][8]float64
	for v := range 8 {
		for x := range 8 {
			var s float64
			for u := range 8 {
				s += alpha(u) * coef[v][u] * dctCos[x][u]
			}
			tmp[v][x] = s
		}
	}
	for y := range 8 {
		for x := range 8 {
			var s float64
			for v := range 8 {
				s += alpha(v) * tmp[v][x] * dctCos[y][v]
			}
			block[y][x] = 0.25 * s
		}
	}
}
