package corrupt

import (
	"math/rand/v2"

	"github.com/MeKo-Tech/hashprobe/internal/tensor"
)

// AddGaussianNoise returns t plus i.i.d. zero-mean Gaussian noise with the
// given standard deviation, drawn from r for every value of every image.
func AddGaussianNoise(t tensor.Tensor, std float64, r *rand.Rand) tensor.Tensor {
	out := tensor.Like(t)
	for i, v := range t.Data {
		out.Data[i] = v + float32(r.NormFloat64()*std)
	}
	return out
}
