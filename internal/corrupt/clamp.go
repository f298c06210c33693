package corrupt

import (
	"errors"
	"fmt"

	"github.com/MeKo-Tech/hashprobe/internal/tensor"
)

// Range describes how a dataset normalizes pixels. A pixel p in [0,1] is fed
// to the network as (p-Mean[c])/Std[c], so the valid input interval of
// channel c is [Lo(c), Hi(c)].
type Range struct {
	Name string
	Mean []float32
	Std  []float32
}

// ImageNetRange is the normalization most hashing backbones are trained with.
func ImageNetRange(name string) Range {
	return Range{
		Name: name,
		Mean: []float32{0.485, 0.456, 0.406},
		Std:  []float32{0.229, 0.224, 0.225},
	}
}

// RawRange leaves pixels in [0,1].
func RawRange() Range {
	return Range{Name: "raw", Mean: []float32{0, 0, 0}, Std: []float32{1, 1, 1}}
}

// Validate checks that Mean and Std agree in length and Std is positive.
func (r Range) Validate() error {
	if len(r.Mean) == 0 {
		return errors.New("range has no channels")
	}
	if len(r.Mean) != len(r.Std) {
		return fmt.Errorf("range %q: %d means but %d stds", r.Name, len(r.Mean), len(r.Std))
	}
	for i, s := range r.Std {
		if s <= 0 {
			return fmt.Errorf("range %q: std[%d] must be > 0, got %v", r.Name, i, s)
		}
	}
	return nil
}

// Channels returns the number of channels described by r.
func (r Range) Channels() int { return len(r.Mean) }

// Lo is the normalized value of a black pixel in channel c.
func (r Range) Lo(c int) float32 { return (0 - r.Mean[c]) / r.Std[c] }

// Hi is the normalized value of a white pixel in channel c.
func (r Range) Hi(c int) float32 { return (1 - r.Mean[c]) / r.Std[c] }

// Normalize maps a [0,1] pixel value of channel c into network input space.
func (r Range) Normalize(c int, v float32) float32 { return (v - r.Mean[c]) / r.Std[c] }

// Denormalize maps a network input value of channel c back to [0,1] scale.
func (r Range) Denormalize(c int, v float32) float32 { return v*r.Std[c] + r.Mean[c] }

// Clamp returns a copy of t with every value of channel c limited to
// [Lo(c), Hi(c)]. Channels beyond the range table use the last entry.
// NaN compares false against both bounds and is copied unchanged, as in
// torch.clamp; the bounds hold for every non-NaN value.
func Clamp(t tensor.Tensor, r Range) tensor.Tensor {
	out := tensor.Like(t)
	n, c, h, w := t.Dims()
	plane := h * w
	for i := range n {
		for ch := range c {
			rc := min(ch, r.Channels()-1)
			lo, hi := r.Lo(rc), r.Hi(rc)
			off := (i*c + ch) * plane
			src := t.Data[off : off+plane]
			dst := out.Data[off : off+plane]
			for j, v := range src {
				switch {
				case v < lo:
					dst[j] = lo
				case v > hi:
					dst[j] = hi
				default:
					dst[j] = v
				}
			}
		}
	}
	return out
}
