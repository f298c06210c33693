package corrupt

import (
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/MeKo-Tech/hashprobe/internal/tensor"
)

// Transformer applies mode transforms to image batches. It owns the random
// source used by the noise family so runs can be reproduced from a seed.
// A Transformer is safe for concurrent use.
type Transformer struct {
	rng    Range
	native int

	mu     sync.Mutex
	random *rand.Rand
}

// NewTransformer returns a transformer for tensors normalized with r.
func NewTransformer(r Range, seed uint64) *Transformer {
	return &Transformer{
		rng:    r,
		native: NativeSize,
		random: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// WithNativeSize overrides the resolution resized images are restored to.
func (t *Transformer) WithNativeSize(size int) *Transformer {
	t.native = size
	return t
}

// Range returns the normalization the transformer was built with.
func (t *Transformer) Range() Range { return t.rng }

// ApplyMode looks up mode and applies it.
func (t *Transformer) ApplyMode(in tensor.Tensor, mode int) (tensor.Tensor, error) {
	spec, err := Lookup(mode)
	if err != nil {
		return tensor.Tensor{}, err
	}
	return t.Apply(in, spec)
}

// Apply returns a new tensor with spec applied to every image of in. The
// input is never modified. No clamping is done here; callers clamp with
// Clamp according to Spec.ClampsClean.
func (t *Transformer) Apply(in tensor.Tensor, spec Spec) (tensor.Tensor, error) {
	if err := tensor.Verify(in); err != nil {
		return tensor.Tensor{}, fmt.Errorf("invalid input: %w", err)
	}
	switch spec.Family {
	case FamilyIdentity:
		return in.Clone(), nil
	case FamilyResize:
		if spec.Size <= 0 {
			return tensor.Tensor{}, fmt.Errorf("resize size must be > 0, got %d", spec.Size)
		}
		down := ResizeBilinear(in, spec.Size, spec.Size)
		return ResizeBilinear(down, t.native, t.native), nil
	case FamilyBlur:
		if spec.Kernel <= 0 || spec.Kernel%2 == 0 {
			return tensor.Tensor{}, fmt.Errorf("blur kernel must be odd and positive, got %d", spec.Kernel)
		}
		return GaussianBlur(in, spec.Kernel, spec.Sigma), nil
	case FamilyNoise:
		t.mu.Lock()
		defer t.mu.Unlock()
		return AddGaussianNoise(in, spec.Std, t.random), nil
	case FamilyJPEG:
		return DiffJPEG(in, spec.Quality, t.rng)
	default:
		return tensor.Tensor{}, fmt.Errorf("%w: family %v", ErrUnsupportedMode, spec.Family)
	}
}
