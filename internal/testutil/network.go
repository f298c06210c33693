package testutil

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/MeKo-Tech/hashprobe/internal/evaluate"
	"github.com/MeKo-Tech/hashprobe/internal/tensor"
)

// ProjectionNetwork is a deterministic stand-in for a hashing network. Bit
// j of an image is the sum of its pixels weighted by a fixed ±1 pattern,
// so similar images get similar codes.
type ProjectionNetwork struct {
	Bits  int
	calls atomic.Int64
}

var _ evaluate.Network = (*ProjectionNetwork)(nil)

// NewProjectionNetwork returns a network producing bits-wide codes.
func NewProjectionNetwork(bits int) *ProjectionNetwork {
	return &ProjectionNetwork{Bits: bits}
}

// Calls returns how many batches were forwarded.
func (p *ProjectionNetwork) Calls() int64 { return p.calls.Load() }

// Forward implements evaluate.Network.
func (p *ProjectionNetwork) Forward(ctx context.Context, images tensor.Tensor) (tensor.Matrix, error) {
	if err := ctx.Err(); err != nil {
		return tensor.Matrix{}, err
	}
	if err := tensor.Verify(images); err != nil {
		return tensor.Matrix{}, err
	}
	p.calls.Add(1)

	n, _, _, _ := images.Dims()
	out := tensor.NewMatrix(n, p.Bits)
	for i := range n {
		img := images.Image(i)
		var mean float32
		for _, v := range img {
			mean += v
		}
		mean /= float32(len(img))
		row := out.Row(i)
		for j := range row {
			var s float32
			for k, v := range img {
				s += (v - mean) * weight(j, k)
			}
			row[j] = s
		}
	}
	return out, nil
}

func weight(j, k int) float32 {
	h := uint32(j)*0x9e3779b1 ^ uint32(k)*0x85ebca6b
	h ^= h >> 15
	h *= 0x2c1b3c6d
	h ^= h >> 12
	if h&1 == 0 {
		return -1
	}
	return 1
}

// ConstantNetwork returns the same code for every image.
type ConstantNetwork struct {
	Code []float32
}

// Forward implements evaluate.Network.
func (c ConstantNetwork) Forward(_ context.Context, images tensor.Tensor) (tensor.Matrix, error) {
	n, _, _, _ := images.Dims()
	out := tensor.NewMatrix(n, len(c.Code))
	for i := range n {
		copy(out.Row(i), c.Code)
	}
	return out, nil
}

// ErrInjected is returned by FailingNetwork.
var ErrInjected = errors.New("injected forward failure")

// FailingNetwork delegates to Next until After calls have succeeded and then
// returns ErrInjected.
type FailingNetwork struct {
	Next  evaluate.Network
	After int64
	calls atomic.Int64
}

// Forward implements evaluate.Network.
func (f *FailingNetwork) Forward(ctx context.Context, images tensor.Tensor) (tensor.Matrix, error) {
	if f.calls.Add(1) > f.After {
		return tensor.Matrix{}, ErrInjected
	}
	return f.Next.Forward(ctx, images)
}
