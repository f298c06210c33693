package testutil

import (
	"context"

	"github.com/MeKo-Tech/hashprobe/internal/corrupt"
	"github.com/MeKo-Tech/hashprobe/internal/evaluate"
	"github.com/MeKo-Tech/hashprobe/internal/tensor"
)

// MemorySource serves an in-memory batch in fixed-size chunks.
type MemorySource struct {
	Images    tensor.Tensor
	Labels    tensor.Matrix
	BatchSize int
}

var _ evaluate.Source = (*MemorySource)(nil)

// Len implements evaluate.Sized.
func (m *MemorySource) Len() int { return m.Labels.Rows }

// Batches implements evaluate.Source.
func (m *MemorySource) Batches(ctx context.Context, fn func(evaluate.Batch) error) error {
	n, c, h, w := m.Images.Dims()
	size := m.BatchSize
	if size <= 0 {
		size = 1
	}
	per := c * h * w
	for start := 0; start < n; start += size {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+size, n)
		batch := evaluate.Batch{
			Images: tensor.Tensor{
				Data:  m.Images.Data[start*per : end*per],
				Shape: []int64{int64(end - start), int64(c), int64(h), int64(w)},
			},
			Labels: tensor.Matrix{
				Data: m.Labels.Data[start*m.Labels.Cols : end*m.Labels.Cols],
				Rows: end - start,
				Cols: m.Labels.Cols,
			},
		}
		for i := start; i < end; i++ {
			batch.Indices = append(batch.Indices, i)
		}
		if err := fn(batch); err != nil {
			return err
		}
	}
	return nil
}

// IndexLabels returns an n×1 matrix holding 0..n-1.
func IndexLabels(n int) tensor.Matrix {
	m := tensor.NewMatrix(n, 1)
	for i := range n {
		m.Data[i] = float32(i)
	}
	return m
}

// GradientImages returns n distinct size×size RGB images normalized with r.
func GradientImages(n, size int, r corrupt.Range) tensor.Tensor {
	t := tensor.New(n, 3, size, size)
	plane := size * size
	for i := range n {
		for c := range 3 {
			for p := range plane {
				y, x := p/size, p%size
				v := float32((x*(i+1)+y*(c+2)+i*31)%size) / float32(size)
				t.Data[(i*3+c)*plane+p] = r.Normalize(c, v)
			}
		}
	}
	return t
}

// UniformNoise returns a 3×size×size pattern with every value set to v.
func UniformNoise(size int, v float32) []float32 {
	out := make([]float32, 3*size*size)
	for i := range out {
		out[i] = v
	}
	return out
}
