// Package evaluate runs a frozen hashing network over clean and perturbed
// copies of a dataset and collects the sign codes for retrieval scoring.
package evaluate

import (
	"context"
	"time"

	"github.com/MeKo-Tech/hashprobe/internal/tensor"
)

// Network maps an image batch to real-valued codes, one row per image.
// Implementations run in inference mode and never update their weights.
type Network interface {
	Forward(ctx context.Context, images tensor.Tensor) (tensor.Matrix, error)
}

// NetworkFunc adapts a function to Network.
type NetworkFunc func(ctx context.Context, images tensor.Tensor) (tensor.Matrix, error)

// Forward calls f.
func (f NetworkFunc) Forward(ctx context.Context, images tensor.Tensor) (tensor.Matrix, error) {
	return f(ctx, images)
}

// Batch is one slice of the dataset in iteration order.
type Batch struct {
	Images  tensor.Tensor
	Labels  tensor.Matrix
	Indices []int
}

// Source delivers batches in a stable order. Every call to Batches starts
// again from the first item.
type Source interface {
	Batches(ctx context.Context, fn func(Batch) error) error
}

// Sized is implemented by sources that know their item count up front.
type Sized interface {
	Len() int
}

// Result holds the codes of every image, aligned by position.
type Result struct {
	Perturbed tensor.Matrix
	Clean     tensor.Matrix
	Labels    tensor.Matrix
	Indices   []int
	Elapsed   time.Duration
}

// Len returns the number of evaluated images.
func (r *Result) Len() int { return r.Labels.Rows }

// Observer receives per-batch measurements.
type Observer interface {
	ObserveBatch(images int, forward time.Duration)
}
