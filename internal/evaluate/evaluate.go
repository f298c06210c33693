package evaluate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MeKo-Tech/hashprobe/internal/corrupt"
	"github.com/MeKo-Tech/hashprobe/internal/tensor"
)

// ErrDimensionMismatch is returned when the network output width changes
// between batches or does not match the batch size.
var ErrDimensionMismatch = errors.New("code dimension mismatch")

// Evaluator runs the clean/perturbed evaluation loop for one mode at a time.
type Evaluator struct {
	transformer    *corrupt.Transformer
	clampCleanJPEG bool
	progress       ProgressCallback
	observer       Observer
	logger         *slog.Logger
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithProgress sets the progress reporter.
func WithProgress(cb ProgressCallback) Option {
	return func(e *Evaluator) {
		if cb != nil {
			e.progress = cb
		}
	}
}

// WithObserver sets the per-batch measurement sink.
func WithObserver(o Observer) Option {
	return func(e *Evaluator) { e.observer = o }
}

// WithLogger sets the logger used for debug output.
func WithLogger(l *slog.Logger) Option {
	return func(e *Evaluator) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithCleanJPEGClamp also clamps the clean path after JPEG modes. The
// codec clips to [0,255] before normalizing with the same range, so the
// clamp leaves clean codes unchanged.
func WithCleanJPEGClamp(enabled bool) Option {
	return func(e *Evaluator) { e.clampCleanJPEG = enabled }
}

// NewEvaluator creates an evaluator that corrupts images with tr.
func NewEvaluator(tr *corrupt.Transformer, opts ...Option) *Evaluator {
	e := &Evaluator{
		transformer: tr,
		progress:    NoOpProgressCallback{},
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// AddNoise returns images + noise, broadcasting one image-sized noise
// pattern over the batch.
func AddNoise(images tensor.Tensor, noise []float32) (tensor.Tensor, error) {
	per := images.ImageSize()
	if len(noise) != per {
		return tensor.Tensor{}, fmt.Errorf("noise has %d values, image has %d", len(noise), per)
	}
	out := tensor.Like(images)
	for i := range out.Data {
		out.Data[i] = images.Data[i] + noise[i%per]
	}
	return out, nil
}

// collector accumulates codes and labels in arrival order.
type collector struct {
	perturbed, clean, labels []float32
	indices                  []int
	codeWidth, labelWidth    int
	rows                     int
}

func (c *collector) add(perturbed, clean, labels tensor.Matrix, indices []int) error {
	if c.rows == 0 {
		c.codeWidth, c.labelWidth = perturbed.Cols, labels.Cols
	}
	if perturbed.Cols != c.codeWidth || clean.Cols != c.codeWidth {
		return fmt.Errorf("%w: got %d/%d bits, earlier batches had %d",
			ErrDimensionMismatch, perturbed.Cols, clean.Cols, c.codeWidth)
	}
	if labels.Cols != c.labelWidth {
		return fmt.Errorf("label width changed from %d to %d", c.labelWidth, labels.Cols)
	}
	c.perturbed = append(c.perturbed, perturbed.Data...)
	c.clean = append(c.clean, clean.Data...)
	c.labels = append(c.labels, labels.Data...)
	c.indices = append(c.indices, indices...)
	c.rows += labels.Rows
	return nil
}

func (c *collector) result() *Result {
	return &Result{
		Perturbed: tensor.Matrix{Data: c.perturbed, Rows: c.rows, Cols: c.codeWidth},
		Clean:     tensor.Matrix{Data: c.clean, Rows: c.rows, Cols: c.codeWidth},
		Labels:    tensor.Matrix{Data: c.labels, Rows: c.rows, Cols: c.labelWidth},
		Indices:   c.indices,
	}
}

// Evaluate runs every batch of src through net twice, once clean and once
// with noise added, after applying mode to both. Codes are sign-binarized
// and returned in source order. An empty source yields an empty result.
// Any failing batch aborts the run.
func (e *Evaluator) Evaluate(ctx context.Context, src Source, noise []float32, net Network, mode int) (*Result, error) {
	spec, err := corrupt.Lookup(mode)
	if err != nil {
		return nil, err
	}
	rng := e.transformer.Range()
	clampClean := spec.ClampsClean() || e.clampCleanJPEG

	total := -1
	if sized, ok := src.(Sized); ok {
		total = sized.Len()
	}
	start := time.Now()
	e.progress.OnStart(total)

	var acc collector
	err = src.Batches(ctx, func(b Batch) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		perturbed, clean, err := e.evaluateBatch(ctx, b, noise, net, spec, rng, clampClean)
		if err != nil {
			return err
		}
		if err := acc.add(perturbed, clean, b.Labels, b.Indices); err != nil {
			return err
		}
		e.progress.OnProgress(acc.rows, total)
		return nil
	})
	if err != nil {
		e.progress.OnError(acc.rows, err)
		return nil, fmt.Errorf("mode %d: %w", mode, err)
	}
	e.progress.OnComplete()

	res := acc.result()
	res.Elapsed = time.Since(start)
	e.logger.Debug("evaluation finished",
		"mode", mode,
		"family", spec.Family.String(),
		"images", res.Len(),
		"bits", res.Perturbed.Cols,
		"elapsed", res.Elapsed.Round(time.Millisecond))
	return res, nil
}

func (e *Evaluator) evaluateBatch(
	ctx context.Context,
	b Batch,
	noise []float32,
	net Network,
	spec corrupt.Spec,
	rng corrupt.Range,
	clampClean bool,
) (tensor.Matrix, tensor.Matrix, error) {
	if err := tensor.Verify(b.Images); err != nil {
		return tensor.Matrix{}, tensor.Matrix{}, fmt.Errorf("batch %v: %w", firstIndex(b), err)
	}
	n, _, _, _ := b.Images.Dims()
	if b.Labels.Rows != n || len(b.Indices) != n {
		return tensor.Matrix{}, tensor.Matrix{}, fmt.Errorf("batch %v: %d images, %d labels, %d indices",
			firstIndex(b), n, b.Labels.Rows, len(b.Indices))
	}

	noisy, err := AddNoise(b.Images, noise)
	if err != nil {
		return tensor.Matrix{}, tensor.Matrix{}, err
	}
	noisy = corrupt.Clamp(noisy, rng)

	perturbed, err := e.transformer.Apply(noisy, spec)
	if err != nil {
		return tensor.Matrix{}, tensor.Matrix{}, fmt.Errorf("corrupt perturbed batch: %w", err)
	}
	perturbed = corrupt.Clamp(perturbed, rng)

	clean, err := e.transformer.Apply(b.Images, spec)
	if err != nil {
		return tensor.Matrix{}, tensor.Matrix{}, fmt.Errorf("corrupt clean batch: %w", err)
	}
	if clampClean {
		clean = corrupt.Clamp(clean, rng)
	}

	forwardStart := time.Now()
	pCodes, err := e.forward(ctx, net, perturbed, n)
	if err != nil {
		return tensor.Matrix{}, tensor.Matrix{}, fmt.Errorf("forward perturbed batch: %w", err)
	}
	cCodes, err := e.forward(ctx, net, clean, n)
	if err != nil {
		return tensor.Matrix{}, tensor.Matrix{}, fmt.Errorf("forward clean batch: %w", err)
	}
	if e.observer != nil {
		e.observer.ObserveBatch(n, time.Since(forwardStart))
	}
	return Sign(pCodes), Sign(cCodes), nil
}

func (e *Evaluator) forward(ctx context.Context, net Network, images tensor.Tensor, n int) (tensor.Matrix, error) {
	codes, err := net.Forward(ctx, images)
	if err != nil {
		return tensor.Matrix{}, err
	}
	if err := codes.Verify(); err != nil {
		return tensor.Matrix{}, err
	}
	if codes.Rows != n {
		return tensor.Matrix{}, fmt.Errorf("%w: network returned %d rows for %d images", ErrDimensionMismatch, codes.Rows, n)
	}
	return codes, nil
}

func firstIndex(b Batch) any {
	if len(b.Indices) == 0 {
		return "?"
	}
	return b.Indices[0]
}
