package dataset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/MeKo-Tech/hashprobe/internal/corrupt"
	"github.com/MeKo-Tech/hashprobe/internal/evaluate"
	"github.com/MeKo-Tech/hashprobe/internal/tensor"
)

// Options controls how manifest items are turned into batches.
type Options struct {
	Root       string
	BatchSize  int
	ResizeSize int
	CropSize   int
	Prefetch   int // batches decoded ahead of the consumer
	Workers    int // batches decoded concurrently
	Range      corrupt.Range
	Logger     *slog.Logger
}

// DefaultOptions mirrors the usual test-time transform: shorter side to
// 255, centre crop 224.
func DefaultOptions() Options {
	return Options{
		BatchSize:  1,
		ResizeSize: 255,
		CropSize:   corrupt.NativeSize,
		Prefetch:   4,
		Workers:    2,
		Range:      corrupt.ImageNetRange("imagenet"),
	}
}

// Loader decodes manifest items into batches. It implements
// evaluate.Source; batches always arrive in manifest order.
type Loader struct {
	manifest *Manifest
	opts     Options
	logger   *slog.Logger
}

var _ evaluate.Source = (*Loader)(nil)

// NewLoader validates opts and returns a loader over m.
func NewLoader(m *Manifest, opts Options) (*Loader, error) {
	if m == nil {
		return nil, errors.New("nil manifest")
	}
	if opts.BatchSize <= 0 {
		return nil, fmt.Errorf("batch size must be > 0, got %d", opts.BatchSize)
	}
	if opts.CropSize <= 0 || opts.ResizeSize < opts.CropSize {
		return nil, fmt.Errorf("need 0 < crop size (%d) <= resize size (%d)", opts.CropSize, opts.ResizeSize)
	}
	if err := opts.Range.Validate(); err != nil {
		return nil, err
	}
	if opts.Prefetch < 1 {
		opts.Prefetch = 1
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{manifest: m, opts: opts, logger: logger}, nil
}

// Len implements evaluate.Sized.
func (l *Loader) Len() int { return l.manifest.Len() }

type batchResult struct {
	batch evaluate.Batch
	err   error
}

// Batches decodes the manifest from the first item and calls fn for every
// batch in order. Decoding runs on Workers goroutines at most Prefetch
// batches ahead of fn. The first error stops the iteration.
func (l *Loader) Batches(ctx context.Context, fn func(evaluate.Batch) error) error {
	n := l.manifest.Len()
	if n == 0 {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	decoders, decodeCtx := errgroup.WithContext(runCtx)
	decoders.SetLimit(l.opts.Workers)

	slots := make(chan chan batchResult, l.opts.Prefetch)
	go func() {
		defer close(slots)
		for start := 0; start < n; start += l.opts.BatchSize {
			end := min(start+l.opts.BatchSize, n)
			result := make(chan batchResult, 1)
			select {
			case slots <- result:
			case <-decodeCtx.Done():
				return
			}
			decoders.Go(func() error {
				b, err := l.decodeBatch(decodeCtx, start, end)
				result <- batchResult{batch: b, err: err}
				return err
			})
		}
	}()

	stop := func() error {
		cancel()
		for range slots {
		}
		return decoders.Wait()
	}

	for result := range slots {
		res := <-result
		if res.err != nil {
			if err := stop(); err != nil {
				return err
			}
			return res.err
		}
		if err := fn(res.batch); err != nil {
			_ = stop()
			return err
		}
	}
	if err := decoders.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func (l *Loader) decodeBatch(ctx context.Context, start, end int) (evaluate.Batch, error) {
	crop := l.opts.CropSize
	images := tensor.New(end-start, 3, crop, crop)
	labels := tensor.NewMatrix(end-start, l.manifest.LabelWidth)
	indices := make([]int, 0, end-start)

	for i := start; i < end; i++ {
		if err := ctx.Err(); err != nil {
			return evaluate.Batch{}, err
		}
		item := l.manifest.Items[i]
		path := filepath.Join(l.opts.Root, item.Path)
		img, err := LoadImage(path)
		if err != nil {
			return evaluate.Batch{}, err
		}
		if err := Preprocess(img, l.opts.ResizeSize, crop, l.opts.Range, images.Image(i-start)); err != nil {
			return evaluate.Batch{}, &ImageError{Operation: "preprocess", Path: path, Err: err}
		}
		copy(labels.Row(i-start), item.Labels)
		indices = append(indices, i)
	}
	l.logger.Debug("decoded batch", "start", start, "size", end-start)
	return evaluate.Batch{Images: images, Labels: labels, Indices: indices}, nil
}
