// Package benchmark times corruption transforms and other evaluation steps.
package benchmark

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/MeKo-Tech/hashprobe/internal/corrupt"
	"github.com/MeKo-Tech/hashprobe/internal/tensor"
)

// MemoryStats holds memory usage statistics.
type MemoryStats struct {
	AllocBytes      uint64 // Currently allocated bytes
	TotalAllocBytes uint64 // Total allocated bytes (cumulative)
	NumGC           uint32
}

// GetMemoryStats returns current memory statistics.
func GetMemoryStats() MemoryStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return MemoryStats{
		AllocBytes:      m.Alloc,
		TotalAllocBytes: m.TotalAlloc,
		NumGC:           m.NumGC,
	}
}

// Result holds the outcome of one benchmark.
type Result struct {
	Name         string
	Iterations   int
	Duration     time.Duration
	MemoryBefore MemoryStats
	MemoryAfter  MemoryStats
	Error        error
}

// PerOp is the mean duration of one completed iteration.
func (r Result) PerOp() time.Duration {
	if r.Iterations == 0 {
		return 0
	}
	return r.Duration / time.Duration(r.Iterations)
}

// AllocatedPerOp is the mean number of bytes allocated per iteration.
func (r Result) AllocatedPerOp() uint64 {
	if r.Iterations == 0 {
		return 0
	}
	return (r.MemoryAfter.TotalAllocBytes - r.MemoryBefore.TotalAllocBytes) / uint64(r.Iterations)
}

func (r Result) String() string {
	if r.Error != nil {
		return fmt.Sprintf("%s: ERROR - %v", r.Name, r.Error)
	}
	return fmt.Sprintf("%s: %d iterations, avg: %v, total: %v, alloc/op: %s",
		r.Name, r.Iterations, r.PerOp(), r.Duration, humanize.Bytes(r.AllocatedPerOp()))
}

// Benchmark is a named function timed by a Suite.
type Benchmark struct {
	Name string
	Func func(ctx context.Context) error
}

// Suite runs benchmarks in registration order.
type Suite struct {
	mu         sync.Mutex
	benchmarks []Benchmark
	results    []Result
}

// NewSuite creates an empty suite.
func NewSuite() *Suite {
	return &Suite{}
}

// Add registers a benchmark.
func (s *Suite) Add(name string, fn func(ctx context.Context) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.benchmarks = append(s.benchmarks, Benchmark{Name: name, Func: fn})
}

// Names lists registered benchmarks in order.
func (s *Suite) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, len(s.benchmarks))
	for i, b := range s.benchmarks {
		names[i] = b.Name
	}
	return names
}

// Run runs a single benchmark.
func (s *Suite) Run(ctx context.Context, name string, iterations int) Result {
	s.mu.Lock()
	var (
		b     Benchmark
		found bool
	)
	for _, candidate := range s.benchmarks {
		if candidate.Name == name {
			b, found = candidate, true
			break
		}
	}
	s.mu.Unlock()

	if !found {
		return Result{Name: name, Error: fmt.Errorf("benchmark '%s' not found", name)}
	}
	return run(ctx, b, iterations)
}

// RunAll runs every benchmark and keeps the results. It stops early when
// ctx is cancelled.
func (s *Suite) RunAll(ctx context.Context, iterations int) []Result {
	s.mu.Lock()
	benchmarks := append([]Benchmark(nil), s.benchmarks...)
	s.mu.Unlock()

	results := make([]Result, 0, len(benchmarks))
	for _, b := range benchmarks {
		if ctx.Err() != nil {
			break
		}
		results = append(results, run(ctx, b, iterations))
	}

	s.mu.Lock()
	s.results = results
	s.mu.Unlock()
	return results
}

// Results returns the last RunAll results.
func (s *Suite) Results() []Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.results
}

func run(ctx context.Context, b Benchmark, iterations int) Result {
	runtime.GC()
	before := GetMemoryStats()
	start := time.Now()

	var (
		err  error
		done int
	)
	for range iterations {
		if err = ctx.Err(); err != nil {
			break
		}
		if err = b.Func(ctx); err != nil {
			break
		}
		done++
	}

	return Result{
		Name:         b.Name,
		Iterations:   done,
		Duration:     time.Since(start),
		MemoryBefore: before,
		MemoryAfter:  GetMemoryStats(),
		Error:        err,
	}
}

// ModeName names the benchmark registered for a corruption mode.
func ModeName(mode int) string {
	spec, err := corrupt.Lookup(mode)
	if err != nil {
		return fmt.Sprintf("mode_%d", mode)
	}
	return fmt.Sprintf("mode_%d_%s", mode, spec.Family)
}

// NewModeSuite registers one benchmark per mode that applies the mode's
// transform to images. The input batch is never modified.
func NewModeSuite(tr *corrupt.Transformer, images tensor.Tensor, modes []int) (*Suite, error) {
	if err := tensor.Verify(images); err != nil {
		return nil, fmt.Errorf("invalid benchmark batch: %w", err)
	}
	s := NewSuite()
	for _, mode := range modes {
		if _, err := corrupt.Lookup(mode); err != nil {
			return nil, err
		}
		s.Add(ModeName(mode), func(context.Context) error {
			_, err := tr.ApplyMode(images, mode)
			return err
		})
	}
	return s, nil
}
