// Package config loads and validates hashprobe configuration.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/MeKo-Tech/hashprobe/internal/corrupt"
	"github.com/MeKo-Tech/hashprobe/internal/dataset"
	"github.com/MeKo-Tech/hashprobe/internal/onnx"
	"github.com/MeKo-Tech/hashprobe/internal/report"
	"github.com/MeKo-Tech/hashprobe/internal/retrieval"
)

var validLogLevels = []string{"debug", "info", "warn", "error"}

// DefaultModelsDir is where <arch>_<bits>.onnx files are looked up.
const DefaultModelsDir = "models"

// DefaultRanges returns the built-in normalization table. Every shipped
// dataset uses ImageNet statistics; raw keeps pixels in [0,1].
func DefaultRanges() map[string]RangeConfig {
	imagenet := corrupt.ImageNetRange("imagenet")
	entry := RangeConfig{Mean: imagenet.Mean, Std: imagenet.Std}
	raw := corrupt.RawRange()
	return map[string]RangeConfig{
		"imagenet":  entry,
		"nus_wide":  entry,
		"coco":      entry,
		"cifar10":   entry,
		"vggfaces2": entry,
		"raw":       {Mean: raw.Mean, Std: raw.Std},
	}
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	opts := dataset.DefaultOptions()
	return Config{
		ModelsDir: DefaultModelsDir,
		LogLevel:  "info",
		Dataset: DatasetConfig{
			Name:       "imagenet",
			Manifest:   "test.txt",
			Relevance:  retrieval.MultiHot.String(),
			BatchSize:  opts.BatchSize,
			ResizeSize: opts.ResizeSize,
			CropSize:   opts.CropSize,
			Prefetch:   opts.Prefetch,
			Workers:    opts.Workers,
		},
		Ranges: DefaultRanges(),
		Eval: EvalConfig{
			Modes: []int{0},
			TopK:  300,
		},
		Output: OutputConfig{
			Dir:    "log",
			Format: "text",
		},
		GPU: GPUConfig{
			MemoryLimit: "auto",
		},
	}
}

// Validate validates the configuration and returns the first error found.
func (c *Config) Validate() error {
	if !slices.Contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}

	if c.Output.Format != "" && !slices.Contains(report.Formats(), c.Output.Format) {
		return fmt.Errorf("invalid output format: %s (must be one of: %s)",
			c.Output.Format, strings.Join(report.Formats(), ", "))
	}

	if err := c.validateDataset(); err != nil {
		return err
	}

	if c.Eval.TopK <= 0 {
		return fmt.Errorf("invalid topk: %d (must be positive)", c.Eval.TopK)
	}
	for _, m := range c.Eval.Modes {
		if _, err := corrupt.Lookup(m); err != nil {
			return fmt.Errorf("eval.modes: %w", err)
		}
	}

	seen := make(map[string]bool, len(c.Models))
	for i, m := range c.Models {
		if err := m.validate(); err != nil {
			return fmt.Errorf("models[%d]: %w", i, err)
		}
		name := m.DisplayName()
		if seen[name] {
			return fmt.Errorf("models[%d]: duplicate model name %q", i, name)
		}
		seen[name] = true
	}

	if c.GPU.Device < 0 {
		return fmt.Errorf("invalid GPU device: %d (must be non-negative)", c.GPU.Device)
	}
	if c.GPU.NumThreads < 0 {
		return fmt.Errorf("invalid num_threads: %d (must be >= 0)", c.GPU.NumThreads)
	}
	if _, err := parseMemoryLimit(c.GPU.MemoryLimit); err != nil {
		return fmt.Errorf("invalid GPU memory limit: %w", err)
	}
	return nil
}

func (c *Config) validateDataset() error {
	d := c.Dataset
	if _, err := c.Range(); err != nil {
		return err
	}
	if _, err := retrieval.ParseRelevance(d.Relevance); err != nil {
		return err
	}
	if d.BatchSize <= 0 {
		return fmt.Errorf("invalid batch size: %d (must be positive)", d.BatchSize)
	}
	if d.CropSize <= 0 || d.ResizeSize < d.CropSize {
		return fmt.Errorf("invalid preprocessing: need 0 < crop_size (%d) <= resize_size (%d)", d.CropSize, d.ResizeSize)
	}
	if d.Prefetch < 0 || d.Workers < 0 {
		return errors.New("prefetch and workers must be non-negative")
	}
	return nil
}

func (m ModelConfig) validate() error {
	if m.Arch == "" && m.Path == "" {
		return errors.New("either arch or path is required")
	}
	if m.Arch != "" {
		if err := onnx.ValidateArch(m.Arch); err != nil {
			return err
		}
	}
	if m.HashBit <= 0 {
		return fmt.Errorf("invalid hash_bit: %d (must be positive)", m.HashBit)
	}
	if m.DatabaseCodes == "" || m.DatabaseLabels == "" {
		return errors.New("database_codes and database_labels are required")
	}
	return nil
}

// DisplayName is Name, or <arch>_<bits> when no name is set.
func (m ModelConfig) DisplayName() string {
	if m.Name != "" {
		return m.Name
	}
	if m.Arch != "" {
		return fmt.Sprintf("%s_%d", m.Arch, m.HashBit)
	}
	return m.Path
}

// Range resolves the dataset's normalization entry.
func (c *Config) Range() (corrupt.Range, error) {
	name := c.Dataset.Name
	entry, ok := c.Ranges[name]
	if !ok {
		// viper lower-cases map keys
		entry, ok = c.Ranges[strings.ToLower(name)]
	}
	if !ok {
		return corrupt.Range{}, fmt.Errorf("no pixel range configured for dataset %q", name)
	}
	r := corrupt.Range{Name: name, Mean: entry.Mean, Std: entry.Std}
	if err := r.Validate(); err != nil {
		return corrupt.Range{}, err
	}
	return r, nil
}

// Relevance returns the parsed relevance rule.
func (c *Config) Relevance() (retrieval.Relevance, error) {
	rel, err := retrieval.ParseRelevance(c.Dataset.Relevance)
	if err != nil {
		return 0, fmt.Errorf("dataset.relevance: %w", err)
	}
	return rel, nil
}

// ToDatasetOptions converts to dataset.Options. Logger is left unset.
func (c *Config) ToDatasetOptions() (dataset.Options, error) {
	r, err := c.Range()
	if err != nil {
		return dataset.Options{}, err
	}
	return dataset.Options{
		Root:       c.Dataset.Root,
		BatchSize:  c.Dataset.BatchSize,
		ResizeSize: c.Dataset.ResizeSize,
		CropSize:   c.Dataset.CropSize,
		Prefetch:   c.Dataset.Prefetch,
		Workers:    c.Dataset.Workers,
		Range:      r,
	}, nil
}

// ToGPUConfig converts to onnx.GPUConfig.
func (c *Config) ToGPUConfig() (onnx.GPUConfig, error) {
	cfg := onnx.DefaultGPUConfig()
	cfg.UseGPU = c.GPU.Enabled
	cfg.DeviceID = c.GPU.Device
	limit, err := parseMemoryLimit(c.GPU.MemoryLimit)
	if err != nil {
		return onnx.GPUConfig{}, fmt.Errorf("gpu.memory_limit: %w", err)
	}
	cfg.GPUMemLimit = limit
	return cfg, nil
}

// ToNetworkConfig converts one model entry to onnx.Config, resolving the
// model path from models_dir when none is given.
func (c *Config) ToNetworkConfig(m ModelConfig) (onnx.Config, error) {
	gpu, err := c.ToGPUConfig()
	if err != nil {
		return onnx.Config{}, err
	}
	path := m.Path
	if path == "" {
		path = onnx.ModelPath(c.ModelsDir, m.Arch, m.HashBit)
	}
	return onnx.Config{
		ModelPath:  path,
		Arch:       m.Arch,
		HashBit:    m.HashBit,
		NumThreads: c.GPU.NumThreads,
		GPU:        gpu,
	}, nil
}

// parseMemoryLimit accepts "", "auto" (no limit) or a size like "2GB".
func parseMemoryLimit(limit string) (uint64, error) {
	if limit == "" || limit == "auto" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(limit)
	if err != nil {
		return 0, fmt.Errorf("invalid memory limit %q: %w", limit, err)
	}
	return n, nil
}
