package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/hashprobe/internal/retrieval"
)

func validConfig() Config {
	cfg := DefaultConfig()
	cfg.Models = []ModelConfig{{
		Arch:           "ResNet50",
		HashBit:        64,
		DatabaseCodes:  "codes.npy",
		DatabaseLabels: "labels.npy",
	}}
	return cfg
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	rel, err := cfg.Relevance()
	require.NoError(t, err)
	assert.Equal(t, retrieval.MultiHot, rel)

	for _, name := range []string{"imagenet", "nus_wide", "coco", "cifar10", "vggfaces2", "raw"} {
		cfg.Dataset.Name = name
		r, err := cfg.Range()
		require.NoError(t, err, name)
		assert.Equal(t, name, r.Name)
	}
}

func TestRawRangeIsUnitInterval(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Dataset.Name = "raw"
	r, err := cfg.Range()
	require.NoError(t, err)
	for c := range 3 {
		assert.InDelta(t, 0, r.Lo(c), 1e-9)
		assert.InDelta(t, 1, r.Hi(c), 1e-9)
	}
}

func TestRangeLookupIsCaseInsensitive(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Dataset.Name = "NUS_WIDE"
	_, err := cfg.Range()
	assert.NoError(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"log level", func(c *Config) { c.LogLevel = "trace" }, "invalid log level"},
		{"output format", func(c *Config) { c.Output.Format = "xml" }, "invalid output format"},
		{"unknown dataset", func(c *Config) { c.Dataset.Name = "mnist" }, "no pixel range"},
		{"bad std", func(c *Config) {
			c.Ranges["imagenet"] = RangeConfig{Mean: []float32{0, 0, 0}, Std: []float32{1, 0, 1}}
		}, "std[1]"},
		{"relevance", func(c *Config) { c.Dataset.Relevance = "jaccard" }, "unknown relevance"},
		{"batch size", func(c *Config) { c.Dataset.BatchSize = 0 }, "batch size"},
		{"crop larger than resize", func(c *Config) { c.Dataset.CropSize = 300 }, "crop_size"},
		{"topk", func(c *Config) { c.Eval.TopK = 0 }, "topk"},
		{"mode", func(c *Config) { c.Eval.Modes = []int{3, -1} }, "unsupported mode"},
		{"model without arch or path", func(c *Config) { c.Models[0].Arch = "" }, "arch or path"},
		{"model arch", func(c *Config) { c.Models[0].Arch = "AlexNet" }, "unsupported architecture"},
		{"hash bit", func(c *Config) { c.Models[0].HashBit = 0 }, "hash_bit"},
		{"database", func(c *Config) { c.Models[0].DatabaseLabels = "" }, "database_codes and database_labels"},
		{"duplicate model", func(c *Config) { c.Models = append(c.Models, c.Models[0]) }, "duplicate model"},
		{"gpu device", func(c *Config) { c.GPU.Device = -1 }, "GPU device"},
		{"threads", func(c *Config) { c.GPU.NumThreads = -2 }, "num_threads"},
		{"memory limit", func(c *Config) { c.GPU.MemoryLimit = "lots" }, "memory limit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Ranges = DefaultRanges()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseMemoryLimit(t *testing.T) {
	tests := map[string]uint64{
		"":      0,
		"auto":  0,
		"512MB": 512_000_000,
		"1GiB":  1 << 30,
	}
	for in, want := range tests {
		got, err := parseMemoryLimit(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := parseMemoryLimit("fast")
	assert.Error(t, err)
}

func TestToDatasetOptions(t *testing.T) {
	cfg := validConfig()
	cfg.Dataset.Root = "/data"
	cfg.Dataset.Workers = 3
	opts, err := cfg.ToDatasetOptions()
	require.NoError(t, err)
	assert.Equal(t, "/data", opts.Root)
	assert.Equal(t, 3, opts.Workers)
	assert.Equal(t, 224, opts.CropSize)
	assert.Equal(t, "imagenet", opts.Range.Name)
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "custom", ModelConfig{Name: "custom", Arch: "Vgg16", HashBit: 32}.DisplayName())
	assert.Equal(t, "Vgg16_32", ModelConfig{Arch: "Vgg16", HashBit: 32}.DisplayName())
	assert.Equal(t, "m.onnx", ModelConfig{Path: "m.onnx", HashBit: 32}.DisplayName())
}

func TestConvertersReportInvalidFields(t *testing.T) {
	cfg := validConfig()
	cfg.GPU.MemoryLimit = "fast"

	_, err := cfg.ToGPUConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gpu.memory_limit")
	_, err = cfg.ToNetworkConfig(cfg.Models[0])
	assert.Error(t, err)

	cfg = validConfig()
	cfg.Dataset.Relevance = "fuzzy"
	_, err = cfg.Relevance()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dataset.relevance")
}
