package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points every search path at empty temp dirs and returns a loader
// on a fresh viper instance.
func isolate(t *testing.T) *Loader {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	t.Chdir(t.TempDir())
	return NewLoaderWithViper(viper.New())
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hashprobe.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestNewLoader(t *testing.T) {
	loader := NewLoader()
	require.NotNil(t, loader)
	assert.Same(t, viper.GetViper(), loader.GetViper())
}

func TestLoadWithNoConfigFile(t *testing.T) {
	loader := isolate(t)

	cfg, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 300, cfg.Eval.TopK)
	assert.Equal(t, []int{0}, cfg.Eval.Modes)
	assert.Equal(t, 224, cfg.Dataset.CropSize)
	assert.Empty(t, loader.GetConfigFileUsed())

	r, err := cfg.Range()
	require.NoError(t, err)
	assert.Equal(t, "imagenet", r.Name)
}

func TestLoadFindsFileInWorkingDirectory(t *testing.T) {
	loader := isolate(t)
	require.NoError(t, os.WriteFile("hashprobe.yaml", []byte("eval:\n  topk: 42\n"), 0o644))

	cfg, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, 42, cfg.Eval.TopK)
	assert.Contains(t, loader.GetConfigFileUsed(), "hashprobe.yaml")
}

func TestLoadWithValidYAMLFile(t *testing.T) {
	loader := isolate(t)
	path := writeConfig(t, `
log_level: debug
models_dir: /custom/models
noise: /data/noise.npy
dataset:
  name: faces
  root: /data/faces
  relevance: exact
  batch_size: 16
ranges:
  faces:
    mean: [0.5, 0.5, 0.5]
    std: [0.5, 0.5, 0.5]
models:
  - arch: ResNet50
    hash_bit: 64
    database_codes: /db/r50_codes.npy
    database_labels: /db/r50_labels.npy
  - name: vgg
    path: /m/vgg.onnx
    hash_bit: 32
    database_codes: /db/vgg_codes.npy
    database_labels: /db/vgg_labels.npy
eval:
  modes: [0, 5, 13, 20]
  topk: 100
  seed: 7
  clamp_clean_jpeg: true
output:
  format: yaml
gpu:
  enabled: true
  device: 1
  memory_limit: 2GB
  num_threads: 4
`)

	cfg, err := loader.LoadWithFile(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "/data/noise.npy", cfg.Noise)
	assert.Equal(t, 16, cfg.Dataset.BatchSize)
	assert.Equal(t, 255, cfg.Dataset.ResizeSize, "unset keys keep defaults")
	assert.Equal(t, []int{0, 5, 13, 20}, cfg.Eval.Modes)
	assert.Equal(t, uint64(7), cfg.Eval.Seed)
	assert.True(t, cfg.Eval.ClampCleanJPEG)

	r, err := cfg.Range()
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.5, 0.5}, r.Mean)
	_, builtin := cfg.Ranges["imagenet"]
	assert.True(t, builtin, "built-in ranges survive a user table")

	require.Len(t, cfg.Models, 2)
	assert.Equal(t, "ResNet50_64", cfg.Models[0].DisplayName())
	resnet, err := cfg.ToNetworkConfig(cfg.Models[0])
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/custom/models", "ResNet50_64.onnx"), resnet.ModelPath)
	assert.Equal(t, 4, resnet.NumThreads)
	vgg, err := cfg.ToNetworkConfig(cfg.Models[1])
	require.NoError(t, err)
	assert.Equal(t, "/m/vgg.onnx", vgg.ModelPath)

	gpu, err := cfg.ToGPUConfig()
	require.NoError(t, err)
	assert.True(t, gpu.UseGPU)
	assert.Equal(t, 1, gpu.DeviceID)
	assert.Equal(t, uint64(2_000_000_000), gpu.GPUMemLimit)
}

func TestLoadWithInvalidYAMLFile(t *testing.T) {
	loader := isolate(t)
	path := writeConfig(t, "log_level: debug\n  invalid indentation\n    more\n")
	_, err := loader.LoadWithFile(path)
	assert.Error(t, err)
}

func TestLoadWithNonExistentFile(t *testing.T) {
	loader := isolate(t)
	_, err := loader.LoadWithFile("/nonexistent/path/to/hashprobe.yaml")
	assert.Error(t, err)
}

func TestLoadWithValidationFailure(t *testing.T) {
	loader := isolate(t)
	path := writeConfig(t, "eval:\n  modes: [0, 21]\n")
	_, err := loader.LoadWithFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported mode")
}

func TestLoadWithoutValidation(t *testing.T) {
	loader := isolate(t)
	path := writeConfig(t, "log_level: invalid_level\neval:\n  topk: -1\n")

	cfg, err := loader.LoadWithFileWithoutValidation(path)
	require.NoError(t, err)
	assert.Equal(t, "invalid_level", cfg.LogLevel)
	assert.Equal(t, -1, cfg.Eval.TopK)
	assert.Error(t, cfg.Validate())
}

func TestEnvironmentVariableOverride(t *testing.T) {
	loader := isolate(t)
	t.Setenv("HASHPROBE_LOG_LEVEL", "debug")
	t.Setenv("HASHPROBE_EVAL_TOPK", "25")
	t.Setenv("HASHPROBE_DATASET_BATCH_SIZE", "8")
	t.Setenv("HASHPROBE_GPU_ENABLED", "true")

	cfg, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 25, cfg.Eval.TopK)
	assert.Equal(t, 8, cfg.Dataset.BatchSize)
	assert.True(t, cfg.GPU.Enabled)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	loader := isolate(t)
	path := writeConfig(t, "eval:\n  topk: 10\n")
	t.Setenv("HASHPROBE_EVAL_TOPK", "99")

	cfg, err := loader.LoadWithFile(path)
	require.NoError(t, err)
	assert.Equal(t, 99, cfg.Eval.TopK)
}

func TestSetOverridesDefaults(t *testing.T) {
	loader := isolate(t)
	loader.Set("output.format", "csv")
	cfg, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, "csv", cfg.Output.Format)
	assert.Equal(t, "csv", loader.GetResolvedConfig()["output"].(map[string]any)["format"])
}

func TestGetConfigSearchPaths(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	paths := GetConfigSearchPaths()
	assert.Equal(t, ".", paths[0])
	assert.Contains(t, paths, filepath.Join("/xdg", "hashprobe"))
	assert.Equal(t, "/etc/hashprobe", paths[len(paths)-1])
}
