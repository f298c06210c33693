package onnx

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultGPUConfig(t *testing.T) {
	config := DefaultGPUConfig()

	assert.False(t, config.UseGPU)
	assert.Zero(t, config.DeviceID)
	assert.Zero(t, config.GPUMemLimit)
	assert.Equal(t, "kNextPowerOfTwo", config.ArenaExtendStrategy)
	assert.Equal(t, "DEFAULT", config.CUDNNConvAlgoSearch)
	assert.True(t, config.DoCopyInDefaultStream)
	assert.NoError(t, ValidateGPUConfig(config))
}

func TestValidateGPUConfig(t *testing.T) {
	tests := []struct {
		name    string
		config  GPUConfig
		wantErr string
	}{
		{name: "disabled ignores other fields", config: GPUConfig{DeviceID: -3, ArenaExtendStrategy: "bogus"}},
		{name: "valid", config: GPUConfig{UseGPU: true, DeviceID: 1, ArenaExtendStrategy: "kSameAsRequested", CUDNNConvAlgoSearch: "EXHAUSTIVE"}},
		{name: "empty strings allowed", config: GPUConfig{UseGPU: true}},
		{name: "negative device", config: GPUConfig{UseGPU: true, DeviceID: -1}, wantErr: "device ID"},
		{name: "bad arena", config: GPUConfig{UseGPU: true, ArenaExtendStrategy: "grow"}, wantErr: "arena extend strategy"},
		{name: "bad algo search", config: GPUConfig{UseGPU: true, CUDNNConvAlgoSearch: "FAST"}, wantErr: "CUDNN conv algo search"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateGPUConfig(tt.config)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestCUDASettings(t *testing.T) {
	config := DefaultGPUConfig()
	config.UseGPU = true
	config.DeviceID = 2
	config.GPUMemLimit = 2_000_000_000

	assert.Equal(t, map[string]string{
		"device_id":                 "2",
		"do_copy_in_default_stream": "1",
		"gpu_mem_limit":             "2000000000",
		"arena_extend_strategy":     "kNextPowerOfTwo",
		"cudnn_conv_algo_search":    "DEFAULT",
	}, cudaSettings(config))

	bare := cudaSettings(GPUConfig{UseGPU: true})
	assert.Equal(t, "0", bare["do_copy_in_default_stream"])
	assert.NotContains(t, bare, "gpu_mem_limit")
	assert.NotContains(t, bare, "arena_extend_strategy")
}

func TestConfigureSessionForGPUDisabledIsNoop(t *testing.T) {
	// nothing is touched when the GPU is off
	assert.NoError(t, ConfigureSessionForGPU(nil, GPUConfig{}))
}

func makeProject(t *testing.T) string {
	t.Helper()
	projectDir := filepath.Join(t.TempDir(), "project")
	require.NoError(t, os.MkdirAll(filepath.Join(projectDir, "subdir"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(projectDir, "go.mod"), []byte("module test\n\ngo 1.25\n"), 0o644))
	return projectDir
}

func TestLibraryCandidates(t *testing.T) {
	projectDir := makeProject(t)
	t.Chdir(filepath.Join(projectDir, "subdir"))
	name, err := libraryName()
	require.NoError(t, err)

	cpu, err := libraryCandidates(false)
	require.NoError(t, err)
	gpu, err := libraryCandidates(true)
	require.NoError(t, err)

	require.Len(t, cpu, len(systemLibDirs)+1)
	require.Len(t, gpu, len(systemLibDirs)+3)
	assert.Equal(t, filepath.Join(gpuSystemLibDir, name), gpu[0])
	assert.Equal(t, filepath.Join(projectDir, "onnxruntime", "lib", name), cpu[len(cpu)-1])
	assert.Equal(t, filepath.Join(projectDir, "onnxruntime", "gpu", "lib", name), gpu[len(gpu)-2])
	for _, p := range cpu {
		assert.False(t, strings.Contains(p, "gpu"), p)
	}
}

func TestLibraryCandidatesOutsideModule(t *testing.T) {
	t.Chdir(t.TempDir())

	_, err := moduleRoot()
	assert.Error(t, err)

	cpu, err := libraryCandidates(false)
	require.NoError(t, err)
	assert.Len(t, cpu, len(systemLibDirs))
}

func TestSetONNXLibraryPathEnvOverride(t *testing.T) {
	libPath := filepath.Join(t.TempDir(), "custom.so")
	require.NoError(t, os.WriteFile(libPath, []byte("fake"), 0o644))

	t.Setenv(LibraryPathEnv, libPath)
	assert.NoError(t, SetONNXLibraryPath(false))

	t.Setenv(LibraryPathEnv, filepath.Join(t.TempDir(), "missing.so"))
	err := SetONNXLibraryPath(false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), LibraryPathEnv)
}

func TestSetONNXLibraryPathProjectLocal(t *testing.T) {
	t.Setenv(LibraryPathEnv, "")
	projectDir := makeProject(t)
	name, err := libraryName()
	require.NoError(t, err)

	cpuLibDir := filepath.Join(projectDir, "onnxruntime", "lib")
	require.NoError(t, os.MkdirAll(cpuLibDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(cpuLibDir, name), []byte("fake cpu library"), 0o644))
	t.Chdir(projectDir)

	assert.NoError(t, SetONNXLibraryPath(false))
	// GPU falls back to the CPU build when no GPU build is present
	assert.NoError(t, SetONNXLibraryPath(true))
}
