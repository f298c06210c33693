package onnx

import (
	"fmt"
	"log/slog"
	"slices"
	"strconv"

	"github.com/yalue/onnxruntime_go"
)

var (
	arenaStrategies = []string{"kNextPowerOfTwo", "kSameAsRequested"}
	convAlgoSearch  = []string{"EXHAUSTIVE", "HEURISTIC", "DEFAULT"}
)

// GPUConfig selects the CUDA execution provider for hashing networks.
type GPUConfig struct {
	UseGPU                bool
	DeviceID              int
	GPUMemLimit           uint64 // bytes, 0 = unlimited
	ArenaExtendStrategy   string
	CUDNNConvAlgoSearch   string
	DoCopyInDefaultStream bool
}

// DefaultGPUConfig returns the CPU configuration with CUDA tuning defaults
// filled in for when the GPU is switched on.
func DefaultGPUConfig() GPUConfig {
	return GPUConfig{
		ArenaExtendStrategy:   arenaStrategies[0],
		CUDNNConvAlgoSearch:   "DEFAULT",
		DoCopyInDefaultStream: true,
	}
}

// ValidateGPUConfig checks the CUDA settings. A disabled GPU is always valid.
func ValidateGPUConfig(config GPUConfig) error {
	if !config.UseGPU {
		return nil
	}
	if config.DeviceID < 0 {
		return fmt.Errorf("device ID must be non-negative, got %d", config.DeviceID)
	}
	if s := config.ArenaExtendStrategy; s != "" && !slices.Contains(arenaStrategies, s) {
		return fmt.Errorf("invalid arena extend strategy %q (want one of %v)", s, arenaStrategies)
	}
	if s := config.CUDNNConvAlgoSearch; s != "" && !slices.Contains(convAlgoSearch, s) {
		return fmt.Errorf("invalid CUDNN conv algo search %q (want one of %v)", s, convAlgoSearch)
	}
	return nil
}

// cudaSettings renders config as CUDA provider option strings.
func cudaSettings(config GPUConfig) map[string]string {
	settings := map[string]string{
		"device_id":                 strconv.Itoa(config.DeviceID),
		"do_copy_in_default_stream": "0",
	}
	if config.DoCopyInDefaultStream {
		settings["do_copy_in_default_stream"] = "1"
	}
	if config.GPUMemLimit > 0 {
		settings["gpu_mem_limit"] = strconv.FormatUint(config.GPUMemLimit, 10)
	}
	if config.ArenaExtendStrategy != "" {
		settings["arena_extend_strategy"] = config.ArenaExtendStrategy
	}
	if config.CUDNNConvAlgoSearch != "" {
		settings["cudnn_conv_algo_search"] = config.CUDNNConvAlgoSearch
	}
	return settings
}

// ConfigureSessionForGPU appends the CUDA execution provider when the GPU
// is enabled. An unavailable device is an error, never a CPU fallback.
func ConfigureSessionForGPU(sessionOptions *onnxruntime_go.SessionOptions, config GPUConfig) error {
	if !config.UseGPU {
		return nil
	}

	cudaOpts, err := onnxruntime_go.NewCUDAProviderOptions()
	if err != nil {
		return fmt.Errorf("cuda device %d unavailable: %w", config.DeviceID, err)
	}
	defer func() {
		if destroyErr := cudaOpts.Destroy(); destroyErr != nil {
			slog.Warn("failed to destroy CUDA provider options", "error", destroyErr)
		}
	}()

	if err := cudaOpts.Update(cudaSettings(config)); err != nil {
		return fmt.Errorf("failed to update CUDA provider options: %w", err)
	}
	if err := sessionOptions.AppendExecutionProviderCUDA(cudaOpts); err != nil {
		return fmt.Errorf("failed to append CUDA execution provider: %w", err)
	}
	slog.Debug("cuda execution provider enabled", "device", config.DeviceID, "mem_limit", config.GPUMemLimit)
	return nil
}
