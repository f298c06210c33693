// Package onnx runs exported hashing networks with ONNX Runtime.
package onnx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/yalue/onnxruntime_go"

	"github.com/MeKo-Tech/hashprobe/internal/evaluate"
	"github.com/MeKo-Tech/hashprobe/internal/tensor"
)

// Config holds configuration for a hashing network.
type Config struct {
	ModelPath  string    // Path to the exported .onnx model
	Arch       string    // Backbone name, e.g. ResNet50 or Vgg16
	HashBit    int       // Code width the model was trained for
	NumThreads int       // Intra-op CPU threads (0 = runtime default)
	GPU        GPUConfig // GPU acceleration configuration
}

// ModelPath returns dir/<arch>_<bits>.onnx.
func ModelPath(dir, arch string, hashBit int) string {
	return filepath.Join(dir, arch+"_"+strconv.Itoa(hashBit)+".onnx")
}

// ValidateArch accepts the ResNet and VGG backbone families.
func ValidateArch(arch string) error {
	if strings.HasPrefix(arch, "ResNet") || strings.HasPrefix(arch, "Vgg") {
		return nil
	}
	return fmt.Errorf("unsupported architecture %q (want ResNet* or Vgg*)", arch)
}

func validateConfig(config Config) error {
	if config.ModelPath == "" {
		return errors.New("model path cannot be empty")
	}
	if config.Arch != "" {
		if err := ValidateArch(config.Arch); err != nil {
			return err
		}
	}
	if config.HashBit < 0 {
		return fmt.Errorf("hash bit must be >= 0, got %d", config.HashBit)
	}
	return ValidateGPUConfig(config.GPU)
}

// HashNetwork is a frozen hashing model backed by an ONNX Runtime session.
type HashNetwork struct {
	config     Config
	session    *onnxruntime_go.DynamicAdvancedSession
	inputInfo  onnxruntime_go.InputOutputInfo
	outputInfo onnxruntime_go.InputOutputInfo
	mu         sync.RWMutex
}

var _ evaluate.Network = (*HashNetwork)(nil)

// NewHashNetwork loads the model and creates an inference session. A
// missing file, an unusable runtime or an unavailable GPU is an error.
func NewHashNetwork(config Config) (*HashNetwork, error) {
	if err := validateConfig(config); err != nil {
		return nil, err
	}
	if _, err := os.Stat(config.ModelPath); err != nil {
		return nil, fmt.Errorf("model file not found: %w", err)
	}

	slog.Debug("Initializing hash network",
		"model_path", config.ModelPath,
		"arch", config.Arch,
		"hash_bit", config.HashBit,
		"gpu_enabled", config.GPU.UseGPU,
		"num_threads", config.NumThreads)

	if err := setupEnvironment(config.GPU.UseGPU); err != nil {
		return nil, err
	}

	in, out, err := inspectModel(config.ModelPath, config.HashBit)
	if err != nil {
		return nil, err
	}

	session, err := createSession(config.ModelPath, in, out, config)
	if err != nil {
		return nil, err
	}

	slog.Debug("Hash network initialized", "input", in.Name, "output", out.Name)
	return &HashNetwork{config: config, session: session, inputInfo: in, outputInfo: out}, nil
}

// Config returns a copy of the network's configuration.
func (n *HashNetwork) Config() Config {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.config
}

// InputShape returns the declared input shape; dynamic axes are -1.
func (n *HashNetwork) InputShape() []int64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return append([]int64(nil), n.inputInfo.Dimensions...)
}

// Forward runs the model on a [N, 3, H, W] batch and returns [N, bits] codes.
func (n *HashNetwork) Forward(ctx context.Context, images tensor.Tensor) (tensor.Matrix, error) {
	if err := ctx.Err(); err != nil {
		return tensor.Matrix{}, err
	}
	if err := tensor.Verify(images); err != nil {
		return tensor.Matrix{}, fmt.Errorf("invalid tensor: %w", err)
	}

	n.mu.RLock()
	session := n.session
	n.mu.RUnlock()
	if session == nil {
		return tensor.Matrix{}, errors.New("hash network is closed")
	}

	input, err := onnxruntime_go.NewTensor(onnxruntime_go.NewShape(images.Shape...), images.Data)
	if err != nil {
		return tensor.Matrix{}, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer func() {
		if err := input.Destroy(); err != nil {
			slog.Warn("failed to destroy input tensor", "error", err)
		}
	}()

	start := time.Now()
	outputs := []onnxruntime_go.Value{nil}
	if err := session.Run([]onnxruntime_go.Value{input}, outputs); err != nil {
		return tensor.Matrix{}, fmt.Errorf("inference failed: %w", err)
	}
	output := outputs[0]
	defer func() {
		if err := output.Destroy(); err != nil {
			slog.Warn("failed to destroy output tensor", "error", err)
		}
	}()

	floatTensor, ok := output.(*onnxruntime_go.Tensor[float32])
	if !ok {
		return tensor.Matrix{}, fmt.Errorf("expected float32 tensor, got %T", output)
	}
	shape := output.GetShape()
	if err := checkOutputDims(shape, n.config.HashBit); err != nil {
		return tensor.Matrix{}, err
	}
	batch, _, _, _ := images.Dims()
	if int(shape[0]) != batch {
		return tensor.Matrix{}, fmt.Errorf("%w: got %d rows for %d images", evaluate.ErrDimensionMismatch, shape[0], batch)
	}

	// the runtime owns the output buffer
	codes := tensor.NewMatrix(int(shape[0]), int(shape[1]))
	copy(codes.Data, floatTensor.GetData())

	slog.Debug("forward pass", "batch", batch, "bits", codes.Cols, "duration", time.Since(start))
	return codes, nil
}

// Close releases the session. The runtime environment stays up; see Shutdown.
func (n *HashNetwork) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.session == nil {
		return nil
	}
	err := n.session.Destroy()
	n.session = nil
	if err != nil {
		return fmt.Errorf("failed to destroy session: %w", err)
	}
	return nil
}
