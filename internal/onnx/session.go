package onnx

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/yalue/onnxruntime_go"
)

var envMu sync.Mutex

// setupEnvironment points onnxruntime_go at the shared library and
// initializes the runtime once per process.
func setupEnvironment(useGPU bool) error {
	envMu.Lock()
	defer envMu.Unlock()

	if onnxruntime_go.IsInitialized() {
		return nil
	}
	if err := SetONNXLibraryPath(useGPU); err != nil {
		return fmt.Errorf("failed to set ONNX Runtime library path: %w", err)
	}
	if err := onnxruntime_go.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX Runtime: %w", err)
	}
	return nil
}

// Shutdown tears down the ONNX Runtime environment. Call once when every
// network is closed.
func Shutdown() error {
	envMu.Lock()
	defer envMu.Unlock()

	if !onnxruntime_go.IsInitialized() {
		return nil
	}
	return onnxruntime_go.DestroyEnvironment()
}

// inspectModel reads input/output metadata and checks the hashing network
// contract: one 4-D image input and one 2-D [N, bits] output.
func inspectModel(modelPath string, hashBit int) (onnxruntime_go.InputOutputInfo, onnxruntime_go.InputOutputInfo, error) {
	var none onnxruntime_go.InputOutputInfo
	inputs, outputs, err := onnxruntime_go.GetInputOutputInfo(modelPath)
	if err != nil {
		return none, none, fmt.Errorf("failed to get model input/output info: %w", err)
	}
	if len(inputs) != 1 {
		return none, none, fmt.Errorf("expected 1 input, got %d", len(inputs))
	}
	if len(outputs) != 1 {
		return none, none, fmt.Errorf("expected 1 output, got %d", len(outputs))
	}

	in, out := inputs[0], outputs[0]
	if len(in.Dimensions) != 4 {
		return none, none, fmt.Errorf("expected 4D input tensor, got %dD", len(in.Dimensions))
	}
	if err := checkOutputDims(out.Dimensions, hashBit); err != nil {
		return none, none, err
	}
	return in, out, nil
}

// checkOutputDims accepts [N, bits] where N may be dynamic (-1) and bits
// must equal hashBit when the model declares it.
func checkOutputDims(dims onnxruntime_go.Shape, hashBit int) error {
	if len(dims) != 2 {
		return fmt.Errorf("expected 2D code output, got %dD", len(dims))
	}
	if bits := dims[1]; bits > 0 && hashBit > 0 && bits != int64(hashBit) {
		return fmt.Errorf("model emits %d-bit codes, configured hash_bit is %d", bits, hashBit)
	}
	return nil
}

// createSession creates the ONNX session with the given configuration.
func createSession(modelPath string, in, out onnxruntime_go.InputOutputInfo, config Config,
) (*onnxruntime_go.DynamicAdvancedSession, error) {
	sessionOptions, err := onnxruntime_go.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer func() {
		if err := sessionOptions.Destroy(); err != nil {
			slog.Warn("failed to destroy session options", "error", err)
		}
	}()

	if err := ConfigureSessionForGPU(sessionOptions, config.GPU); err != nil {
		return nil, fmt.Errorf("failed to configure GPU: %w", err)
	}

	if config.NumThreads > 0 {
		if err = sessionOptions.SetIntraOpNumThreads(config.NumThreads); err != nil {
			return nil, fmt.Errorf("failed to set thread count: %w", err)
		}
	}

	session, err := onnxruntime_go.NewDynamicAdvancedSession(modelPath,
		[]string{in.Name}, []string{out.Name}, sessionOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}
	return session, nil
}
