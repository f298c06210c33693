package onnx

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	"github.com/yalue/onnxruntime_go"
)

// LibraryPathEnv overrides shared library discovery.
const LibraryPathEnv = "HASHPROBE_ONNXRUNTIME_LIB"

var systemLibDirs = []string{"/usr/local/lib", "/usr/lib", "/opt/onnxruntime/cpu/lib"}

const gpuSystemLibDir = "/opt/onnxruntime/gpu/lib"

// libraryName is the runtime's shared library file name on this OS.
func libraryName() (string, error) {
	switch runtime.GOOS {
	case "linux":
		return "libonnxruntime.so", nil
	case "darwin":
		return "libonnxruntime.dylib", nil
	case "windows":
		return "onnxruntime.dll", nil
	default:
		return "", fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}
}

// libraryCandidates lists where to look, in order: system directories
// (the GPU build first when useGPU is set), then onnxruntime/ under the
// enclosing Go module.
func libraryCandidates(useGPU bool) ([]string, error) {
	name, err := libraryName()
	if err != nil {
		return nil, err
	}

	dirs := systemLibDirs
	if useGPU {
		dirs = append([]string{gpuSystemLibDir}, dirs...)
	}
	candidates := make([]string, 0, len(dirs)+2)
	for _, dir := range dirs {
		candidates = append(candidates, filepath.Join(dir, name))
	}

	if root, err := moduleRoot(); err == nil {
		if useGPU {
			candidates = append(candidates, filepath.Join(root, "onnxruntime", "gpu", "lib", name))
		}
		candidates = append(candidates, filepath.Join(root, "onnxruntime", "lib", name))
	}
	return candidates, nil
}

// moduleRoot walks up from the working directory to the nearest go.mod.
func moduleRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current directory: %w", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("no go.mod above working directory")
		}
		dir = parent
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// SetONNXLibraryPath points onnxruntime_go at the shared library. The
// HASHPROBE_ONNXRUNTIME_LIB override wins and must exist.
func SetONNXLibraryPath(useGPU bool) error {
	if override := os.Getenv(LibraryPathEnv); override != "" {
		if !fileExists(override) {
			return fmt.Errorf("%s points to missing file %s", LibraryPathEnv, override)
		}
		onnxruntime_go.SetSharedLibraryPath(override)
		return nil
	}

	candidates, err := libraryCandidates(useGPU)
	if err != nil {
		return err
	}
	for _, path := range candidates {
		if fileExists(path) {
			slog.Debug("using ONNX Runtime library", "path", path)
			onnxruntime_go.SetSharedLibraryPath(path)
			return nil
		}
	}
	return fmt.Errorf("ONNX Runtime library not found (tried %d locations, set %s)", len(candidates), LibraryPathEnv)
}
