// Package testutil holds fixtures and fake networks shared by tests.
package testutil

import (
	"os"
	"testing"
)

// ModelEnv names the ONNX hashing model used by model-gated tests.
const ModelEnv = "HASHPROBE_TEST_MODEL"

// ModelOrSkip returns the ONNX hashing model named by HASHPROBE_TEST_MODEL
// and skips the test when it is unset or missing.
func ModelOrSkip(t *testing.T) string {
	t.Helper()

	path := os.Getenv(ModelEnv)
	if path == "" {
		t.Skip(ModelEnv + " not set")
	}
	if !FileExists(path) {
		t.Skipf("model %s not found", path)
	}
	return path
}

// EnsureDir creates a directory if it doesn't exist.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0o750)
}

// FileExists checks if a file exists.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}
