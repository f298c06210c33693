package support

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// TestContext holds the state for integration tests.
type TestContext struct {
	// Command execution state
	LastCommand   string
	LastOutput    string
	LastStderr    string
	LastError     error
	LastExitCode  int
	LastStartTime time.Time
	LastDuration  time.Duration

	// Test environment
	WorkingDir string
	TempDir    string

	// Placeholders substituted into commands, e.g. {db_codes}
	Vars map[string]string

	previousDir string
	previousEnv map[string]*string
}

// NewTestContext creates a new test context rooted in a fresh temporary
// directory. The scenario runs with that directory as working directory and
// HOME so no user configuration leaks in.
func NewTestContext() (*TestContext, error) {
	previousDir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}

	tempDir, err := os.MkdirTemp("", "hashprobe-test-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	workingDir := filepath.Join(tempDir, "work")
	if err := os.MkdirAll(workingDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create working directory: %w", err)
	}

	ctx := &TestContext{
		WorkingDir:  workingDir,
		TempDir:     tempDir,
		Vars:        map[string]string{},
		previousDir: previousDir,
		previousEnv: map[string]*string{},
	}
	ctx.SetEnv("HOME", tempDir)
	ctx.SetEnv("XDG_CONFIG_HOME", filepath.Join(tempDir, ".config"))
	if err := os.Chdir(workingDir); err != nil {
		return nil, fmt.Errorf("failed to enter working directory: %w", err)
	}
	return ctx, nil
}

// SetEnv sets an environment variable until Cleanup.
func (testCtx *TestContext) SetEnv(name, value string) {
	if _, saved := testCtx.previousEnv[name]; !saved {
		if old, ok := os.LookupEnv(name); ok {
			testCtx.previousEnv[name] = &old
		} else {
			testCtx.previousEnv[name] = nil
		}
	}
	_ = os.Setenv(name, value)
}

// Cleanup restores the environment and working directory and removes the
// temporary directory.
func (testCtx *TestContext) Cleanup() error {
	var errs []error

	for name, old := range testCtx.previousEnv {
		if old == nil {
			_ = os.Unsetenv(name)
		} else {
			_ = os.Setenv(name, *old)
		}
	}
	if err := os.Chdir(testCtx.previousDir); err != nil {
		errs = append(errs, fmt.Errorf("failed to restore working directory: %w", err))
	}
	if err := os.RemoveAll(testCtx.TempDir); err != nil && !os.IsNotExist(err) {
		errs = append(errs, fmt.Errorf("failed to remove temp directory %s: %w", testCtx.TempDir, err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("cleanup errors: %v", errs)
	}
	return nil
}

// Path returns name inside the scenario's temporary directory.
func (testCtx *TestContext) Path(name string) string {
	return filepath.Join(testCtx.TempDir, name)
}
