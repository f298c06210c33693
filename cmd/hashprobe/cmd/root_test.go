package cmd

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/hashprobe/internal/config"
	"github.com/MeKo-Tech/hashprobe/internal/experiment"
	"github.com/MeKo-Tech/hashprobe/internal/version"
)

// execute runs a fresh command tree in an isolated environment and returns
// stdout and stderr separately.
func execute(t *testing.T, open experiment.Opener, args ...string) (string, string, error) {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
	if open == nil {
		open = experiment.OpenONNX
	}

	root := newRootCommand(config.NewLoaderWithViper(viper.New()), open)
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestRootCommand(t *testing.T) {
	root := NewRootCommand()
	assert.Equal(t, "hashprobe", root.Use)
	assert.NotEmpty(t, root.Short)
	assert.NotEmpty(t, root.Long)

	names := make([]string, 0, len(root.Commands()))
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, expected := range []string{"eval", "score", "modes", "bench", "config", "history"} {
		assert.Contains(t, names, expected, "Expected subcommand '%s' not found", expected)
	}
}

func TestRootCommandHelp(t *testing.T) {
	t.Chdir(t.TempDir())
	out, _, err := execute(t, nil, "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "deep hashing")
	assert.Contains(t, out, "Available Commands:")
	assert.Contains(t, out, "Usage:")
}

func TestRootCommandNoArgsShowsHelp(t *testing.T) {
	t.Chdir(t.TempDir())
	out, _, err := execute(t, nil)
	require.NoError(t, err)
	assert.Contains(t, out, "Available Commands:")
}

func TestRootCommandVersion(t *testing.T) {
	t.Chdir(t.TempDir())
	out, _, err := execute(t, nil, "--version")
	require.NoError(t, err)
	assert.Contains(t, out, version.String())
}

func TestRootCommandInvalidFlag(t *testing.T) {
	t.Chdir(t.TempDir())
	_, errOut, err := execute(t, nil, "--invalid-flag")
	require.Error(t, err)
	assert.Contains(t, errOut, "unknown flag")
}

func TestRootCommandBadConfigFile(t *testing.T) {
	t.Chdir(t.TempDir())
	_, _, err := execute(t, nil, "modes", "--config", "/nonexistent/hashprobe.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error loading configuration")
}

func TestLogLevel(t *testing.T) {
	tests := []struct {
		level   string
		verbose bool
		want    slog.Level
	}{
		{"debug", false, slog.LevelDebug},
		{"info", false, slog.LevelInfo},
		{"warn", false, slog.LevelWarn},
		{"error", false, slog.LevelError},
		{"bogus", false, slog.LevelInfo},
		{"error", true, slog.LevelDebug},
	}
	for _, tt := range tests {
		cfg := config.DefaultConfig()
		cfg.LogLevel = tt.level
		cfg.Verbose = tt.verbose
		assert.Equal(t, tt.want, logLevel(&cfg), "%s verbose=%v", tt.level, tt.verbose)
	}
}

func TestVerboseFlagEnablesDebugLogs(t *testing.T) {
	t.Chdir(t.TempDir())
	require.NoError(t, os.WriteFile("hashprobe.yaml", []byte("eval:\n  topk: 10\n"), 0o644))

	_, errOut, err := execute(t, nil, "modes")
	require.NoError(t, err)
	assert.NotContains(t, errOut, "configuration loaded")

	_, errOut, err = execute(t, nil, "--verbose", "modes")
	require.NoError(t, err)
	assert.Contains(t, errOut, `"msg":"configuration loaded"`)
	assert.Contains(t, errOut, "hashprobe.yaml")
}

func TestModesCommand(t *testing.T) {
	t.Chdir(t.TempDir())
	out, _, err := execute(t, nil, "modes")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 22)
	assert.Equal(t, []string{"MODE", "FAMILY", "PARAMETER"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"0", "identity", "-"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"13", "jpeg", "quality=90"}, strings.Fields(lines[14]))
	assert.Equal(t, []string{"17", "resize", "size=112"}, strings.Fields(lines[18]))
}

func TestBenchCommand(t *testing.T) {
	t.Chdir(t.TempDir())
	out, _, err := execute(t, nil, "bench", "--modes", "0,9,13", "--batch", "2", "--size", "16", "--iterations", "2")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "BENCHMARK", strings.Fields(lines[0])[0])
	assert.Equal(t, []string{"mode_9_noise", "2"}, strings.Fields(lines[2])[:2])
	assert.Equal(t, "mode_13_jpeg", strings.Fields(lines[3])[0])
}

func TestBenchCommandRejectsBadArguments(t *testing.T) {
	t.Chdir(t.TempDir())
	_, _, err := execute(t, nil, "bench", "--iterations", "0")
	require.Error(t, err)

	_, _, err = execute(t, nil, "bench", "--modes", "77", "--size", "16")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported mode")
}
