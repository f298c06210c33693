package cmd

import (
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/MeKo-Tech/hashprobe/internal/config"
)

func TestConfigShowYAML(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HASHPROBE_EVAL_TOPK", "77")

	out, _, err := execute(t, nil, "config", "show")
	require.NoError(t, err)

	var cfg config.Config
	require.NoError(t, yaml.Unmarshal([]byte(out), &cfg))
	assert.Equal(t, 77, cfg.Eval.TopK)
	assert.Equal(t, "imagenet", cfg.Dataset.Name)
	assert.Contains(t, cfg.Ranges, "raw")
}

func TestConfigShowJSONWithFlags(t *testing.T) {
	t.Chdir(t.TempDir())
	out, _, err := execute(t, nil, "--log-level", "warn", "--models-dir", "/opt/models", "config", "show", "--format", "json")
	require.NoError(t, err)

	var cfg config.Config
	require.NoError(t, json.Unmarshal([]byte(out), &cfg))
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "/opt/models", cfg.ModelsDir)
}

func TestConfigShowUnknownFormat(t *testing.T) {
	t.Chdir(t.TempDir())
	_, _, err := execute(t, nil, "config", "show", "--format", "toml")
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	t.Chdir(t.TempDir())
	require.NoError(t, os.WriteFile("hashprobe.yaml",
		[]byte("eval:\n  topk: 1500\ngpu:\n  memory_limit: 4GB\n"), 0o644))

	out, _, err := execute(t, nil, "config", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "configuration is valid")
	assert.Contains(t, out, "hashprobe.yaml")
	assert.Contains(t, out, "topk: 1,500")
	assert.Contains(t, out, "gpu memory limit: 4.0 GB")

	t.Setenv("HASHPROBE_DATASET_RELEVANCE", "fuzzy")
	_, _, err = execute(t, nil, "config", "validate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown relevance")
}

func TestConfigPaths(t *testing.T) {
	t.Chdir(t.TempDir())
	out, _, err := execute(t, nil, "config", "paths")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Equal(t, ".", lines[0])
	assert.Equal(t, "/etc/hashprobe", lines[len(lines)-1])
}
