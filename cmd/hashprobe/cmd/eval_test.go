package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/hashprobe/internal/experiment"
	"github.com/MeKo-Tech/hashprobe/internal/onnx"
	"github.com/MeKo-Tech/hashprobe/internal/report"
	"github.com/MeKo-Tech/hashprobe/internal/tensor"
	"github.com/MeKo-Tech/hashprobe/internal/testutil"
)

type projectionModel struct {
	*testutil.ProjectionNetwork
}

func (projectionModel) Close() error { return nil }

func projectionOpener(cfg onnx.Config) (experiment.Model, error) {
	return projectionModel{testutil.NewProjectionNetwork(cfg.HashBit)}, nil
}

// writeEvalConfig builds a tiny dataset, noise pattern and database and
// returns the path of a hashprobe.yaml describing them.
func writeEvalConfig(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	items := make([]testutil.DatasetItem, 5)
	for i := range items {
		labels := []int{0, 0}
		labels[i%2] = 1
		items[i] = testutil.DatasetItem{Path: fmt.Sprintf("img/%d.png", i), Labels: labels}
	}
	testutil.WriteDataset(t, root, 20, items)

	art := t.TempDir()
	noise := testutil.WriteNpy(t, art, "noise.npy", []int{3, 16, 16}, testutil.UniformNoise(16, 0.01))
	codes := tensor.NewMatrix(4, 8)
	for i := range codes.Data {
		codes.Data[i] = float32(1 - 2*((i/3)%2))
	}
	labels := tensor.NewMatrix(4, 2)
	for i := range 4 {
		labels.Row(i)[i%2] = 1
	}
	dbCodes := testutil.WriteMatrixNpy(t, art, "db_codes.npy", codes)
	dbLabels := testutil.WriteMatrixNpy(t, art, "db_labels.npy", labels)

	content := fmt.Sprintf(`dataset:
  root: %s
  batch_size: 2
  resize_size: 18
  crop_size: 16
noise: %s
models:
  - arch: Vgg16
    hash_bit: 8
    database_codes: %s
    database_labels: %s
eval:
  topk: 4
`, root, noise, dbCodes, dbLabels)
	path := filepath.Join(t.TempDir(), "hashprobe.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestEvalAndHistory(t *testing.T) {
	t.Chdir(t.TempDir())
	cfgFile := writeEvalConfig(t)
	out := t.TempDir()
	db := filepath.Join(out, "results.db")
	summary := filepath.Join(out, "summary.csv")

	stdout, _, err := execute(t, projectionOpener, "eval", "--config", cfgFile,
		"--modes", "0,9,14", "--run-id", "cli-run", "--output-dir", out,
		"--results-db", db, "--format", "csv", "--output", summary)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 7)
	assert.Equal(t, "testing", lines[0])
	assert.Equal(t, report.ModeBanner(9), lines[3])
	assert.Equal(t, report.ModeBanner(14), lines[5])
	for _, i := range []int{2, 4, 6} {
		assert.True(t, strings.HasPrefix(lines[i], "mAP:"), lines[i])
		assert.Contains(t, lines[i], "->")
	}

	logData, err := os.ReadFile(filepath.Join(out, "cli-run", report.LogFileName))
	require.NoError(t, err)
	assert.Equal(t, stdout, string(logData))

	csvData, err := os.ReadFile(summary)
	require.NoError(t, err)
	csvLines := strings.Split(strings.TrimSpace(string(csvData)), "\n")
	require.Len(t, csvLines, 4)
	assert.True(t, strings.HasPrefix(csvLines[1], "cli-run,Vgg16_8,0,identity"), csvLines[1])

	hist, _, err := execute(t, nil, "history", "--results-db", db, "--mode", "14")
	require.NoError(t, err)
	rows := strings.Split(strings.TrimSpace(hist), "\n")
	require.Len(t, rows, 2)
	fields := strings.Fields(rows[1])
	assert.Equal(t, []string{"cli-run", "Vgg16_8", "14", "jpeg"}, fields[:4])
}

func TestEvalRejectsInvalidConfiguration(t *testing.T) {
	t.Chdir(t.TempDir())
	cfgFile := writeEvalConfig(t)

	_, _, err := execute(t, projectionOpener, "eval", "--config", cfgFile, "--modes", "0,42")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
	assert.Contains(t, err.Error(), "unsupported mode")
}

func TestEvalWithoutModels(t *testing.T) {
	t.Chdir(t.TempDir())
	_, _, err := execute(t, projectionOpener, "eval")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no models configured")
}

func TestEvalModelLoadFailure(t *testing.T) {
	t.Chdir(t.TempDir())
	cfgFile := writeEvalConfig(t)
	boom := errors.New("cuda unavailable")
	failing := func(onnx.Config) (experiment.Model, error) { return nil, boom }

	stdout, _, err := execute(t, failing, "eval", "--config", cfgFile, "--output-dir", t.TempDir())
	require.ErrorIs(t, err, boom)
	var ae *experiment.ArtifactError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "model", ae.Kind)
	assert.Empty(t, stdout)
}

func TestHistoryRequiresDatabase(t *testing.T) {
	t.Chdir(t.TempDir())
	_, _, err := execute(t, nil, "history")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no results database configured")

	_, _, err = execute(t, nil, "history", "--results-db", filepath.Join(t.TempDir(), "missing.db"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "results database")
}
