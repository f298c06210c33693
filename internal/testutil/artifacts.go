package testutil

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/hashprobe/internal/npy"
	"github.com/MeKo-Tech/hashprobe/internal/tensor"
)

// WriteNpy writes a float32 .npy fixture and returns its path.
func WriteNpy(t *testing.T, dir, name string, shape []int, data []float32) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, npy.WriteFile(path, shape, data))
	return path
}

// WriteMatrixNpy writes m as a 2-D .npy fixture and returns its path.
func WriteMatrixNpy(t *testing.T, dir, name string, m tensor.Matrix) string {
	t.Helper()
	return WriteNpy(t, dir, name, []int{m.Rows, m.Cols}, m.Data)
}

// SyntheticImage draws a deterministic colour pattern keyed by seed.
func SyntheticImage(width, height, seed int) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := range height {
		for x := range width {
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8((x*3 + seed*40) % 256),
				G: uint8((y*5 + seed*70) % 256),
				B: uint8((x + y + seed*13) % 256),
				A: 255,
			})
		}
	}
	return img
}

// SaveImage encodes img by file extension.
func SaveImage(t *testing.T, img image.Image, path string) {
	t.Helper()

	require.NoError(t, EnsureDir(filepath.Dir(path)))
	require.NoError(t, imaging.Save(img, path), "Failed to save image: %s", path)
}

// DatasetItem is one line of a generated manifest.
type DatasetItem struct {
	Path   string
	Labels []int
}

// WriteDataset generates one synthetic image per item under root and a
// manifest listing them. It returns the manifest path.
func WriteDataset(t *testing.T, root string, size int, items []DatasetItem) string {
	t.Helper()

	var sb strings.Builder
	for i, item := range items {
		SaveImage(t, SyntheticImage(size, size, i), filepath.Join(root, item.Path))
		sb.WriteString(item.Path)
		for _, l := range item.Labels {
			sb.WriteString(fmt.Sprintf(" %d", l))
		}
		sb.WriteByte('\n')
	}
	manifest := filepath.Join(root, "test.txt")
	require.NoError(t, os.WriteFile(manifest, []byte(sb.String()), 0o600))
	return manifest
}
