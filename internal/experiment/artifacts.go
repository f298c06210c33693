package experiment

import (
	"fmt"
	"log/slog"
	"os"
	"slices"

	"github.com/dustin/go-humanize"

	"github.com/MeKo-Tech/hashprobe/internal/npy"
	"github.com/MeKo-Tech/hashprobe/internal/retrieval"
	"github.com/MeKo-Tech/hashprobe/internal/tensor"
)

// ArtifactError reports an input file that could not be used.
type ArtifactError struct {
	Kind string // noise, manifest, model, <role>_codes, <role>_labels
	Path string
	Err  error
}

func (e *ArtifactError) Error() string {
	return fmt.Sprintf("%s artifact %s: %v", e.Kind, e.Path, e.Err)
}

func (e *ArtifactError) Unwrap() error { return e.Err }

func readArray(kind, path string) (*npy.Array, error) {
	if path == "" {
		return nil, &ArtifactError{Kind: kind, Path: path, Err: os.ErrNotExist}
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, &ArtifactError{Kind: kind, Path: path, Err: err}
	}
	arr, err := npy.ReadFile(path)
	if err != nil {
		return nil, &ArtifactError{Kind: kind, Path: path, Err: err}
	}
	slog.Debug("loaded array", "kind", kind, "path", path, "shape", arr.Shape,
		"size", humanize.Bytes(uint64(info.Size())))
	return arr, nil
}

// LoadNoise reads a [C,H,W] or [1,C,H,W] perturbation and checks it matches
// one c×size×size image.
func LoadNoise(path string, c, size int) ([]float32, error) {
	arr, err := readArray("noise", path)
	if err != nil {
		return nil, err
	}
	shape := arr.Shape
	if len(shape) == 4 && shape[0] == 1 {
		shape = shape[1:]
	}
	if !slices.Equal(shape, []int{c, size, size}) {
		return nil, &ArtifactError{Kind: "noise", Path: path,
			Err: fmt.Errorf("shape %v does not match image [%d %d %d]", arr.Shape, c, size, size)}
	}
	return arr.Data, nil
}

// LoadDatabase reads the parallel code and label arrays of a database.
func LoadDatabase(codesPath, labelsPath string) (retrieval.Set, error) {
	return LoadSet("database", codesPath, labelsPath)
}

// LoadSet reads a codes/labels pair. role prefixes the ArtifactError kind.
func LoadSet(role, codesPath, labelsPath string) (retrieval.Set, error) {
	codes, err := loadMatrix(role+"_codes", codesPath)
	if err != nil {
		return retrieval.Set{}, err
	}
	labels, err := loadMatrix(role+"_labels", labelsPath)
	if err != nil {
		return retrieval.Set{}, err
	}
	set := retrieval.Set{Codes: codes, Labels: labels}
	if err := set.Validate(); err != nil {
		return retrieval.Set{}, &ArtifactError{Kind: role + "_labels", Path: labelsPath, Err: err}
	}
	return set, nil
}

func loadMatrix(kind, path string) (tensor.Matrix, error) {
	arr, err := readArray(kind, path)
	if err != nil {
		return tensor.Matrix{}, err
	}
	m, err := arr.Matrix()
	if err != nil {
		return tensor.Matrix{}, &ArtifactError{Kind: kind, Path: path, Err: err}
	}
	return m, nil
}
