// Package dataset reads image-list manifests and turns the listed images
// into normalized NCHW batches for evaluation.
package dataset

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ManifestError reports a malformed manifest line.
type ManifestError struct {
	Path string
	Line int
	Err  error
}

func (e *ManifestError) Error() string {
	return fmt.Sprintf("manifest %s line %d: %v", e.Path, e.Line, e.Err)
}

func (e *ManifestError) Unwrap() error { return e.Err }

// Item is one manifest entry: a path relative to the dataset root and its
// label vector.
type Item struct {
	Path   string
	Labels []float32
}

// Manifest is the ordered list of dataset items.
type Manifest struct {
	Path       string
	Items      []Item
	LabelWidth int
}

// Len returns the number of items.
func (m *Manifest) Len() int { return len(m.Items) }

// LoadManifest reads a manifest file.
func LoadManifest(path string) (*Manifest, error) {
	f, err := os.Open(path) //nolint:gosec // G304: manifest path comes from configuration
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest: %w", err)
	}
	defer func() { _ = f.Close() }()
	return ParseManifest(f, path)
}

// ParseManifest parses lines of the form "relative/path.jpg l0 l1 ... lk".
// Blank lines are skipped. Every item must carry the same number of labels.
func ParseManifest(r io.Reader, name string) (*Manifest, error) {
	m := &Manifest{Path: name}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) < 2 {
			return nil, &ManifestError{Path: name, Line: lineNo, Err: errors.New("missing labels")}
		}
		labels := make([]float32, len(fields)-1)
		for i, f := range fields[1:] {
			v, err := strconv.ParseFloat(f, 32)
			if err != nil {
				return nil, &ManifestError{Path: name, Line: lineNo, Err: fmt.Errorf("label %d: %w", i, err)}
			}
			labels[i] = float32(v)
		}
		if m.LabelWidth == 0 {
			m.LabelWidth = len(labels)
		} else if len(labels) != m.LabelWidth {
			return nil, &ManifestError{
				Path: name,
				Line: lineNo,
				Err:  fmt.Errorf("got %d labels, earlier lines have %d", len(labels), m.LabelWidth),
			}
		}
		m.Items = append(m.Items, Item{Path: fields[0], Labels: labels})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", name, err)
	}
	return m, nil
}
