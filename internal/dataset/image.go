package dataset

import (
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"

	"github.com/MeKo-Tech/hashprobe/internal/corrupt"
)

// SupportedImageExtensions lists supported file extensions for loading.
var SupportedImageExtensions = []string{".jpg", ".jpeg", ".png", ".bmp"}

// ImageError represents a failure to load or preprocess one dataset image.
type ImageError struct {
	Operation string
	Path      string
	Err       error
}

func (e *ImageError) Error() string {
	return fmt.Sprintf("image %s error for %s: %v", e.Operation, e.Path, e.Err)
}

func (e *ImageError) Unwrap() error { return e.Err }

// IsSupportedImage reports whether the path has a supported image extension.
func IsSupportedImage(path string) bool {
	return slices.Contains(SupportedImageExtensions, strings.ToLower(filepath.Ext(path)))
}

// LoadImage opens and decodes an image file.
func LoadImage(path string) (image.Image, error) {
	if !IsSupportedImage(path) {
		return nil, &ImageError{Operation: "load", Path: path, Err: fmt.Errorf("unsupported format: %s", filepath.Ext(path))}
	}
	f, err := os.Open(path) //nolint:gosec // G304: paths are listed in the dataset manifest
	if err != nil {
		return nil, &ImageError{Operation: "load", Path: path, Err: err}
	}
	defer func() { _ = f.Close() }()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, &ImageError{Operation: "decode", Path: path, Err: err}
	}
	return img, nil
}

// Preprocess resizes img so its shorter side is resize pixels, takes the
// central crop×crop region and writes it into dst as normalized CHW
// floats. dst must hold 3*crop*crop values.
func Preprocess(img image.Image, resize, crop int, r corrupt.Range, dst []float32) error {
	if img == nil {
		return errors.New("input image is nil")
	}
	if len(dst) != 3*crop*crop {
		return fmt.Errorf("destination holds %d values, need %d", len(dst), 3*crop*crop)
	}
	if r.Channels() != 3 {
		return fmt.Errorf("range %q has %d channels, need 3", r.Name, r.Channels())
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return errors.New("invalid image dimensions")
	}

	if w <= h {
		img = imaging.Resize(img, resize, 0, imaging.Linear)
	} else {
		img = imaging.Resize(img, 0, resize, imaging.Linear)
	}
	nrgba := imaging.CropCenter(img, crop, crop)
	if got := nrgba.Bounds(); got.Dx() != crop || got.Dy() != crop {
		return fmt.Errorf("crop %d exceeds resized image %dx%d", crop, got.Dx(), got.Dy())
	}

	plane := crop * crop
	for y := range crop {
		row := nrgba.Pix[y*nrgba.Stride:]
		for x := range crop {
			px := row[x*4:]
			idx := y*crop + x
			for c := range 3 {
				dst[c*plane+idx] = r.Normalize(c, float32(px[c])/255)
			}
		}
	}
	return nil
}
