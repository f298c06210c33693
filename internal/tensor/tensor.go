// Package tensor holds the dense float32 containers passed between the
// dataset loader, the corruption transforms, the network and the metric.
package tensor

import (
	"errors"
	"fmt"
)

// Tensor is a row-major float32 image batch in NCHW layout.
type Tensor struct {
	Data  []float32
	Shape []int64 // [N, C, H, W]
}

// New allocates a zeroed [n, c, h, w] tensor.
func New(n, c, h, w int) Tensor {
	return Tensor{
		Data:  make([]float32, n*c*h*w),
		Shape: []int64{int64(n), int64(c), int64(h), int64(w)},
	}
}

// NewImageTensor wraps a single image as a [1, C, H, W] tensor.
// data must be length C*H*W in CHW order.
func NewImageTensor(data []float32, c, h, w int) (Tensor, error) {
	if data == nil {
		return Tensor{}, errors.New("nil data")
	}
	expected := c * h * w
	if len(data) != expected {
		return Tensor{}, fmt.Errorf("unexpected data length: got %d, want %d", len(data), expected)
	}
	return Tensor{Data: data, Shape: []int64{1, int64(c), int64(h), int64(w)}}, nil
}

// Stack copies images sharing the same (C, H, W) into one [N, C, H, W] batch.
func Stack(images [][]float32, c, h, w int) (Tensor, error) {
	if len(images) == 0 {
		return Tensor{}, errors.New("empty batch")
	}
	per := c * h * w
	out := New(len(images), c, h, w)
	for i, d := range images {
		if len(d) != per {
			return Tensor{}, fmt.Errorf("image %d has length %d, want %d", i, len(d), per)
		}
		copy(out.Data[i*per:(i+1)*per], d)
	}
	return out, nil
}

// Dims returns the four NCHW dimensions as ints.
func (t Tensor) Dims() (n, c, h, w int) {
	if len(t.Shape) != 4 {
		return 0, 0, 0, 0
	}
	return int(t.Shape[0]), int(t.Shape[1]), int(t.Shape[2]), int(t.Shape[3])
}

// ImageSize returns C*H*W, the number of values in one image.
func (t Tensor) ImageSize() int {
	_, c, h, w := t.Dims()
	return c * h * w
}

// Image returns the backing slice of the i-th image. It aliases t.Data.
func (t Tensor) Image(i int) []float32 {
	per := t.ImageSize()
	return t.Data[i*per : (i+1)*per]
}

// Clone returns a deep copy of t.
func (t Tensor) Clone() Tensor {
	data := make([]float32, len(t.Data))
	copy(data, t.Data)
	shape := make([]int64, len(t.Shape))
	copy(shape, t.Shape)
	return Tensor{Data: data, Shape: shape}
}

// Like allocates a zeroed tensor with the same shape as t.
func Like(t Tensor) Tensor {
	shape := make([]int64, len(t.Shape))
	copy(shape, t.Shape)
	return Tensor{Data: make([]float32, len(t.Data)), Shape: shape}
}

// ValidateNCHW ensures a shape is [N, C, H, W] with positive dimensions.
func ValidateNCHW(shape []int64) error {
	if len(shape) != 4 {
		return fmt.Errorf("shape rank %d != 4", len(shape))
	}
	for i, v := range shape {
		if v <= 0 {
			return fmt.Errorf("dimension %d must be > 0, got %d", i, v)
		}
	}
	return nil
}

// Verify checks data length matches the NCHW shape.
func Verify(t Tensor) error {
	if err := ValidateNCHW(t.Shape); err != nil {
		return err
	}
	n, c, h, w := t.Shape[0], t.Shape[1], t.Shape[2], t.Shape[3]
	expected := int(n * c * h * w)
	if len(t.Data) != expected {
		return fmt.Errorf("tensor data length %d != expected %d for shape %v", len(t.Data), expected, t.Shape)
	}
	return nil
}

// Stats computes min, max and mean for debug output.
func Stats(data []float32) (float32, float32, float32) {
	if len(data) == 0 {
		return 0, 0, 0
	}
	minVal, maxVal := data[0], data[0]
	var sum float64
	for _, v := range data {
		if v < minVal {
			minVal = v
		}
		if v > maxVal {
			maxVal = v
		}
		sum += float64(v)
	}
	return minVal, maxVal, float32(sum / float64(len(data)))
}
