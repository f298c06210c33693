// Package npy reads and writes NumPy .npy arrays. Every supported numeric
// dtype is widened or narrowed to float32 on read; writes always produce
// little-endian '<f4' arrays in C order.
package npy

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/MeKo-Tech/hashprobe/internal/tensor"
)

const magic = "\x93NUMPY"

// FormatError reports a malformed or unsupported .npy stream.
type FormatError struct {
	Reason string
}

func (e *FormatError) Error() string {
	return "invalid .npy data: " + e.Reason
}

func formatErrorf(format string, args ...any) error {
	return &FormatError{Reason: fmt.Sprintf(format, args...)}
}

// Array is a dense C-order array of float32 values.
type Array struct {
	Shape []int
	Data  []float32
}

// Size returns the number of elements implied by Shape.
func (a *Array) Size() int {
	n := 1
	for _, d := range a.Shape {
		n *= d
	}
	return n
}

// Matrix views a 1-D or 2-D array as rows x cols. A 1-D array of length n
// becomes n rows of one column.
func (a *Array) Matrix() (tensor.Matrix, error) {
	switch len(a.Shape) {
	case 1:
		return tensor.Matrix{Data: a.Data, Rows: a.Shape[0], Cols: 1}, nil
	case 2:
		return tensor.Matrix{Data: a.Data, Rows: a.Shape[0], Cols: a.Shape[1]}, nil
	default:
		return tensor.Matrix{}, fmt.Errorf("expected a 1-D or 2-D array, got shape %v", a.Shape)
	}
}

// ReadFile reads a .npy file.
func ReadFile(path string) (*Array, error) {
	f, err := os.Open(path) //nolint:gosec // G304: artifact paths come from configuration
	if err != nil {
		return nil, fmt.Errorf("failed to open .npy file %q: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	arr, err := Read(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("failed to read .npy file %q: %w", path, err)
	}
	return arr, nil
}

// Read decodes a .npy stream.
func Read(r io.Reader) (*Array, error) {
	head := make([]byte, 8)
	if _, err := io.ReadFull(r, head); err != nil {
		return nil, fmt.Errorf("failed to read preamble: %w", err)
	}
	if string(head[:6]) != magic {
		return nil, formatErrorf("magic string mismatch")
	}

	var headerLen int
	switch major := head[6]; {
	case major == 1:
		lenBytes := make([]byte, 2)
		if _, err := io.ReadFull(r, lenBytes); err != nil {
			return nil, fmt.Errorf("failed to read header length: %w", err)
		}
		headerLen = int(binary.LittleEndian.Uint16(lenBytes))
	case major >= 2:
		lenBytes := make([]byte, 4)
		if _, err := io.ReadFull(r, lenBytes); err != nil {
			return nil, fmt.Errorf("failed to read header length: %w", err)
		}
		headerLen = int(binary.LittleEndian.Uint32(lenBytes))
	default:
		return nil, formatErrorf("unsupported version %d.%d", head[6], head[7])
	}

	headerBytes := make([]byte, headerLen)
	if _, err := io.ReadFull(r, headerBytes); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	descr, shape, fortran, err := parseHeader(string(headerBytes))
	if err != nil {
		return nil, err
	}

	dt, err := lookupDType(descr)
	if err != nil {
		return nil, err
	}

	arr := &Array{Shape: shape}
	count := arr.Size()
	raw := make([]byte, count*dt.size)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, fmt.Errorf("failed to read %d data bytes: %w", len(raw), err)
	}
	data := make([]float32, count)
	for i := range count {
		data[i] = dt.decode(raw[i*dt.size : (i+1)*dt.size])
	}
	if fortran && len(shape) > 1 {
		data = fortranToC(data, shape)
	}
	arr.Data = data
	return arr, nil
}

var (
	reDescr   = regexp.MustCompile(`'descr'\s*:\s*'([^']*)'`)
	reFortran = regexp.MustCompile(`'fortran_order'\s*:\s*(True|False)`)
	reShape   = regexp.MustCompile(`'shape'\s*:\s*\(([^)]*)\)`)
)

// parseHeader extracts descr, shape and fortran_order from the dict literal.
func parseHeader(header string) (string, []int, bool, error) {
	m := reDescr.FindStringSubmatch(header)
	if len(m) < 2 {
		return "", nil, false, formatErrorf("no 'descr' in header %q", header)
	}
	descr := m[1]

	m = reFortran.FindStringSubmatch(header)
	if len(m) < 2 {
		return "", nil, false, formatErrorf("no 'fortran_order' in header %q", header)
	}
	fortran := m[1] == "True"

	m = reShape.FindStringSubmatch(header)
	if len(m) < 2 {
		return "", nil, false, formatErrorf("no 'shape' in header %q", header)
	}
	var shape []int
	for _, part := range strings.Split(m[1], ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		d, err := strconv.Atoi(part)
		if err != nil || d < 0 {
			return "", nil, false, formatErrorf("bad shape dimension %q", part)
		}
		shape = append(shape, d)
	}
	return descr, shape, fortran, nil
}

type dtype struct {
	size   int
	decode func([]byte) float32
}

func lookupDType(descr string) (dtype, error) {
	if strings.HasPrefix(descr, ">") && !strings.HasSuffix(descr, "1") {
		return dtype{}, formatErrorf("big-endian dtype %q is not supported", descr)
	}
	le := binary.LittleEndian
	switch strings.TrimLeft(descr, "<|=") {
	case "f4":
		return dtype{4, func(b []byte) float32 { return math.Float32frombits(le.Uint32(b)) }}, nil
	case "f8":
		return dtype{8, func(b []byte) float32 { return float32(math.Float64frombits(le.Uint64(b))) }}, nil
	case "i1":
		return dtype{1, func(b []byte) float32 { return float32(int8(b[0])) }}, nil
	case "u1", "b1":
		return dtype{1, func(b []byte) float32 { return float32(b[0]) }}, nil
	case "i2":
		return dtype{2, func(b []byte) float32 { return float32(int16(le.Uint16(b))) }}, nil
	case "u2":
		return dtype{2, func(b []byte) float32 { return float32(le.Uint16(b)) }}, nil
	case "i4":
		return dtype{4, func(b []byte) float32 { return float32(int32(le.Uint32(b))) }}, nil
	case "u4":
		return dtype{4, func(b []byte) float32 { return float32(le.Uint32(b)) }}, nil
	case "i8":
		return dtype{8, func(b []byte) float32 { return float32(int64(le.Uint64(b))) }}, nil
	case "u8":
		return dtype{8, func(b []byte) float32 { return float32(le.Uint64(b)) }}, nil
	default:
		return dtype{}, formatErrorf("unsupported dtype %q", descr)
	}
}

// fortranToC reorders column-major data into row-major order.
func fortranToC(data []float32, shape []int) []float32 {
	out := make([]float32, len(data))
	coords := make([]int, len(shape))
	for cIdx := range data {
		rem := cIdx
		for i := len(shape) - 1; i >= 0; i-- {
			coords[i] = rem % shape[i]
			rem /= shape[i]
		}
		fIdx, stride := 0, 1
		for i, d := range shape {
			fIdx += coords[i] * stride
			stride *= d
		}
		out[cIdx] = data[fIdx]
	}
	return out
}

// WriteFile writes data with the given shape as a version 1.0 '<f4' array.
func WriteFile(path string, shape []int, data []float32) error {
	f, err := os.Create(path) //nolint:gosec // G304: output path is chosen by the caller
	if err != nil {
		return fmt.Errorf("failed to create .npy file %q: %w", path, err)
	}
	w := bufio.NewWriter(f)
	if err := Write(w, shape, data); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write .npy file %q: %w", path, err)
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to flush .npy file %q: %w", path, err)
	}
	return f.Close()
}

// WriteMatrix writes m as a 2-D array.
func WriteMatrix(path string, m tensor.Matrix) error {
	return WriteFile(path, []int{m.Rows, m.Cols}, m.Data)
}

// Write encodes data as a version 1.0 '<f4' array.
func Write(w io.Writer, shape []int, data []float32) error {
	n := 1
	for _, d := range shape {
		n *= d
	}
	if n != len(data) {
		return fmt.Errorf("shape %v needs %d values, got %d", shape, n, len(data))
	}

	dims := make([]string, len(shape))
	for i, d := range shape {
		dims[i] = strconv.Itoa(d)
	}
	shapeStr := strings.Join(dims, ", ")
	if len(shape) == 1 {
		shapeStr += ","
	}
	header := fmt.Sprintf("{'descr': '<f4', 'fortran_order': False, 'shape': (%s), }", shapeStr)
	// pad so that magic+version+len+header+newline is a multiple of 64
	total := len(magic) + 2 + 2 + len(header) + 1
	if pad := (64 - total%64) % 64; pad > 0 {
		header += strings.Repeat(" ", pad)
	}
	header += "\n"
	if len(header) > math.MaxUint16 {
		return errors.New("header too long for version 1.0")
	}

	pre := make([]byte, 0, 10)
	pre = append(pre, magic...)
	pre = append(pre, 1, 0)
	pre = binary.LittleEndian.AppendUint16(pre, uint16(len(header)))
	if _, err := w.Write(pre); err != nil {
		return err
	}
	if _, err := io.WriteString(w, header); err != nil {
		return err
	}
	buf := make([]byte, 4*len(data))
	for i, v := range data {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	_, err := w.Write(buf)
	return err
}
