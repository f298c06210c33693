package tensor

import (
	"errors"
	"fmt"
)

// Matrix is a row-major float32 matrix. Hash codes and label vectors are
// stored one item per row.
type Matrix struct {
	Data []float32
	Rows int
	Cols int
}

// NewMatrix allocates a zeroed rows x cols matrix.
func NewMatrix(rows, cols int) Matrix {
	return Matrix{Data: make([]float32, rows*cols), Rows: rows, Cols: cols}
}

// MatrixFromRows builds a matrix from equally sized rows.
func MatrixFromRows(rows [][]float32) (Matrix, error) {
	if len(rows) == 0 {
		return Matrix{}, nil
	}
	cols := len(rows[0])
	m := NewMatrix(len(rows), cols)
	for i, r := range rows {
		if len(r) != cols {
			return Matrix{}, fmt.Errorf("row %d has %d columns, want %d", i, len(r), cols)
		}
		copy(m.Data[i*cols:(i+1)*cols], r)
	}
	return m, nil
}

// Row returns the i-th row. It aliases m.Data.
func (m Matrix) Row(i int) []float32 {
	return m.Data[i*m.Cols : (i+1)*m.Cols]
}

// Empty reports whether the matrix has no rows.
func (m Matrix) Empty() bool {
	return m.Rows == 0
}

// Verify checks that the data length matches Rows*Cols.
func (m Matrix) Verify() error {
	if m.Rows < 0 || m.Cols < 0 {
		return errors.New("negative matrix dimensions")
	}
	if len(m.Data) != m.Rows*m.Cols {
		return fmt.Errorf("matrix data length %d != %d x %d", len(m.Data), m.Rows, m.Cols)
	}
	return nil
}

// AppendRows concatenates b below a. Column counts must agree unless a is empty.
func AppendRows(a, b Matrix) (Matrix, error) {
	if a.Rows == 0 {
		out := Matrix{Data: make([]float32, len(b.Data)), Rows: b.Rows, Cols: b.Cols}
		copy(out.Data, b.Data)
		return out, nil
	}
	if b.Rows == 0 {
		return a, nil
	}
	if a.Cols != b.Cols {
		return Matrix{}, fmt.Errorf("cannot append %d-column rows to %d-column matrix", b.Cols, a.Cols)
	}
	data := make([]float32, 0, len(a.Data)+len(b.Data))
	data = append(data, a.Data...)
	data = append(data, b.Data...)
	return Matrix{Data: data, Rows: a.Rows + b.Rows, Cols: a.Cols}, nil
}
