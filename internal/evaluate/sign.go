package evaluate

import "github.com/MeKo-Tech/hashprobe/internal/tensor"

// Sign binarizes codes to ±1. Zero maps to +1 so every coordinate is
// non-zero.
func Sign(codes tensor.Matrix) tensor.Matrix {
	out := tensor.Matrix{Data: make([]float32, len(codes.Data)), Rows: codes.Rows, Cols: codes.Cols}
	for i, v := range codes.Data {
		if v < 0 {
			out.Data[i] = -1
		} else {
			out.Data[i] = 1
		}
	}
	return out
}
