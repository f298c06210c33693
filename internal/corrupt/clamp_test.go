package corrupt

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/hashprobe/internal/tensor"
)

// tensorFrom builds a [1, 3, 2, 2] tensor from 12 values.
func tensorFrom(vals []float64) tensor.Tensor {
	t := tensor.New(1, 3, 2, 2)
	for i, v := range vals {
		t.Data[i] = float32(v)
	}
	return t
}

func TestRangeBounds(t *testing.T) {
	r := ImageNetRange("imagenet")
	require.NoError(t, r.Validate())

	assert.InDelta(t, -0.485/0.229, r.Lo(0), 1e-6)
	assert.InDelta(t, (1-0.485)/0.229, r.Hi(0), 1e-6)
	assert.InDelta(t, 0.5, r.Denormalize(1, r.Normalize(1, 0.5)), 1e-6)

	raw := RawRange()
	assert.Equal(t, float32(0), raw.Lo(2))
	assert.Equal(t, float32(1), raw.Hi(2))
}

func TestRangeValidate(t *testing.T) {
	assert.Error(t, Range{}.Validate())
	assert.Error(t, Range{Mean: []float32{0}, Std: []float32{1, 1}}.Validate())
	assert.Error(t, Range{Mean: []float32{0}, Std: []float32{0}}.Validate())
}

func TestClampLimitsPerChannel(t *testing.T) {
	r := ImageNetRange("imagenet")
	in := tensorFrom([]float64{-100, 0, 100, 1, -100, 0, 100, 1, -100, 0, 100, 1})
	out := Clamp(in, r)

	for ch := range 3 {
		plane := out.Data[ch*4 : (ch+1)*4]
		assert.Equal(t, r.Lo(ch), plane[0])
		assert.Equal(t, float32(0), plane[1])
		assert.Equal(t, r.Hi(ch), plane[2])
	}
	// input untouched
	assert.Equal(t, float32(-100), in.Data[0])
}

func TestClampProperties(t *testing.T) {
	r := ImageNetRange("imagenet")
	properties := gopter.NewProperties(nil)

	properties.Property("clamp is idempotent", prop.ForAll(
		func(vals []float64) bool {
			once := Clamp(tensorFrom(vals), r)
			twice := Clamp(once, r)
			for i := range once.Data {
				if once.Data[i] != twice.Data[i] {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(12, gen.Float64Range(-50, 50)),
	))

	properties.Property("clamp output lies within the channel bounds", prop.ForAll(
		func(vals []float64) bool {
			out := Clamp(tensorFrom(vals), r)
			for i, v := range out.Data {
				ch := i / 4
				if v < r.Lo(ch) || v > r.Hi(ch) {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(12, gen.Float64Range(-50, 50)),
	))

	properties.TestingRun(t)
}

func TestClampPassesNaNThrough(t *testing.T) {
	r := ImageNetRange("imagenet")
	nan := math.NaN()
	in := tensorFrom([]float64{nan, 100, -100, 0, 0, nan, 0, 0, 0, 0, 0, nan})
	out := Clamp(in, r)

	assert.True(t, math.IsNaN(float64(out.Data[0])))
	assert.True(t, math.IsNaN(float64(out.Data[5])))
	assert.True(t, math.IsNaN(float64(out.Data[11])))
	assert.Equal(t, r.Hi(0), out.Data[1])
	assert.Equal(t, r.Lo(0), out.Data[2])
}
