package corrupt

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/hashprobe/internal/tensor"
)

// gradientBatch returns a [n, 3, size, size] batch whose values stay inside
// the ImageNet range.
func gradientBatch(n, size int) tensor.Tensor {
	r := ImageNetRange("imagenet")
	t := tensor.New(n, 3, size, size)
	plane := size * size
	for i := range n {
		for c := range 3 {
			for p := range plane {
				v := float32((p+i*7+c*13)%251) / 250
				t.Data[(i*3+c)*plane+p] = r.Normalize(c, v)
			}
		}
	}
	return t
}

func TestModeTable(t *testing.T) {
	ids := Modes()
	require.Len(t, ids, 21)
	for i, id := range ids {
		assert.Equal(t, i, id)
	}

	tests := []struct {
		mode   int
		family Family
		check  func(Spec) bool
	}{
		{0, FamilyIdentity, func(Spec) bool { return true }},
		{1, FamilyResize, func(s Spec) bool { return s.Size == 168 }},
		{4, FamilyResize, func(s Spec) bool { return s.Size == 392 }},
		{17, FamilyResize, func(s Spec) bool { return s.Size == 112 }},
		{5, FamilyBlur, func(s Spec) bool { return s.Kernel == 1 && s.Sigma == 10 }},
		{18, FamilyBlur, func(s Spec) bool { return s.Kernel == 9 }},
		{9, FamilyNoise, func(s Spec) bool {
			return math.Abs(s.Std-math.Sqrt(0.001)) < 1e-12 && s.Param() == "var=0.001"
		}},
		{19, FamilyNoise, func(s Spec) bool { return math.Abs(s.Std-math.Sqrt(0.005)) < 1e-12 }},
		{13, FamilyJPEG, func(s Spec) bool { return s.Quality == 90 }},
		{20, FamilyJPEG, func(s Spec) bool { return s.Quality == 10 }},
	}
	for _, tt := range tests {
		spec, err := Lookup(tt.mode)
		require.NoError(t, err)
		assert.Equal(t, tt.family, spec.Family, "mode %d", tt.mode)
		assert.True(t, tt.check(spec), "mode %d params %+v", tt.mode, spec)
	}
}

func TestLookupUnsupportedMode(t *testing.T) {
	for _, mode := range []int{-1, 21, 99} {
		_, err := Lookup(mode)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrUnsupportedMode))
	}

	tr := NewTransformer(ImageNetRange("imagenet"), 1)
	_, err := tr.ApplyMode(gradientBatch(1, 16), 42)
	assert.ErrorIs(t, err, ErrUnsupportedMode)
}

func TestIdentityIsBitExactCopy(t *testing.T) {
	r := ImageNetRange("imagenet")
	in := gradientBatch(2, 16)
	tr := NewTransformer(r, 1)

	out, err := tr.ApplyMode(in, 0)
	require.NoError(t, err)
	assert.Equal(t, in.Data, out.Data)
	assert.Equal(t, in.Data, Clamp(out, r).Data)

	out.Data[0] = 99
	assert.NotEqual(t, float32(99), in.Data[0])
}

func TestResizeAtNativeSizeIsNoOp(t *testing.T) {
	in := gradientBatch(1, 32)
	tr := NewTransformer(ImageNetRange("imagenet"), 1).WithNativeSize(32)

	out, err := tr.Apply(in, Spec{Family: FamilyResize, Size: 32})
	require.NoError(t, err)
	assert.InDeltaSlice(t, in.Data, out.Data, 1e-6)
}

func TestResizeRestoresNativeShape(t *testing.T) {
	in := gradientBatch(2, 32)
	tr := NewTransformer(ImageNetRange("imagenet"), 1).WithNativeSize(32)

	for _, size := range []int{8, 20, 48} {
		out, err := tr.Apply(in, Spec{Family: FamilyResize, Size: size})
		require.NoError(t, err)
		assert.Equal(t, in.Shape, out.Shape)
	}
}

func TestResizeBilinearDoesNotAntialias(t *testing.T) {
	// a one-pixel column at x=0; downsampling 16 -> 4 samples source x=1.5,
	// so without a low-pass prefilter the column vanishes
	in := tensor.New(1, 1, 16, 16)
	for y := range 16 {
		in.Data[y*16] = 1
	}
	out := ResizeBilinear(in, 4, 4)
	for _, v := range out.Data {
		assert.Zero(t, v)
	}

	// two source pixels straddling the sample point are blended 50/50
	for y := range 16 {
		in.Data[y*16+2] = 1
	}
	out = ResizeBilinear(in, 4, 4)
	assert.InDelta(t, 0.5, out.Data[0], 1e-6)
}

func TestResizeBilinearConstantPlane(t *testing.T) {
	in := tensor.New(1, 1, 5, 7)
	for i := range in.Data {
		in.Data[i] = 0.25
	}
	out := ResizeBilinear(in, 11, 3)
	assert.Equal(t, []int64{1, 1, 11, 3}, out.Shape)
	for _, v := range out.Data {
		assert.InDelta(t, 0.25, v, 1e-6)
	}
}

func TestGaussianKernel(t *testing.T) {
	k := GaussianKernel(5, BlurSigma)
	require.Len(t, k, 5)
	var sum float32
	for _, v := range k {
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 1e-6)
	assert.InDelta(t, k[0], k[4], 1e-7)
	assert.Greater(t, k[2], k[0])

	assert.Equal(t, []float32{1}, GaussianKernel(1, BlurSigma))
}

func TestBlurKernelOneIsIdentity(t *testing.T) {
	in := gradientBatch(1, 16)
	out := GaussianBlur(in, 1, BlurSigma)
	assert.Equal(t, in.Data, out.Data)
}

func TestBlurSmoothsAndKeepsConstant(t *testing.T) {
	constant := tensor.New(1, 1, 9, 9)
	for i := range constant.Data {
		constant.Data[i] = 0.7
	}
	out := GaussianBlur(constant, 7, BlurSigma)
	for _, v := range out.Data {
		assert.InDelta(t, 0.7, v, 1e-5)
	}

	// a single bright pixel spreads to its neighbours
	spike := tensor.New(1, 1, 9, 9)
	spike.Data[4*9+4] = 1
	blurred := GaussianBlur(spike, 3, BlurSigma)
	assert.Less(t, blurred.Data[4*9+4], float32(1))
	assert.Greater(t, blurred.Data[4*9+5], float32(0))
}

func TestBlurRejectsEvenKernel(t *testing.T) {
	tr := NewTransformer(ImageNetRange("imagenet"), 1)
	_, err := tr.Apply(gradientBatch(1, 16), Spec{Family: FamilyBlur, Kernel: 4, Sigma: 1})
	assert.Error(t, err)
}

func TestReflect(t *testing.T) {
	assert.Equal(t, 1, reflect(-1, 5))
	assert.Equal(t, 3, reflect(5, 5))
	assert.Equal(t, 0, reflect(-3, 1))
	assert.Equal(t, 2, reflect(2, 5))
}

func TestNoiseIsSeededAndScaled(t *testing.T) {
	in := tensor.New(1, 3, 64, 64)
	spec, err := Lookup(12)
	require.NoError(t, err)

	a, err := NewTransformer(RawRange(), 7).Apply(in, spec)
	require.NoError(t, err)
	b, err := NewTransformer(RawRange(), 7).Apply(in, spec)
	require.NoError(t, err)
	assert.Equal(t, a.Data, b.Data, "same seed must give the same draw")

	c, err := NewTransformer(RawRange(), 8).Apply(in, spec)
	require.NoError(t, err)
	assert.NotEqual(t, a.Data, c.Data)

	var sum, sq float64
	for _, v := range a.Data {
		sum += float64(v)
		sq += float64(v) * float64(v)
	}
	n := float64(len(a.Data))
	mean := sum / n
	variance := sq/n - mean*mean
	assert.InDelta(t, 0, mean, 0.005)
	assert.InDelta(t, 0.004, variance, 0.0005)
}

func TestNoiseDrawsFreshEachCall(t *testing.T) {
	in := tensor.New(1, 3, 8, 8)
	tr := NewTransformer(RawRange(), 3)
	a, err := tr.ApplyMode(in, 9)
	require.NoError(t, err)
	b, err := tr.ApplyMode(in, 9)
	require.NoError(t, err)
	assert.NotEqual(t, a.Data, b.Data)
}

func TestApplyRejectsMalformedTensor(t *testing.T) {
	tr := NewTransformer(RawRange(), 1)
	_, err := tr.ApplyMode(tensor.Tensor{Data: make([]float32, 3), Shape: []int64{1, 3, 2, 2}}, 0)
	assert.Error(t, err)
}
