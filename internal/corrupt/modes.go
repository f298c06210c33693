// Package corrupt applies the enumerated image distortions used to probe a
// hashing network: lossy resizing, Gaussian blur, additive Gaussian noise and
// JPEG re-compression. Every transform works on normalized NCHW tensors and
// returns a new tensor at the network's native resolution.
package corrupt

import (
	"errors"
	"fmt"
	"math"
	"slices"
)

// NativeSize is the square input resolution of the hashing networks.
const NativeSize = 224

// BlurSigma is the spatial sigma shared by every blur mode.
const BlurSigma = 10.0

// ErrUnsupportedMode is returned for mode ids outside the table.
var ErrUnsupportedMode = errors.New("unsupported mode")

// Family tags a transform variant.
type Family int

const (
	FamilyIdentity Family = iota
	FamilyResize
	FamilyBlur
	FamilyNoise
	FamilyJPEG
)

func (f Family) String() string {
	switch f {
	case FamilyIdentity:
		return "identity"
	case FamilyResize:
		return "resize"
	case FamilyBlur:
		return "blur"
	case FamilyNoise:
		return "noise"
	case FamilyJPEG:
		return "jpeg"
	default:
		return fmt.Sprintf("family(%d)", int(f))
	}
}

// Spec is one row of the mode table: a family and its parameters. Only the
// fields relevant to Family are set.
type Spec struct {
	Family   Family
	Size     int     // intermediate side length for FamilyResize
	Kernel   int     // odd kernel size for FamilyBlur
	Sigma    float64 // spatial sigma for FamilyBlur
	Std      float64 // noise standard deviation for FamilyNoise
	Variance float64 // tabulated noise variance, Std squared
	Quality  int     // JPEG quality factor for FamilyJPEG
}

// Param renders the family parameter for reports.
func (s Spec) Param() string {
	switch s.Family {
	case FamilyResize:
		return fmt.Sprintf("size=%d", s.Size)
	case FamilyBlur:
		return fmt.Sprintf("kernel=%d sigma=%g", s.Kernel, s.Sigma)
	case FamilyNoise:
		return fmt.Sprintf("var=%g", s.Variance)
	case FamilyJPEG:
		return fmt.Sprintf("quality=%d", s.Quality)
	default:
		return "-"
	}
}

// ClampsClean reports whether the clean image is clamped after this
// transform. The JPEG family handles its own range internally.
func (s Spec) ClampsClean() bool {
	return s.Family != FamilyJPEG
}

func resize(size int) Spec { return Spec{Family: FamilyResize, Size: size} }
func blur(kernel int) Spec { return Spec{Family: FamilyBlur, Kernel: kernel, Sigma: BlurSigma} }
func noise(variance float64) Spec {
	return Spec{Family: FamilyNoise, Std: math.Sqrt(variance), Variance: variance}
}
func jpeg(quality int) Spec { return Spec{Family: FamilyJPEG, Quality: quality} }

var modeTable = map[int]Spec{
	0:  {Family: FamilyIdentity},
	1:  resize(168),
	2:  resize(280),
	3:  resize(336),
	4:  resize(392),
	5:  blur(1),
	6:  blur(3),
	7:  blur(5),
	8:  blur(7),
	9:  noise(0.001),
	10: noise(0.002),
	11: noise(0.003),
	12: noise(0.004),
	13: jpeg(90),
	14: jpeg(70),
	15: jpeg(50),
	16: jpeg(30),
	17: resize(112),
	18: blur(9),
	19: noise(0.005),
	20: jpeg(10),
}

// Lookup returns the spec registered for mode.
func Lookup(mode int) (Spec, error) {
	s, ok := modeTable[mode]
	if !ok {
		return Spec{}, fmt.Errorf("%w: %d", ErrUnsupportedMode, mode)
	}
	return s, nil
}

// Modes returns every registered mode id in ascending order.
func Modes() []int {
	ids := make([]int, 0, len(modeTable))
	for id := range modeTable {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
