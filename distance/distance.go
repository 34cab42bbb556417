package distance

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/viterin/vek/vek32"
	"golang.org/x/sys/cpu"
)

// ErrUnknownSpace is returned for a space name or value that is not supported.
var ErrUnknownSpace = errors.New("distance: unknown space")

// Space identifies the distance function of an index. It is fixed at creation.
type Space uint8

const (
	SpaceL2 Space = iota
	SpaceCosine
	SpaceIP
)

func (s Space) String() string {
	switch s {
	case SpaceL2:
		return "l2"
	case SpaceCosine:
		return "cosine"
	case SpaceIP:
		return "ip"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// Valid reports whether s is one of the supported spaces.
func (s Space) Valid() bool {
	return s <= SpaceIP
}

// Normalized reports whether vectors are L2-normalized before they are stored or queried.
func (s Space) Normalized() bool {
	return s == SpaceCosine
}

// ParseSpace parses "l2", "cosine" or "ip" (case-insensitive).
func ParseSpace(name string) (Space, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "l2", "euclidean":
		return SpaceL2, nil
	case "cosine":
		return SpaceCosine, nil
	case "ip", "dot", "inner_product":
		return SpaceIP, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownSpace, name)
	}
}

// Func computes the distance between two vectors of equal length.
type Func func(a, b []float32) float32

// Provider returns the distance function for the given space.
// The cosine space expects normalized inputs and shares the inner product kernel.
func Provider(s Space) (Func, error) {
	switch s {
	case SpaceL2:
		return SquaredL2, nil
	case SpaceCosine, SpaceIP:
		return InnerProductDistance, nil
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownSpace, s)
	}
}

// useSIMD selects the vek32 kernels. vek ships AVX2+FMA assembly and its
// generic fallback is slower than the unrolled loops below.
var useSIMD = cpu.X86.HasAVX2 && cpu.X86.HasFMA

// Kernel names the dot-product implementation selected for this CPU.
func Kernel() string {
	if useSIMD {
		return "avx2"
	}
	return "generic"
}

// Dot calculates the dot product of two vectors.
// Assumes vectors are the same length (caller's responsibility).
func Dot(a, b []float32) float32 {
	if useSIMD && len(a) > 0 {
		return vek32.Dot(a, b)
	}
	return dotGeneric(a, b)
}

// SquaredL2 calculates the squared L2 (Euclidean) distance between two vectors.
// Assumes vectors are the same length (caller's responsibility).
func SquaredL2(a, b []float32) float32 {
	b = b[:len(a)]
	var s0, s1, s2, s3 float32
	i := 0
	for ; i+4 <= len(a); i += 4 {
		d0 := a[i] - b[i]
		d1 := a[i+1] - b[i+1]
		d2 := a[i+2] - b[i+2]
		d3 := a[i+3] - b[i+3]
		s0 += d0 * d0
		s1 += d1 * d1
		s2 += d2 * d2
		s3 += d3 * d3
	}
	for ; i < len(a); i++ {
		d := a[i] - b[i]
		s0 += d * d
	}
	return s0 + s1 + s2 + s3
}

// InnerProductDistance returns 1 - <a, b>.
func InnerProductDistance(a, b []float32) float32 {
	return 1 - Dot(a, b)
}

func dotGeneric(a, b []float32) float32 {
	b = b[:len(a)]
	var s0, s1, s2, s3 float32
	i := 0
	for ; i+4 <= len(a); i += 4 {
		s0 += a[i] * b[i]
		s1 += a[i+1] * b[i+1]
		s2 += a[i+2] * b[i+2]
		s3 += a[i+3] * b[i+3]
	}
	for ; i < len(a); i++ {
		s0 += a[i] * b[i]
	}
	return s0 + s1 + s2 + s3
}

// NormalizeL2InPlace L2-normalizes v in place.
// Returns false if v has zero L2 norm.
func NormalizeL2InPlace(v []float32) bool {
	if len(v) == 0 {
		return false
	}
	norm2 := Dot(v, v)
	if norm2 == 0 {
		return false
	}
	inv := float32(1 / math.Sqrt(float64(norm2)))
	for i := range v {
		v[i] *= inv
	}
	return true
}

// NormalizeL2Copy returns a normalized copy of src.
// Returns false if src has zero L2 norm.
func NormalizeL2Copy(src []float32) ([]float32, bool) {
	dst := slices.Clone(src)
	if !NormalizeL2InPlace(dst) {
		return nil, false
	}
	return dst, true
}
