// Package vec provides the 4-wide float32 arithmetic the kernels are written
// in. Every operation fixes its evaluation order so results are reproducible
// regardless of the compiler's freedom to fuse floating-point expressions.
package vec

import "math"

// Vec4 is four consecutive float32 lanes, the storage unit of every packed
// channel and row group.
type Vec4 [4]float32

// Splat returns a vector with every lane set to s.
func Splat(s float32) Vec4 {
	return Vec4{s, s, s, s}
}

// Load reads group g (elements 4g..4g+3) of a flat buffer.
func Load(buf []float32, g int) Vec4 {
	s := buf[4*g : 4*g+4 : 4*g+4]
	return Vec4{s[0], s[1], s[2], s[3]}
}

// Store writes v into group g of a flat buffer.
func (v Vec4) Store(buf []float32, g int) {
	s := buf[4*g : 4*g+4 : 4*g+4]
	s[0], s[1], s[2], s[3] = v[0], v[1], v[2], v[3]
}

func (v Vec4) Add(o Vec4) Vec4 {
	return Vec4{v[0] + o[0], v[1] + o[1], v[2] + o[2], v[3] + o[3]}
}

func (v Vec4) Sub(o Vec4) Vec4 {
	return Vec4{v[0] - o[0], v[1] - o[1], v[2] - o[2], v[3] - o[3]}
}

// Mul is the lane-wise product.
func (v Vec4) Mul(o Vec4) Vec4 {
	return Vec4{
		float32(v[0] * o[0]),
		float32(v[1] * o[1]),
		float32(v[2] * o[2]),
		float32(v[3] * o[3]),
	}
}

// Scale multiplies every lane by s.
func (v Vec4) Scale(s float32) Vec4 {
	return Vec4{float32(v[0] * s), float32(v[1] * s), float32(v[2] * s), float32(v[3] * s)}
}

// AddScalar adds s to every lane.
func (v Vec4) AddScalar(s float32) Vec4 {
	return Vec4{v[0] + s, v[1] + s, v[2] + s, v[3] + s}
}

// Sum folds the lanes left to right: ((v0+v1)+v2)+v3.
func (v Vec4) Sum() float32 {
	s := v[0] + v[1]
	s = s + v[2]
	return s + v[3]
}

// Dot is the lane-wise product folded left to right.
func (v Vec4) Dot(o Vec4) float32 {
	return v.Mul(o).Sum()
}

// FMA returns a*b+c per lane with a single rounding step.
func FMA(a, b, c Vec4) Vec4 {
	return Vec4{fma(a[0], b[0], c[0]), fma(a[1], b[1], c[1]), fma(a[2], b[2], c[2]), fma(a[3], b[3], c[3])}
}

// FMA32 is the scalar fused multiply-add used by the kernels.
func FMA32(a, b, c float32) float32 {
	return fma(a, b, c)
}

// The float64 product of two float32 values is exact, so only the final
// conversion rounds to float32.
func fma(a, b, c float32) float32 {
	return float32(math.FMA(float64(a), float64(b), float64(c)))
}

// InverseSqrt returns 1/sqrt(x) rounded to float32. Negative inputs give NaN
// and zero gives +Inf.
func InverseSqrt(x float32) float32 {
	return float32(1 / math.Sqrt(float64(x)))
}
