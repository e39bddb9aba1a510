// Package pack decodes the compressed storage formats the kernels read:
// pairs of binary16 values packed into one 32-bit word and four 8-bit
// normalized codes packed into one 32-bit word.
package pack

import (
	"github.com/x448/float16"

	"github.com/samcharles93/tessera/internal/vec"
)

// UnpackHalf2 decodes the two binary16 values of a packed word. The low half
// is the first value.
func UnpackHalf2(word uint32) (lo, hi float32) {
	lo = float16.Frombits(uint16(word)).Float32()
	hi = float16.Frombits(uint16(word >> 16)).Float32()
	return lo, hi
}

// PackHalf2 encodes two values as binary16, rounding to nearest even.
func PackHalf2(lo, hi float32) uint32 {
	return uint32(float16.Fromfloat32(lo).Bits()) | uint32(float16.Fromfloat32(hi).Bits())<<16
}

// UnpackHalf4 decodes channel group g (channels 4g..4g+3), stored in words
// 2g and 2g+1.
func UnpackHalf4(words []uint32, g int) vec.Vec4 {
	w := words[2*g : 2*g+2 : 2*g+2]
	a, b := UnpackHalf2(w[0])
	c, d := UnpackHalf2(w[1])
	return vec.Vec4{a, b, c, d}
}

// PackHalves encodes src pairwise into dst. len(src) must be even and dst
// must hold len(src)/2 words.
func PackHalves(dst []uint32, src []float32) {
	if len(src)%2 != 0 {
		panic("pack halves: odd source length")
	}
	if len(dst) < len(src)/2 {
		panic("pack halves: destination too small")
	}
	for i := range len(src) / 2 {
		dst[i] = PackHalf2(src[2*i], src[2*i+1])
	}
}

// UnpackHalves decodes every word of src into two consecutive values of dst.
func UnpackHalves(dst []float32, src []uint32) {
	if len(dst) < 2*len(src) {
		panic("unpack halves: destination too small")
	}
	for i, w := range src {
		dst[2*i], dst[2*i+1] = UnpackHalf2(w)
	}
}

// Halves returns the packed encoding of src as a new slice.
func Halves(src []float32) []uint32 {
	out := make([]uint32, len(src)/2)
	PackHalves(out, src)
	return out
}
