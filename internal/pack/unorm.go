package pack

import (
	"math"

	"github.com/samcharles93/tessera/internal/vec"
)

// UnpackUnorm4x8 expands the four bytes of word (least significant first)
// into values in [0, 1].
func UnpackUnorm4x8(word uint32) vec.Vec4 {
	return vec.Vec4{
		float32(word&0xff) / 255,
		float32(word>>8&0xff) / 255,
		float32(word>>16&0xff) / 255,
		float32(word>>24) / 255,
	}
}

// PackUnorm4x8 clamps every lane to [0, 1] and stores round(v*255) per byte.
func PackUnorm4x8(v vec.Vec4) uint32 {
	var word uint32
	for i, x := range v {
		word |= uint32(unorm8(x)) << (8 * i)
	}
	return word
}

func unorm8(x float32) uint8 {
	if !(x > 0) {
		return 0
	}
	if x >= 1 {
		return 255
	}
	return uint8(math.RoundToEven(float64(x) * 255))
}

// PackCodes packs a row-major byte matrix of codes into words of four
// consecutive columns. len(codes) must be a multiple of 4.
func PackCodes(dst []uint32, codes []uint8) {
	if len(codes)%4 != 0 {
		panic("pack codes: length not a multiple of 4")
	}
	if len(dst) < len(codes)/4 {
		panic("pack codes: destination too small")
	}
	for i := range len(codes) / 4 {
		c := codes[4*i : 4*i+4 : 4*i+4]
		dst[i] = uint32(c[0]) | uint32(c[1])<<8 | uint32(c[2])<<16 | uint32(c[3])<<24
	}
}

// UnpackCodes is the inverse of PackCodes.
func UnpackCodes(dst []uint8, words []uint32) {
	if len(dst) < 4*len(words) {
		panic("unpack codes: destination too small")
	}
	for i, w := range words {
		dst[4*i] = uint8(w)
		dst[4*i+1] = uint8(w >> 8)
		dst[4*i+2] = uint8(w >> 16)
		dst[4*i+3] = uint8(w >> 24)
	}
}

// Codes returns the packed form of a row-major code matrix as a new slice.
func Codes(codes []uint8) []uint32 {
	out := make([]uint32, len(codes)/4)
	PackCodes(out, codes)
	return out
}
