package tensor

import (
	"fmt"

	"github.com/samcharles93/tessera/internal/safetensors"
)

// ShapeFromDims converts a row-major safetensors shape into [x, y, z, w]
// with the innermost dimension first. Missing axes are 1.
func ShapeFromDims(dims []int) (Shape, error) {
	if len(dims) > 4 {
		return Shape{}, fmt.Errorf("%w: rank %d", ErrDeduce, len(dims))
	}
	shape := Shape{1, 1, 1, 1}
	for i, d := range dims {
		shape[len(dims)-1-i] = d
	}
	return shape, nil
}

// Dims is the inverse of ShapeFromDims for a tensor of the given rank.
func (s Shape) Dims(rank int) []int {
	dims := make([]int, rank)
	for i := range rank {
		dims[rank-1-i] = s[i]
	}
	return dims
}

// FromSafetensors loads tensor name, whose stored dtype must match T
// exactly (F32, U32, U16 or U8).
func FromSafetensors[T Scalar](f *safetensors.File, name string) (Tensor[T], error) {
	info, ok := f.Tensor(name)
	if !ok {
		return Tensor[T]{}, fmt.Errorf("%w: %s", safetensors.ErrNotFound, name)
	}
	if want := DType[T](); info.DType != want {
		return Tensor[T]{}, fmt.Errorf("tensor %s is %s, want %s: %w", name, info.DType, want, ErrType)
	}
	shape, err := ShapeFromDims(info.Shape)
	if err != nil {
		return Tensor[T]{}, fmt.Errorf("tensor %s: %w", name, err)
	}

	var data any
	switch any(*new(T)).(type) {
	case float32:
		data, _, err = f.ReadTensorF32(name)
	case uint32:
		data, _, err = f.ReadTensorU32(name)
	case uint16:
		data, _, err = f.ReadTensorU16(name)
	case uint8:
		data, _, err = f.ReadTensorU8(name)
	}
	if err != nil {
		return Tensor[T]{}, err
	}
	return FromData(shape, data.([]T))
}

// LoadF32 loads an F32, F16 or BF16 tensor as float32.
func LoadF32(f *safetensors.File, name string) (Tensor[float32], error) {
	data, info, err := f.ReadTensorF32(name)
	if err != nil {
		return Tensor[float32]{}, err
	}
	shape, err := ShapeFromDims(info.Shape)
	if err != nil {
		return Tensor[float32]{}, fmt.Errorf("tensor %s: %w", name, err)
	}
	return FromData(shape, data)
}

// DType is the safetensors dtype name matching T.
func DType[T Scalar]() string {
	switch any(*new(T)).(type) {
	case float32:
		return safetensors.F32
	case uint32:
		return safetensors.U32
	case uint16:
		return safetensors.U16
	case uint8:
		return safetensors.U8
	default:
		return ""
	}
}
