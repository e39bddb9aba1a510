package tensor

import (
	"fmt"
	"slices"
)

// Scalar is the set of element types a Tensor may hold.
type Scalar interface {
	float32 | uint32 | uint16 | uint8
}

// Tensor is a host-side 4-D array stored densely with x varying fastest.
type Tensor[T Scalar] struct {
	shape Shape
	data  []T
}

// FromData wraps data with shape. The tensor aliases data.
func FromData[T Scalar](shape Shape, data []T) (Tensor[T], error) {
	if shape.Len() != len(data) {
		return Tensor[T]{}, &SizeError{Want: shape.Len(), Got: len(data)}
	}
	return Tensor[T]{shape: shape, data: data}, nil
}

// Zeros allocates a zero-filled tensor.
func Zeros[T Scalar](shape Shape) Tensor[T] {
	return Tensor[T]{shape: shape, data: make([]T, shape.Len())}
}

// Ones allocates a tensor filled with 1.
func Ones[T Scalar](shape Shape) Tensor[T] {
	t := Zeros[T](shape)
	for i := range t.data {
		t.data[i] = 1
	}
	return t
}

func (t Tensor[T]) Shape() Shape { return t.shape }
func (t Tensor[T]) Data() []T    { return t.data }
func (t Tensor[T]) Len() int     { return len(t.data) }
func (t Tensor[T]) IsEmpty() bool {
	return len(t.data) == 0
}

// CheckShape fails with a *ShapeError unless the tensor has exactly shape.
func (t Tensor[T]) CheckShape(shape Shape) error {
	if t.shape != shape {
		return &ShapeError{Got: t.shape, Want: shape}
	}
	return nil
}

// At returns the element at (x, y, z, w).
func (t Tensor[T]) At(x, y, z, w int) T {
	return t.data[t.shape.Index(Shape{x, y, z, w})]
}

// Clone copies the tensor's storage.
func (t Tensor[T]) Clone() Tensor[T] {
	return Tensor[T]{shape: t.shape, data: slices.Clone(t.data)}
}

// Map applies f element-wise.
func Map[T, U Scalar](t Tensor[T], f func(T) U) Tensor[U] {
	out := make([]U, len(t.data))
	for i, v := range t.data {
		out[i] = f(v)
	}
	return Tensor[U]{shape: t.shape, data: out}
}

// Load copies host into t. The shapes must match.
func (t Tensor[T]) Load(host Tensor[T]) error {
	if err := host.CheckShape(t.shape); err != nil {
		return err
	}
	copy(t.data, host.data)
	return nil
}

// LoadBatch copies a single [C, T, 1, 1] sequence into batch index batch of
// a [C, T, B, 1] tensor.
func (t Tensor[T]) LoadBatch(host Tensor[T], batch int) error {
	if err := host.CheckShape(Shape{t.shape[0], t.shape[1], 1, 1}); err != nil {
		return err
	}
	if batch < 0 || batch >= t.shape[2] {
		return &BatchOutOfRangeError{Batch: batch, Max: t.shape[2]}
	}
	n := host.Len()
	copy(t.data[n*batch:n*(batch+1)], host.data)
	return nil
}

// Reshape reinterprets the tensor with new dimensions. The element count
// must be preserved; the result aliases t.
func (t Tensor[T]) Reshape(x, y, z, w Dimension) (Tensor[T], error) {
	shape, err := Deduce(t.shape, x, y, z, w)
	if err != nil {
		return Tensor[T]{}, err
	}
	return Tensor[T]{shape: shape, data: t.data}, nil
}

// Repeat tiles the tensor n times along axis. Each run of elements below
// and including axis is repeated in place, so axis 3 repeats the whole
// buffer.
func (t Tensor[T]) Repeat(axis, n int) Tensor[T] {
	if axis < 0 || axis > 3 {
		return t
	}
	chunks := 1
	for _, d := range t.shape[axis+1:] {
		chunks *= d
	}
	if chunks == 0 {
		shape := t.shape
		shape[axis] *= n
		return Tensor[T]{shape: shape}
	}
	chunk := len(t.data) / chunks
	out := make([]T, 0, len(t.data)*n)
	for c := range chunks {
		src := t.data[c*chunk : (c+1)*chunk]
		for range n {
			out = append(out, src...)
		}
	}
	shape := t.shape
	shape[axis] *= n
	return Tensor[T]{shape: shape, data: out}
}

// Slice selects a sub-tensor. The selection must be a single contiguous run
// of memory; the result aliases t.
func (t Tensor[T]) Slice(x, y, z, w Axis) (Tensor[T], error) {
	start, end, err := shapeBounds(t.shape, [4]Axis{x, y, z, w})
	if err != nil {
		return Tensor[T]{}, err
	}
	lo, hi, err := contiguousBounds(t.shape, start, end)
	if err != nil {
		return Tensor[T]{}, fmt.Errorf("slice %v..%v of %v: %w", start, end, t.shape, err)
	}
	return Tensor[T]{shape: end.Sub(start), data: t.data[lo:hi:hi]}, nil
}

// View describes a region of t for a kernel without copying. Unlike Slice
// the region need not be contiguous.
func (t Tensor[T]) View(x, y, z, w Axis) (TensorView[T], error) {
	start, end, err := shapeBounds(t.shape, [4]Axis{x, y, z, w})
	if err != nil {
		return TensorView[T]{}, err
	}
	v := View{Stride: t.shape, Offset: start, Shape: end.Sub(start)}
	if err := v.Check(); err != nil {
		return TensorView[T]{}, err
	}
	return TensorView[T]{Data: t.data, View: v}, nil
}

// Whole is the view covering the entire tensor.
func (t Tensor[T]) Whole() TensorView[T] {
	return TensorView[T]{Data: t.data, View: ContiguousView(t.shape)}
}

// Split slices the tensor into its single-index pieces along axis. Each
// piece must be contiguous. An axis outside 0..3 returns t alone.
func (t Tensor[T]) Split(axis int) ([]Tensor[T], error) {
	if axis < 0 || axis > 3 {
		return []Tensor[T]{t}, nil
	}
	out := make([]Tensor[T], 0, t.shape[axis])
	for i := range t.shape[axis] {
		axes := [4]Axis{All(), All(), All(), All()}
		axes[axis] = At(i)
		s, err := t.Slice(axes[0], axes[1], axes[2], axes[3])
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// Stack concatenates [C, T, B_i, 1] tensors along the batch axis.
func Stack[T Scalar](batches []Tensor[T]) (Tensor[T], error) {
	if len(batches) == 0 {
		return Tensor[T]{}, ErrEmpty
	}
	first := batches[0].shape
	total := 0
	for _, b := range batches {
		if err := b.CheckShape(Shape{first[0], first[1], b.shape[2], 1}); err != nil {
			return Tensor[T]{}, err
		}
		total += b.shape[2]
	}
	data := make([]T, 0, first[0]*first[1]*total)
	for _, b := range batches {
		data = append(data, b.data...)
	}
	return Tensor[T]{shape: Shape{first[0], first[1], total, 1}, data: data}, nil
}
