package tensor

import "fmt"

// View describes a (channel, token, batch) region embedded in a larger flat
// buffer. Stride is the shape of the enclosing buffer, Offset the position
// of the region inside it and Shape the region's extent. Kernels address
// the buffer in 4-element groups, so Stride[0] and Offset[0] must be
// multiples of 4.
type View struct {
	Stride Shape
	Offset Shape
	Shape  Shape
}

// ContiguousView describes a standalone buffer of the given shape.
func ContiguousView(shape Shape) View {
	return View{Stride: shape, Shape: shape}
}

// Index maps a logical (batch, token, group) coordinate of the view to a
// group index in the enclosing buffer:
//
//	((oz+batch)*sy + oy+token)*(sx/4) + ox/4 + group
//
// Multiply by 4 for a float offset.
func (v View) Index(batch, token, group int) int {
	return ((v.Offset[2]+batch)*v.Stride[1]+v.Offset[1]+token)*(v.Stride[0]/4) + v.Offset[0]/4 + group
}

// Span is the minimum buffer length, in elements, that contains every
// element addressed through the view.
func (v View) Span() int {
	if v.Shape[0] < 4 || v.Shape[1] <= 0 || v.Shape[2] <= 0 {
		return 0
	}
	return 4 * (v.Index(v.Shape[2]-1, v.Shape[1]-1, v.Shape[0]/4-1) + 1)
}

// Check verifies alignment and that the region lies inside its stride.
func (v View) Check() error {
	if v.Stride[0]%4 != 0 || v.Offset[0]%4 != 0 || v.Shape[0]%4 != 0 {
		return fmt.Errorf("view %v: channel stride/offset/shape: %w", v, ErrAlignment)
	}
	for i := range 3 {
		if v.Offset[i] < 0 || v.Shape[i] < 0 || v.Offset[i]+v.Shape[i] > v.Stride[i] {
			return &SliceOutOfRangeError{Dim: v.Stride[i], Start: v.Offset[i], End: v.Offset[i] + v.Shape[i]}
		}
	}
	return nil
}

func (v View) String() string {
	return fmt.Sprintf("{stride: %v, offset: %v, shape: %v}", v.Stride, v.Offset, v.Shape)
}

// TensorView pairs a view descriptor with the buffer it addresses.
type TensorView[T Scalar] struct {
	Data []T
	View View
}

// Shape is the extent of the viewed region.
func (v TensorView[T]) Shape() Shape {
	return v.View.Shape
}
