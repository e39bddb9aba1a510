// Package tensor holds the shape, slicing and view machinery shared by the
// kernels and their callers. Shapes are four-dimensional [x, y, z, w] with x
// varying fastest; embedding tensors use x = channel, y = token, z = batch.
package tensor

import "fmt"

// Shape is a 4-D extent or position.
type Shape [4]int

// NewShape builds a Shape from its four extents.
func NewShape(x, y, z, w int) Shape {
	return Shape{x, y, z, w}
}

// Len is the number of elements covered by the shape.
func (s Shape) Len() int {
	return s[0] * s[1] * s[2] * s[3]
}

// IsEmpty reports whether the shape covers no elements.
func (s Shape) IsEmpty() bool {
	return s.Len() == 0
}

// Index is the linear offset of position p in a tensor of shape s.
func (s Shape) Index(p Shape) int {
	return p[0] + s[0]*(p[1]+s[1]*(p[2]+s[2]*p[3]))
}

// Sub returns the per-axis difference s - o.
func (s Shape) Sub(o Shape) Shape {
	return Shape{s[0] - o[0], s[1] - o[1], s[2] - o[2], s[3] - o[3]}
}

// Add returns the per-axis sum s + o.
func (s Shape) Add(o Shape) Shape {
	return Shape{s[0] + o[0], s[1] + o[1], s[2] + o[2], s[3] + o[3]}
}

func (s Shape) String() string {
	return fmt.Sprintf("[%d, %d, %d, %d]", s[0], s[1], s[2], s[3])
}

type dimKind uint8

const (
	dimSize dimKind = iota
	dimFull
	dimAuto
)

// Dimension is one axis of a reshape request.
type Dimension struct {
	kind dimKind
	n    int
}

var (
	// Full keeps the current extent of the axis.
	Full = Dimension{kind: dimFull}
	// Auto is deduced so the element count is preserved. At most one axis
	// may be Auto.
	Auto = Dimension{kind: dimAuto}
)

// Size requests an explicit extent.
func Size(n int) Dimension {
	return Dimension{kind: dimSize, n: n}
}

// Deduce resolves a reshape of shape into the requested dimensions.
func Deduce(shape Shape, x, y, z, w Dimension) (Shape, error) {
	dims := [4]Dimension{x, y, z, w}
	var out Shape
	auto := -1
	known := 1
	for i, d := range dims {
		switch d.kind {
		case dimFull:
			out[i] = shape[i]
		case dimSize:
			out[i] = d.n
		case dimAuto:
			if auto >= 0 {
				return Shape{}, ErrDeduce
			}
			auto = i
			continue
		}
		known *= out[i]
	}
	if auto >= 0 {
		if known <= 0 || shape.Len()%known != 0 {
			return Shape{}, ErrDeduce
		}
		out[auto] = shape.Len() / known
	}
	if out.Len() != shape.Len() {
		return Shape{}, &SizeError{Want: shape.Len(), Got: out.Len()}
	}
	return out, nil
}
