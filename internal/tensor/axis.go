package tensor

// Axis selects a half-open range along one tensor axis.
type Axis interface {
	bounds(dim int) (start, end int)
}

type axisFull struct{}

func (axisFull) bounds(dim int) (int, int) { return 0, dim }

type axisRange struct {
	start, end int
	open       bool // end is the axis extent
}

func (a axisRange) bounds(dim int) (int, int) {
	if a.open {
		return a.start, dim
	}
	return a.start, a.end
}

// All selects the whole axis.
func All() Axis { return axisFull{} }

// At selects the single index i.
func At(i int) Axis { return axisRange{start: i, end: i + 1} }

// Span selects [start, end).
func Span(start, end int) Axis { return axisRange{start: start, end: end} }

// From selects [start, extent).
func From(start int) Axis { return axisRange{start: start, open: true} }

// Until selects [0, end).
func Until(end int) Axis { return axisRange{end: end} }

// shapeBounds resolves four axis selections against shape.
func shapeBounds(shape Shape, axes [4]Axis) (start, end Shape, err error) {
	for i, a := range axes {
		s, e := a.bounds(shape[i])
		if s < 0 || s > e || e > shape[i] {
			return Shape{}, Shape{}, &SliceOutOfRangeError{Dim: shape[i], Start: s, End: e}
		}
		start[i], end[i] = s, e
	}
	return start, end, nil
}

// contiguousBounds returns the linear range covered by [start, end) when it
// is a single run of memory: once an axis is partially selected, every
// higher axis may select at most one index.
func contiguousBounds(shape, start, end Shape) (int, int, error) {
	extent := end.Sub(start)
	partial := false
	for i := range 4 {
		if partial && extent[i] > 1 {
			return 0, 0, ErrContiguous
		}
		if extent[i] != shape[i] {
			partial = true
		}
	}
	first := shape.Index(start)
	return first, first + extent.Len(), nil
}
