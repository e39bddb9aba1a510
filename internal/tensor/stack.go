package tensor

// TensorStack concatenates variable-length sequences along the token axis
// and remembers where each one landed.
type TensorStack[T Scalar] struct {
	Tensor  Tensor[T]
	Cursors []Cursor
}

// NewTensorStack stacks [C, T_i, 1, 1] sequences into one [C, sum T_i, 1, 1]
// tensor. Every sequence must share C.
func NewTensorStack[T Scalar](batches []Tensor[T]) (TensorStack[T], error) {
	if len(batches) == 0 {
		return TensorStack[T]{}, ErrEmpty
	}
	c := batches[0].shape[0]
	cursors := make([]Cursor, 0, len(batches))
	token := 0
	for i, b := range batches {
		if err := b.CheckShape(Shape{c, b.shape[1], 1, 1}); err != nil {
			return TensorStack[T]{}, err
		}
		cursors = append(cursors, Cursor{Batch: i, Token: token, Len: b.shape[1]})
		token += b.shape[1]
	}
	data := make([]T, 0, c*token)
	for _, b := range batches {
		data = append(data, b.data...)
	}
	return TensorStack[T]{
		Tensor:  Tensor[T]{shape: Shape{c, token, 1, 1}, data: data},
		Cursors: cursors,
	}, nil
}

// NumBatch is the number of stacked sequences.
func (s TensorStack[T]) NumBatch() int { return len(s.Cursors) }

// NumActiveBatch is the number of sequences with at least one token.
func (s TensorStack[T]) NumActiveBatch() int {
	n := 0
	for _, c := range s.Cursors {
		if c.Len > 0 {
			n++
		}
	}
	return n
}

// NumToken is the total token count.
func (s TensorStack[T]) NumToken() int { return s.Tensor.shape[1] }

// Sequence returns the slice of the stacked tensor holding batch i.
func (s TensorStack[T]) Sequence(i int) (Tensor[T], error) {
	if i < 0 || i >= len(s.Cursors) {
		return Tensor[T]{}, &BatchOutOfRangeError{Batch: i, Max: len(s.Cursors)}
	}
	c := s.Cursors[i]
	return s.Tensor.Slice(All(), Span(c.Token, c.Token+c.Len), All(), All())
}
