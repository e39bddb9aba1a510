package tensor

import (
	"errors"
	"fmt"
)

var (
	ErrEmpty      = errors.New("list must not be empty")
	ErrType       = errors.New("data type mismatch")
	ErrSize       = errors.New("data size mismatch")
	ErrShape      = errors.New("tensor shape mismatch")
	ErrDeduce     = errors.New("cannot deduce dimension")
	ErrOutOfRange = errors.New("index out of range")
	ErrContiguous = errors.New("slice not contiguous")
	ErrAlignment  = errors.New("not aligned to a 4-element group")
	ErrKernel     = errors.New("kernel not found")
)

// SizeError reports a buffer whose length does not match its shape.
type SizeError struct {
	Want, Got int
}

func (e *SizeError) Error() string {
	return fmt.Sprintf("data size not match: %d vs. %d", e.Want, e.Got)
}

func (e *SizeError) Unwrap() error { return ErrSize }

// ShapeError reports a tensor whose shape differs from the required one.
type ShapeError struct {
	Got, Want Shape
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("tensor shape %v doesn't match %v", e.Got, e.Want)
}

func (e *ShapeError) Unwrap() error { return ErrShape }

// BatchOutOfRangeError reports a batch index past the tensor's batch axis.
type BatchOutOfRangeError struct {
	Batch, Max int
}

func (e *BatchOutOfRangeError) Error() string {
	return fmt.Sprintf("batch %d out of range of max %d", e.Batch, e.Max)
}

func (e *BatchOutOfRangeError) Unwrap() error { return ErrOutOfRange }

// SliceOutOfRangeError reports an axis selection outside [0, Dim].
type SliceOutOfRangeError struct {
	Dim, Start, End int
}

func (e *SliceOutOfRangeError) Error() string {
	return fmt.Sprintf("slice %d..%d out of range for dimension size %d", e.Start, e.End, e.Dim)
}

func (e *SliceOutOfRangeError) Unwrap() error { return ErrOutOfRange }
