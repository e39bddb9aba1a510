package kernels

import (
	"errors"
	"fmt"

	"github.com/samcharles93/tessera/internal/tensor"
)

func checkGroupDim(name string, n int) error {
	if n <= 0 || n%4 != 0 {
		return fmt.Errorf("%s %d: %w", name, n, tensor.ErrAlignment)
	}
	return nil
}

func checkLen(name string, got, want int) error {
	if got != want {
		return fmt.Errorf("%s: %w", name, &tensor.SizeError{Want: want, Got: got})
	}
	return nil
}

// CheckLayerNorm validates a LayerNorm launch.
func CheckLayerNorm(k *LayerNorm) error {
	s := k.Shape
	if err := checkGroupDim("channel", s.Channel); err != nil {
		return err
	}
	if s.Token < 0 || s.Batch < 0 {
		return fmt.Errorf("token %d batch %d: %w", s.Token, s.Batch, tensor.ErrOutOfRange)
	}
	return errors.Join(
		checkLen("x", len(k.X), s.Channel*s.Token*s.Batch),
		checkLen("weight", len(k.W), s.Channel/2),
		checkLen("bias", len(k.B), s.Channel/2),
	)
}

// CheckMatMul validates a MatMul launch.
func CheckMatMul(k *MatMul) error {
	m := k.Matrix
	if m == nil {
		return errors.New("matmul: nil matrix")
	}
	if err := checkGroupDim("rows", m.Rows); err != nil {
		return err
	}
	if err := checkGroupDim("cols", m.Cols); err != nil {
		return err
	}
	if err := errors.Join(
		checkLen("codes", len(m.Codes), m.Rows*m.Cols/4),
		checkLen("col_mean", len(m.ColMean), m.Cols),
		checkLen("col_range", len(m.ColRange), m.Cols),
		checkLen("row_mean", len(m.RowMean), m.Rows),
		checkLen("row_range", len(m.RowRange), m.Rows),
	); err != nil {
		return err
	}

	if err := k.Source.Check(); err != nil {
		return fmt.Errorf("source: %w", err)
	}
	if err := k.Dest.Check(); err != nil {
		return fmt.Errorf("destination: %w", err)
	}
	src, dst := k.Source.Shape, k.Dest.Shape
	if src[0] != m.Cols {
		return fmt.Errorf("source: %w", &tensor.ShapeError{Got: src, Want: tensor.NewShape(m.Cols, src[1], src[2], src[3])})
	}
	if want := tensor.NewShape(m.Rows, src[1], src[2], dst[3]); dst != want {
		return fmt.Errorf("destination: %w", &tensor.ShapeError{Got: dst, Want: want})
	}
	if need := k.Source.Span(); len(k.Input) < need {
		return fmt.Errorf("input: %w", &tensor.SizeError{Want: need, Got: len(k.Input)})
	}
	if need := k.Dest.Span(); len(k.Output) < need {
		return fmt.Errorf("output: %w", &tensor.SizeError{Want: need, Got: len(k.Output)})
	}
	return nil
}
