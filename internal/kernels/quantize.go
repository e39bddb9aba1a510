package kernels

import (
	"fmt"

	"github.com/samcharles93/tessera/internal/pack"
	"github.com/samcharles93/tessera/internal/tensor"
)

// QuantizeRows builds a QuantMatrix from a dense row-major matrix using
// per-row min/max calibration: RowMean holds the row minimum, RowRange the
// row spread, and the column factors are the identity (ColMean 0, ColRange 1).
// Reconstruction error is at most half a code step of each row's spread.
func QuantizeRows(w []float32, rows, cols int) (*QuantMatrix, error) {
	if err := checkGroupDim("rows", rows); err != nil {
		return nil, err
	}
	if err := checkGroupDim("cols", cols); err != nil {
		return nil, err
	}
	if len(w) != rows*cols {
		return nil, fmt.Errorf("weights: %w", &tensor.SizeError{Want: rows * cols, Got: len(w)})
	}

	m := &QuantMatrix{
		Rows:     rows,
		Cols:     cols,
		ColMean:  make([]float32, cols),
		ColRange: make([]float32, cols),
		RowMean:  make([]float32, rows),
		RowRange: make([]float32, rows),
	}
	for c := range m.ColRange {
		m.ColRange[c] = 1
	}
	codes := make([]uint8, rows*cols)
	for r := range rows {
		row := w[r*cols : (r+1)*cols]
		lo, hi := row[0], row[0]
		for _, v := range row[1:] {
			lo = min(lo, v)
			hi = max(hi, v)
		}
		m.RowMean[r] = lo
		m.RowRange[r] = hi - lo
		if hi == lo {
			continue
		}
		scale := 255 / float64(hi-lo)
		for c, v := range row {
			q := float64(v-lo)*scale + 0.5
			codes[r*cols+c] = uint8(min(max(q, 0), 255))
		}
	}
	m.Codes = pack.Codes(codes)
	return m, nil
}
