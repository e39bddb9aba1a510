package kernels

import (
	"github.com/samcharles93/tessera/internal/grid"
	"github.com/samcharles93/tessera/internal/pack"
	"github.com/samcharles93/tessera/internal/tensor"
	"github.com/samcharles93/tessera/internal/vec"
)

// QuantMatrix is a Rows x Cols weight matrix stored as 8-bit normalized
// codes with a rank-1 affine correction:
//
//	W[r,c] = RowMean[r] + ColMean[c] + RowRange[r]*ColRange[c]*code[r,c]
//
// Codes[r*Cols/4 + g] packs the codes of row r, columns 4g..4g+3, least
// significant byte first.
type QuantMatrix struct {
	Rows, Cols int
	Codes      []uint32
	ColMean    []float32
	ColRange   []float32
	RowMean    []float32
	RowRange   []float32
}

// weights reconstructs the 4x4 tile of rows 4*rowGroup.. and column group i.
// Column r of the result holds row r of the tile.
func (m *QuantMatrix) weights(rowGroup, i int, my, ry vec.Vec4) vec.Mat4 {
	stride := m.Cols / 4
	mx := vec.Load(m.ColMean, i)
	rx := vec.Load(m.ColRange, i)
	var w vec.Mat4
	for r := range 4 {
		code := pack.UnpackUnorm4x8(m.Codes[(4*rowGroup+r)*stride+i])
		w[r] = vec.FMA(code, rx.Scale(ry[r]), mx.AddScalar(my[r]))
	}
	return w
}

// Dequantize reconstructs the dense row-major matrix with the same
// per-element arithmetic as the kernel.
func (m *QuantMatrix) Dequantize() []float32 {
	out := make([]float32, m.Rows*m.Cols)
	for rg := range m.Rows / 4 {
		my := vec.Load(m.RowMean, rg)
		ry := vec.Load(m.RowRange, rg)
		for i := range m.Cols / 4 {
			w := m.weights(rg, i, my, ry)
			for r := range 4 {
				w[r].Store(out[(4*rg+r)*m.Cols:], i)
			}
		}
	}
	return out
}

// MatMul computes Output[b,t,:] = W * Input[b,t,:] for every token of the
// source view. Each block owns four output rows of one (batch, token) pair
// and its lanes stride the input columns cooperatively.
type MatMul struct {
	Matrix *QuantMatrix
	Source tensor.View
	Dest   tensor.View
	Input  []float32
	Output []float32
}

// NewMatMul builds the kernel from views over the input and output buffers.
func NewMatMul(m *QuantMatrix, input, output tensor.TensorView[float32]) (*MatMul, error) {
	k := &MatMul{
		Matrix: m,
		Source: input.View,
		Dest:   output.View,
		Input:  input.Data,
		Output: output.Data,
	}
	if err := CheckMatMul(k); err != nil {
		return nil, err
	}
	return k, nil
}

func (k *MatMul) Groups() grid.Dim3 {
	return grid.Dim3{X: k.Matrix.Rows / 4, Y: k.Source.Shape[1], Z: k.Source.Shape[2]}
}

func (k *MatMul) Block(b *grid.Block) {
	rowGroup, token, batch := b.ID.X, b.ID.Y, b.ID.Z
	m := k.Matrix
	stride := m.Cols / 4
	my := vec.Load(m.RowMean, rowGroup)
	ry := vec.Load(m.RowRange, rowGroup)

	acc := grid.Scratch(b.Size)
	defer grid.Release(acc)

	b.Step(func(lane int) {
		var local vec.Vec4
		for i := lane; i < stride; i += b.Size {
			x := vec.Load(k.Input, k.Source.Index(batch, token, i))
			w := m.weights(rowGroup, i, my, ry)
			local = local.Add(w.MulTransposed(x))
		}
		acc[lane] = local
	})
	grid.Reduce(b, acc)
	b.Step(func(lane int) {
		if lane == 0 {
			acc[0].Store(k.Output, k.Dest.Index(batch, token, rowGroup))
		}
	})
}
