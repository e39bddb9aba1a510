package main

import (
	"fmt"
	"math"
	"math/rand"
	"slices"

	"github.com/samcharles93/tessera/internal/grid"
	"github.com/samcharles93/tessera/internal/kernels"
	"github.com/samcharles93/tessera/internal/pack"
	"github.com/samcharles93/tessera/internal/safetensors"
	"github.com/samcharles93/tessera/internal/tensor"
)

// workload is a prepared kernel input that can be launched any number of
// times. Every launch starts from the same inputs.
type workload interface {
	Kernel() string
	// OutputShape is the [x, y, z, w] extent of the result.
	OutputShape() tensor.Shape
	// Bytes is the number of input bytes a launch reads.
	Bytes() int
	Launch(l *grid.Launcher) ([]float32, error)
}

// run launches k and turns a block panic into an error.
func run(l *grid.Launcher, k grid.Kernel) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p, ok := r.(*grid.BlockPanic)
			if !ok {
				panic(r)
			}
			err = p
		}
	}()
	l.Run(k)
	return nil
}

type layerNormWorkload struct {
	x        tensor.Tensor[float32]
	weight   []float32
	bias     []float32
	variance kernels.Variance
}

func (w *layerNormWorkload) Kernel() string            { return kernels.LayerNormName }
func (w *layerNormWorkload) OutputShape() tensor.Shape { return w.x.Shape() }

func (w *layerNormWorkload) Bytes() int {
	// x is read and written; weight and bias travel as binary16.
	return 8*w.x.Len() + 2*(len(w.weight)+len(w.bias))
}

func (w *layerNormWorkload) Launch(l *grid.Launcher) ([]float32, error) {
	x := w.x.Clone()
	k, err := kernels.NewLayerNorm(x, w.weight, w.bias, w.variance)
	if err != nil {
		return nil, err
	}
	if err := run(l, k); err != nil {
		return nil, err
	}
	return x.Data(), nil
}

type matMulWorkload struct {
	matrix *kernels.QuantMatrix
	input  tensor.Tensor[float32]
}

func (w *matMulWorkload) Kernel() string { return kernels.MatMulName }

func (w *matMulWorkload) OutputShape() tensor.Shape {
	s := w.input.Shape()
	return tensor.NewShape(w.matrix.Rows, s[1], s[2], 1)
}

func (w *matMulWorkload) Bytes() int {
	m := w.matrix
	return m.Rows*m.Cols + 4*(len(m.ColMean)+len(m.ColRange)+len(m.RowMean)+len(m.RowRange)) + 4*w.input.Len()
}

func (w *matMulWorkload) Launch(l *grid.Launcher) ([]float32, error) {
	out := tensor.Zeros[float32](w.OutputShape())
	k, err := kernels.NewMatMul(w.matrix, w.input.Whole(), out.Whole())
	if err != nil {
		return nil, err
	}
	if err := run(l, k); err != nil {
		return nil, err
	}
	return out.Data(), nil
}

// reference computes the product against the dequantized matrix in float64.
func (w *matMulWorkload) reference() []float64 {
	m := w.matrix
	dense := m.Dequantize()
	s := w.input.Shape()
	in := w.input.Data()
	out := make([]float64, m.Rows*s[1]*s[2])
	for bt := range s[1] * s[2] {
		x := in[bt*m.Cols : (bt+1)*m.Cols]
		for r := range m.Rows {
			var acc float64
			for c, v := range x {
				acc += float64(dense[r*m.Cols+c]) * float64(v)
			}
			out[bt*m.Rows+r] = acc
		}
	}
	return out
}

type sizes struct {
	channels int
	tokens   int
	batches  int
	rows     int
}

func normals(rng *rand.Rand, n int, scale, offset float64) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(rng.NormFloat64()*scale + offset)
	}
	return out
}

func syntheticLayerNorm(s sizes, variance kernels.Variance, seed int64) (*layerNormWorkload, error) {
	rng := rand.New(rand.NewSource(seed))
	x, err := tensor.FromData(tensor.NewShape(s.channels, s.tokens, s.batches, 1),
		normals(rng, s.channels*s.tokens*s.batches, 2, 0.5))
	if err != nil {
		return nil, err
	}
	return &layerNormWorkload{
		x:        x,
		weight:   normals(rng, s.channels, 0.1, 1),
		bias:     normals(rng, s.channels, 0.1, 0),
		variance: variance,
	}, nil
}

func syntheticMatMul(s sizes, seed int64) (*matMulWorkload, error) {
	rng := rand.New(rand.NewSource(seed))
	m, err := kernels.QuantizeRows(normals(rng, s.rows*s.channels, 1/math.Sqrt(float64(s.channels)), 0), s.rows, s.channels)
	if err != nil {
		return nil, err
	}
	in, err := tensor.FromData(tensor.NewShape(s.channels, s.tokens, s.batches, 1),
		normals(rng, s.channels*s.tokens*s.batches, 1, 0))
	if err != nil {
		return nil, err
	}
	return &matMulWorkload{matrix: m, input: in}, nil
}

// loadLayerNorm reads x [B, T, C], weight [C] and bias [C]. Inputs are
// copied so the file can be closed before launching.
func loadLayerNorm(path string, variance kernels.Variance) (*layerNormWorkload, error) {
	f, err := safetensors.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	x, err := tensor.LoadF32(f, "x")
	if err != nil {
		return nil, err
	}
	weight, err := tensor.LoadF32(f, "weight")
	if err != nil {
		return nil, err
	}
	bias, err := tensor.LoadF32(f, "bias")
	if err != nil {
		return nil, err
	}
	return &layerNormWorkload{
		x:        x.Clone(),
		weight:   slices.Clone(weight.Data()),
		bias:     slices.Clone(bias.Data()),
		variance: variance,
	}, nil
}

// loadMatMul reads codes (U8 [R, C]), the four factor vectors and
// input [B, T, C].
func loadMatMul(path string) (*matMulWorkload, error) {
	f, err := safetensors.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	codes, err := tensor.FromSafetensors[uint8](f, "codes")
	if err != nil {
		return nil, err
	}
	cs := codes.Shape()
	if cs[2] != 1 || cs[3] != 1 {
		return nil, fmt.Errorf("codes: want a matrix, got %v", cs)
	}
	if cs[0]%4 != 0 {
		return nil, fmt.Errorf("codes: %d columns: %w", cs[0], tensor.ErrAlignment)
	}
	m := &kernels.QuantMatrix{Rows: cs[1], Cols: cs[0]}
	m.Codes = pack.Codes(codes.Data())

	factors := []struct {
		name string
		dst  *[]float32
	}{
		{"col_mean", &m.ColMean},
		{"col_range", &m.ColRange},
		{"row_mean", &m.RowMean},
		{"row_range", &m.RowRange},
	}
	for _, fc := range factors {
		t, err := tensor.LoadF32(f, fc.name)
		if err != nil {
			return nil, err
		}
		*fc.dst = slices.Clone(t.Data())
	}

	in, err := tensor.LoadF32(f, "input")
	if err != nil {
		return nil, err
	}
	return &matMulWorkload{matrix: m, input: in.Clone()}, nil
}

func writeOutput(path string, w workload, out []float32, metadata map[string]string) error {
	return safetensors.WriteFile(path, []safetensors.NamedTensor{{
		Name:  "output",
		DType: safetensors.F32,
		Shape: w.OutputShape().Dims(3),
		Data:  safetensors.EncodeF32(out),
	}}, metadata)
}
