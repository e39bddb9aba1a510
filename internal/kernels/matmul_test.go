package kernels

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/samcharles93/tessera/internal/grid"
	"github.com/samcharles93/tessera/internal/pack"
	"github.com/samcharles93/tessera/internal/tensor"
)

// syntheticMatrix has distinct row and column factors and codes covering the
// whole byte range.
func syntheticMatrix(rows, cols int) *QuantMatrix {
	m := &QuantMatrix{
		Rows:     rows,
		Cols:     cols,
		ColMean:  make([]float32, cols),
		ColRange: make([]float32, cols),
		RowMean:  make([]float32, rows),
		RowRange: make([]float32, rows),
	}
	for r := range rows {
		m.RowMean[r] = 0.5*float32(r) - 1
		m.RowRange[r] = 0.5 * float32(r%7+1)
	}
	for c := range cols {
		m.ColMean[c] = 0.25 * float32(c%4)
		m.ColRange[c] = 1 + 0.5*float32(c%3)
	}
	codes := make([]uint8, rows*cols)
	for i := range codes {
		r, c := i/cols, i%cols
		codes[i] = uint8((r*37 + c*11) % 256)
	}
	m.Codes = pack.Codes(codes)
	return m
}

// runMatMul multiplies contiguous [cols, tok, batch] input by m.
func runMatMul(t testing.TB, l *grid.Launcher, m *QuantMatrix, input []float32, tok, batch int) []float32 {
	t.Helper()
	in, err := tensor.FromData(tensor.NewShape(m.Cols, tok, batch, 1), input)
	if err != nil {
		t.Fatalf("FromData: %v", err)
	}
	out := tensor.Zeros[float32](tensor.NewShape(m.Rows, tok, batch, 1))
	k, err := NewMatMul(m, in.Whole(), out.Whole())
	if err != nil {
		t.Fatalf("NewMatMul: %v", err)
	}
	l.Run(k)
	return out.Data()
}

// reference computes W*x in float64 for every token.
func reference(w []float32, rows, cols int, input []float32) []float32 {
	tokens := len(input) / cols
	out := make([]float32, rows*tokens)
	for t := range tokens {
		x := input[t*cols : (t+1)*cols]
		for r := range rows {
			var acc float64
			for c := range cols {
				acc += float64(w[r*cols+c]) * float64(x[c])
			}
			out[t*rows+r] = float32(acc)
		}
	}
	return out
}

func TestMatMulIdentity(t *testing.T) {
	m := &QuantMatrix{
		Rows:     4,
		Cols:     4,
		Codes:    pack.Codes([]uint8{255, 0, 0, 0, 0, 255, 0, 0, 0, 0, 255, 0, 0, 0, 0, 255}),
		ColMean:  []float32{0, 0, 0, 0},
		ColRange: []float32{1, 1, 1, 1},
		RowMean:  []float32{0, 0, 0, 0},
		RowRange: []float32{1, 1, 1, 1},
	}
	got := runMatMul(t, launcher(t, grid.Config{}), m, []float32{1, 2, 3, 4}, 1, 1)
	want := []float32{1, 2, 3, 4}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("idx %d: got %v want %v", i, got[i], want[i])
		}
	}
}

func TestDequantizeFormula(t *testing.T) {
	const rows, cols = 8, 16
	m := syntheticMatrix(rows, cols)
	codes := make([]uint8, rows*cols)
	pack.UnpackCodes(codes, m.Codes)

	got := m.Dequantize()
	for r := range rows {
		for c := range cols {
			code := float64(codes[r*cols+c]) / 255
			want := float64(m.RowMean[r]) + float64(m.ColMean[c]) + float64(m.RowRange[r])*float64(m.ColRange[c])*code
			if d := math.Abs(float64(got[r*cols+c]) - want); d > 1e-5 {
				t.Fatalf("(%d,%d): got %v want %v", r, c, got[r*cols+c], want)
			}
		}
	}
}

func TestMatMulDequantizationRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	const rows, cols, tok, batch = 8, 16, 3, 2
	m := syntheticMatrix(rows, cols)
	input := randomNormal(rng, cols*tok*batch, 0, 1)

	got := runMatMul(t, launcher(t, grid.Config{}), m, input, tok, batch)
	want := reference(m.Dequantize(), rows, cols, input)
	assertCloseSlice(t, got, want, 1e-4)
}

func TestMatMulBlockSizes(t *testing.T) {
	rng := rand.New(rand.NewSource(8))
	const rows, cols, tok = 16, 1024, 2
	w := randomNormal(rng, rows*cols, 0, 0.05)
	m, err := QuantizeRows(w, rows, cols)
	if err != nil {
		t.Fatalf("QuantizeRows: %v", err)
	}
	input := randomNormal(rng, cols*tok, 0, 1)
	want := reference(m.Dequantize(), rows, cols, input)

	for _, size := range []int{1, 128, 512} {
		got := runMatMul(t, launcher(t, grid.Config{BlockSize: size, Order: grid.OrderParallel}), m, input, tok, 1)
		assertCloseSlice(t, got, want, 1e-3)
	}
}

func TestMatMulThroughEmbeddedViews(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	const rows, cols, tok, batch = 8, 16, 3, 2
	m := syntheticMatrix(rows, cols)

	// Input occupies channels 8..24, tokens 1..4 and batches 1..3 of a larger buffer.
	big := tensor.Zeros[float32](tensor.NewShape(24, 5, 3, 1))
	copy(big.Data(), randomNormal(rng, big.Len(), 0, 1))
	src, err := big.View(tensor.Span(8, 24), tensor.Span(1, 4), tensor.Span(1, 3), tensor.All())
	if err != nil {
		t.Fatalf("source view: %v", err)
	}

	// Output lands in channels 4..12, tokens 1..4 of a residual stream.
	const sentinel = -7
	residual := tensor.Zeros[float32](tensor.NewShape(16, 4, 2, 1))
	for i := range residual.Data() {
		residual.Data()[i] = sentinel
	}
	dst, err := residual.View(tensor.Span(4, 12), tensor.Span(1, 4), tensor.All(), tensor.All())
	if err != nil {
		t.Fatalf("destination view: %v", err)
	}

	k, err := NewMatMul(m, src, dst)
	if err != nil {
		t.Fatalf("NewMatMul: %v", err)
	}
	launcher(t, grid.Config{Order: grid.OrderShuffled, Seed: 2}).Run(k)

	dense := make([]float32, 0, cols*tok*batch)
	for b := range batch {
		for tk := range tok {
			for c := range cols {
				dense = append(dense, big.At(8+c, 1+tk, 1+b, 0))
			}
		}
	}
	want := runMatMul(t, launcher(t, grid.Config{}), m, dense, tok, batch)

	rs := residual.Shape()
	for b := range rs[2] {
		for tk := range rs[1] {
			for c := range rs[0] {
				got := residual.At(c, tk, b, 0)
				inside := c >= 4 && c < 12 && tk >= 1
				if !inside {
					if got != sentinel {
						t.Fatalf("(%d,%d,%d) outside the view was overwritten: %v", c, tk, b, got)
					}
					continue
				}
				if w := want[(b*tok+tk-1)*rows+c-4]; got != w {
					t.Fatalf("(%d,%d,%d): got %v want %v", c, tk, b, got, w)
				}
			}
		}
	}
}

func TestCheckMatMul(t *testing.T) {
	m := syntheticMatrix(8, 16)
	in := tensor.Zeros[float32](tensor.NewShape(16, 2, 1, 1))
	out := tensor.Zeros[float32](tensor.NewShape(8, 2, 1, 1))
	_, err := NewMatMul(m, in.Whole(), out.Whole())
	require.NoError(t, err)

	wrongOut := tensor.Zeros[float32](tensor.NewShape(8, 3, 1, 1))
	_, err = NewMatMul(m, in.Whole(), wrongOut.Whole())
	require.ErrorIs(t, err, tensor.ErrShape, "token mismatch")

	short := *m
	short.RowRange = short.RowRange[:4]
	_, err = NewMatMul(&short, in.Whole(), out.Whole())
	require.ErrorIs(t, err, tensor.ErrSize, "short row_range")

	odd := *m
	odd.Rows = 6
	_, err = NewMatMul(&odd, in.Whole(), out.Whole())
	require.ErrorIs(t, err, tensor.ErrAlignment, "rows 6")

	tv := in.Whole()
	tv.Data = tv.Data[:20]
	_, err = NewMatMul(m, tv, out.Whole())
	require.ErrorIs(t, err, tensor.ErrSize, "short input")

	require.Error(t, CheckMatMul(&MatMul{}), "nil matrix")
}

func TestMatMulOutOfBoundsPanics(t *testing.T) {
	m := syntheticMatrix(8, 16)
	k := &MatMul{
		Matrix: m,
		Source: tensor.ContiguousView(tensor.NewShape(16, 3, 1, 1)),
		Dest:   tensor.ContiguousView(tensor.NewShape(8, 3, 1, 1)),
		Input:  make([]float32, 16*3-4),
		Output: make([]float32, 8*3),
	}
	if err := CheckMatMul(k); !errors.Is(err, tensor.ErrSize) {
		t.Fatalf("CheckMatMul: %v", err)
	}
	for _, order := range grid.Orders() {
		l := launcher(t, grid.Config{BlockSize: 4, Order: order})
		p := panicsWithBlock(t, func() { l.Run(k) })
		if p.Block.Y != 2 {
			t.Fatalf("%v: panic attributed to block %v, want token 2", order, p.Block)
		}
	}
}

func BenchmarkMatMul(b *testing.B) {
	const rows, cols, tok = 1024, 1024, 4
	rng := rand.New(rand.NewSource(1))
	m, err := QuantizeRows(randomNormal(rng, rows*cols, 0, 0.02), rows, cols)
	if err != nil {
		b.Fatalf("QuantizeRows: %v", err)
	}
	input := randomNormal(rng, cols*tok, 0, 1)
	l := launcher(b, grid.Config{})
	for b.Loop() {
		runMatMul(b, l, m, input, tok, 1)
	}
}
