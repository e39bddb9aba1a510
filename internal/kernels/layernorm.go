// Package kernels implements the compute kernels launched on a grid.Launcher:
// layer normalization over packed embeddings and a matrix product with a
// rank-1 dequantized 8-bit weight matrix. Kernels do not validate their
// inputs; callers run CheckLayerNorm or CheckMatMul first. A kernel that is
// given inconsistent buffers panics on the first out-of-range access.
package kernels

import (
	"fmt"
	"strings"

	"github.com/samcharles93/tessera/internal/grid"
	"github.com/samcharles93/tessera/internal/pack"
	"github.com/samcharles93/tessera/internal/tensor"
	"github.com/samcharles93/tessera/internal/vec"
)

// Variance selects how LayerNorm estimates the per-row variance.
type Variance int

const (
	// VarianceNaive computes E[x^2] - E[x]^2 from a single pass. It can lose
	// precision, or go negative, when the mean is large relative to the
	// spread.
	VarianceNaive Variance = iota
	// VarianceTwoPass reduces the mean first and then sums (x-mean)^2 in a
	// second pass. Results differ from VarianceNaive in the low bits.
	VarianceTwoPass
)

func (v Variance) String() string {
	switch v {
	case VarianceNaive:
		return "naive"
	case VarianceTwoPass:
		return "two-pass"
	default:
		return fmt.Sprintf("Variance(%d)", int(v))
	}
}

// ParseVariance parses the names returned by Variance.String.
func ParseVariance(s string) (Variance, error) {
	switch strings.ToLower(s) {
	case "", "naive":
		return VarianceNaive, nil
	case "two-pass", "twopass", "two_pass":
		return VarianceTwoPass, nil
	default:
		return 0, fmt.Errorf("unknown variance mode %q", s)
	}
}

// LayerNormShape is the logical extent of the embedding tensor.
type LayerNormShape struct {
	Channel int
	Token   int
	Batch   int
}

// LayerNorm normalizes every (batch, token) row of X to zero mean and unit
// variance, then applies y = x*w + b, in place.
//
// X holds Batch*Token*Channel values with channels fastest. W and B hold one
// binary16 value per channel, two per word (see pack.UnpackHalf2).
//
// Channel must be a positive multiple of 4. With Channel == 0 the mean is
// NaN and nothing is written. A row with zero variance yields +Inf invstd
// and NaN outputs.
type LayerNorm struct {
	Shape    LayerNormShape
	W, B     []uint32
	X        []float32
	Variance Variance
}

// NewLayerNorm builds the kernel for a [C, T, B, 1] tensor and per-channel
// weight and bias, packing the affine parameters to binary16.
func NewLayerNorm(x tensor.Tensor[float32], w, b []float32, variance Variance) (*LayerNorm, error) {
	s := x.Shape()
	if s[3] != 1 {
		return nil, &tensor.ShapeError{Got: s, Want: tensor.NewShape(s[0], s[1], s[2], 1)}
	}
	if len(w) != s[0] {
		return nil, fmt.Errorf("weight: %w", &tensor.SizeError{Want: s[0], Got: len(w)})
	}
	if len(b) != s[0] {
		return nil, fmt.Errorf("bias: %w", &tensor.SizeError{Want: s[0], Got: len(b)})
	}
	if s[0]%2 != 0 {
		return nil, fmt.Errorf("channel %d: %w", s[0], tensor.ErrAlignment)
	}
	k := &LayerNorm{
		Shape:    LayerNormShape{Channel: s[0], Token: s[1], Batch: s[2]},
		W:        pack.Halves(w),
		B:        pack.Halves(b),
		X:        x.Data(),
		Variance: variance,
	}
	if err := CheckLayerNorm(k); err != nil {
		return nil, err
	}
	return k, nil
}

func (k *LayerNorm) Groups() grid.Dim3 {
	return grid.Dim3{X: 1, Y: k.Shape.Token, Z: k.Shape.Batch}
}

func (k *LayerNorm) Block(b *grid.Block) {
	token, batch := b.ID.Y, b.ID.Z
	groups := k.Shape.Channel / 4
	base := (batch*k.Shape.Token + token) * groups
	c := float32(k.Shape.Channel)

	sum := grid.Scratch(b.Size)
	sq := grid.Scratch(b.Size)
	defer grid.Release(sum)
	defer grid.Release(sq)

	b.Step(func(lane int) {
		var s, q vec.Vec4
		for i := lane; i < groups; i += b.Size {
			x := vec.Load(k.X, base+i)
			s = s.Add(x)
			q = q.Add(x.Mul(x))
		}
		sum[lane] = s
		sq[lane] = q
	})
	grid.Reduce(b, sum, sq)

	var mean, invstd float32
	b.Step(func(lane int) {
		if lane != 0 {
			return
		}
		mean = sum[0].Sum() / c
		invstd = vec.InverseSqrt(sq[0].Sum()/c - float32(mean*mean))
	})

	if k.Variance == VarianceTwoPass {
		b.Step(func(lane int) {
			var q vec.Vec4
			m := vec.Splat(mean)
			for i := lane; i < groups; i += b.Size {
				d := vec.Load(k.X, base+i).Sub(m)
				q = q.Add(d.Mul(d))
			}
			sq[lane] = q
		})
		grid.Reduce(b, sq)
		b.Step(func(lane int) {
			if lane == 0 {
				invstd = vec.InverseSqrt(sq[0].Sum() / c)
			}
		})
	}

	b.Step(func(lane int) {
		m := vec.Splat(mean)
		for i := lane; i < groups; i += b.Size {
			x := vec.Load(k.X, base+i).Sub(m).Scale(invstd)
			w := pack.UnpackHalf4(k.W, i)
			bias := pack.UnpackHalf4(k.B, i)
			vec.FMA(x, w, bias).Store(k.X, base+i)
		}
	})
}
