package api

import (
	"context"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/samcharles93/tessera/internal/grid"
	"github.com/samcharles93/tessera/internal/kernels"
	"github.com/samcharles93/tessera/internal/logger"
	"github.com/samcharles93/tessera/internal/pack"
	"github.com/samcharles93/tessera/internal/tensor"
)

// Result is the outcome of one kernel launch.
type Result struct {
	Kernel  string
	Shape   tensor.Shape
	Output  []float32
	Cursors []tensor.Cursor
	Elapsed time.Duration
}

// KernelService turns decoded requests into validated kernel launches.
type KernelService struct {
	launcher *grid.Launcher
	log      logger.Logger
}

func NewKernelService(l *grid.Launcher, log logger.Logger) *KernelService {
	return &KernelService{launcher: l, log: logger.OrDiscard(log)}
}

func (s *KernelService) LayerNorm(ctx context.Context, req LayerNormRequest) (*Result, error) {
	variance, err := kernels.ParseVariance(req.Variance)
	if err != nil {
		return nil, newInvalidRequest(err.Error())
	}
	if req.Channels <= 0 {
		return nil, newInvalidRequest("channels must be positive")
	}

	var (
		x       tensor.Tensor[float32]
		cursors []tensor.Cursor
	)
	if len(req.Sequences) > 0 {
		if len(req.X) > 0 {
			return nil, newInvalidRequest("x and sequences are mutually exclusive")
		}
		seqs := make([]tensor.Tensor[float32], 0, len(req.Sequences))
		for i, seq := range req.Sequences {
			if len(seq)%req.Channels != 0 {
				return nil, newInvalidRequest(fmt.Sprintf("sequence %d: length %d is not a multiple of %d channels", i, len(seq), req.Channels))
			}
			t, err := tensor.FromData(tensor.NewShape(req.Channels, len(seq)/req.Channels, 1, 1), slices.Clone(seq))
			if err != nil {
				return nil, invalidf(err, "sequence %d", i)
			}
			seqs = append(seqs, t)
		}
		stack, err := tensor.NewTensorStack(seqs)
		if err != nil {
			return nil, invalidf(err, "sequences")
		}
		x, cursors = stack.Tensor, stack.Cursors
	} else {
		x, err = tensor.FromData(tensor.NewShape(req.Channels, req.Tokens, req.Batches, 1), slices.Clone(req.X))
		if err != nil {
			return nil, invalidf(err, "x")
		}
	}

	k, err := kernels.NewLayerNorm(x, req.Weight, req.Bias, variance)
	if err != nil {
		return nil, invalidf(err, "layer norm")
	}
	elapsed, err := s.launch(ctx, kernels.LayerNormName, k)
	if err != nil {
		return nil, err
	}
	if i := firstNonFinite(x.Data()); i >= 0 {
		return nil, newInvalidRequest(fmt.Sprintf("output element %d is not finite; a row has zero variance", i))
	}
	return &Result{
		Kernel:  kernels.LayerNormName,
		Shape:   x.Shape(),
		Output:  x.Data(),
		Cursors: cursors,
		Elapsed: elapsed,
	}, nil
}

func (s *KernelService) MatMul(ctx context.Context, req MatMulRequest) (*Result, error) {
	if req.Rows <= 0 || req.Cols <= 0 || req.Rows%4 != 0 || req.Cols%4 != 0 {
		return nil, newInvalidRequest(fmt.Sprintf("rows %d and cols %d must be positive multiples of 4", req.Rows, req.Cols))
	}
	if len(req.Codes) != req.Rows*req.Cols {
		return nil, invalidf(&tensor.SizeError{Want: req.Rows * req.Cols, Got: len(req.Codes)}, "codes")
	}
	codes := make([]uint8, len(req.Codes))
	for i, c := range req.Codes {
		if c < 0 || c > math.MaxUint8 {
			return nil, newInvalidRequest(fmt.Sprintf("codes[%d] = %d is outside 0..255", i, c))
		}
		codes[i] = uint8(c)
	}
	m := &kernels.QuantMatrix{
		Rows:     req.Rows,
		Cols:     req.Cols,
		Codes:    pack.Codes(codes),
		ColMean:  req.ColMean,
		ColRange: req.ColRange,
		RowMean:  req.RowMean,
		RowRange: req.RowRange,
	}

	in, err := tensor.FromData(tensor.NewShape(req.Cols, req.Tokens, req.Batches, 1), req.Input)
	if err != nil {
		return nil, invalidf(err, "input")
	}
	out := tensor.Zeros[float32](tensor.NewShape(req.Rows, req.Tokens, req.Batches, 1))
	k, err := kernels.NewMatMul(m, in.Whole(), out.Whole())
	if err != nil {
		return nil, invalidf(err, "matmul")
	}
	elapsed, err := s.launch(ctx, kernels.MatMulName, k)
	if err != nil {
		return nil, err
	}
	if i := firstNonFinite(out.Data()); i >= 0 {
		return nil, newInvalidRequest(fmt.Sprintf("output element %d is not finite", i))
	}
	return &Result{
		Kernel:  kernels.MatMulName,
		Shape:   out.Shape(),
		Output:  out.Data(),
		Elapsed: elapsed,
	}, nil
}

// launch runs k to completion. A launch cannot be interrupted once started,
// so ctx is only consulted beforehand.
func (s *KernelService) launch(ctx context.Context, name string, k grid.Kernel) (elapsed time.Duration, err error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	log := logger.ForKernel(s.log, name, k.Groups().Count())
	defer func() {
		if r := recover(); r != nil {
			p, ok := r.(*grid.BlockPanic)
			if !ok {
				panic(r)
			}
			log.Warn("kernel launch faulted", "block", p.Block.String())
			err = fmt.Errorf("%w: %s: %v", ErrKernelFault, name, p)
		}
	}()
	start := time.Now()
	s.launcher.Run(k)
	elapsed = time.Since(start)
	log.Debug("kernel finished", "elapsed", elapsed)
	return elapsed, nil
}

func firstNonFinite(v []float32) int {
	for i, x := range v {
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return i
		}
	}
	return -1
}
