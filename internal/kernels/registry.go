package kernels

import (
	"fmt"

	"github.com/samcharles93/tessera/internal/tensor"
)

// Info describes a kernel for listings.
type Info struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Inputs      []string `json:"inputs"`
	Grid        string   `json:"grid"`
}

const (
	LayerNormName = "layer_norm"
	MatMulName    = "matmul"
)

var registry = []Info{
	{
		Name:        LayerNormName,
		Description: "in-place layer normalization with binary16 affine parameters",
		Inputs:      []string{"x", "weight", "bias"},
		Grid:        "(1, tokens, batches)",
	},
	{
		Name:        MatMulName,
		Description: "matrix product with a rank-1 dequantized 8-bit weight matrix",
		Inputs:      []string{"codes", "col_mean", "col_range", "row_mean", "row_range", "input"},
		Grid:        "(rows/4, tokens, batches)",
	},
}

// List returns every kernel.
func List() []Info {
	out := make([]Info, len(registry))
	copy(out, registry)
	return out
}

// Lookup finds a kernel by name.
func Lookup(name string) (Info, error) {
	for _, k := range registry {
		if k.Name == name {
			return k, nil
		}
	}
	return Info{}, fmt.Errorf("%w: %q", tensor.ErrKernel, name)
}
