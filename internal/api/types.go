package api

import "github.com/samcharles93/tessera/internal/kernels"

// LayerNormRequest normalizes either a dense [batches, tokens, channels]
// tensor given in X or a list of variable-length sequences that are stacked
// along the token axis.
type LayerNormRequest struct {
	Channels  int         `json:"channels"`
	Tokens    int         `json:"tokens,omitempty"`
	Batches   int         `json:"batches,omitempty"`
	X         []float32   `json:"x,omitempty"`
	Sequences [][]float32 `json:"sequences,omitempty"`
	Weight    []float32   `json:"weight"`
	Bias      []float32   `json:"bias"`
	Variance  string      `json:"variance,omitempty"`
}

// MatMulRequest multiplies a dense [batches, tokens, cols] input by a
// quantized [rows, cols] matrix. Codes are row-major bytes.
type MatMulRequest struct {
	Rows     int       `json:"rows"`
	Cols     int       `json:"cols"`
	Tokens   int       `json:"tokens"`
	Batches  int       `json:"batches"`
	Codes    []int     `json:"codes"`
	ColMean  []float32 `json:"col_mean"`
	ColRange []float32 `json:"col_range"`
	RowMean  []float32 `json:"row_mean"`
	RowRange []float32 `json:"row_range"`
	Input    []float32 `json:"input"`
}

// Cursor locates one stacked sequence in a layer norm output.
type Cursor struct {
	Batch  int    `json:"batch"`
	Token  int    `json:"token"`
	Len    int    `json:"len"`
	Packed uint32 `json:"packed"`
}

type RunResponse struct {
	ID         string    `json:"id"`
	Object     string    `json:"object"`
	Kernel     string    `json:"kernel"`
	CreatedAt  int64     `json:"created_at"`
	Shape      [4]int    `json:"shape"`
	Output     []float32 `json:"output"`
	Cursors    []Cursor  `json:"cursors,omitempty"`
	DurationUS int64     `json:"duration_us"`
}

type DeleteRunResp struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Deleted bool   `json:"deleted"`
}

type KernelList struct {
	Object    string         `json:"object"`
	Data      []kernels.Info `json:"data"`
	BlockSize int            `json:"block_size"`
	Lanes     string         `json:"lanes"`
	Order     string         `json:"order"`
	Workers   int            `json:"workers"`
}

type ResponseError struct {
	Message string `json:"message,omitempty"`
	Type    string `json:"type,omitempty"`
	Code    string `json:"code,omitempty"`
	Param   string `json:"param,omitempty"`
}
