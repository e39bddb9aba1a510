package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/tessera/internal/logger"
	"github.com/samcharles93/tessera/internal/version"
)

type matMulReport struct {
	Kernel    string   `json:"kernel"`
	Rows      int      `json:"rows"`
	Cols      int      `json:"cols"`
	Shape     [4]int   `json:"shape"`
	ElapsedUS int64    `json:"elapsed_us"`
	MaxAbsErr *float64 `json:"max_abs_err,omitempty"`
}

func matMulCmd() *cli.Command {
	var (
		inPath   string
		outPath  string
		rows     int64
		channels int64
		tokens   int64
		batches  int64
		check    bool
		asJSON   bool
	)

	return &cli.Command{
		Name:  "matmul",
		Usage: "Multiply input [B, T, C] by a quantized [R, C] matrix",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "in", Aliases: []string{"i"}, Usage: "safetensors file with codes, col_mean, col_range, row_mean, row_range and input (synthetic data when empty)", Destination: &inPath},
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "write the output tensor to this safetensors file", Destination: &outPath},
			&cli.Int64Flag{Name: "rows", Aliases: []string{"r"}, Usage: "synthetic matrix rows", Value: 1024, Destination: &rows},
			&cli.Int64Flag{Name: "channels", Aliases: []string{"c"}, Usage: "synthetic matrix columns", Value: 1024, Destination: &channels},
			&cli.Int64Flag{Name: "tokens", Aliases: []string{"t"}, Usage: "synthetic token count", Value: 16, Destination: &tokens},
			&cli.Int64Flag{Name: "batches", Usage: "synthetic batch count", Value: 2, Destination: &batches},
			&cli.BoolFlag{Name: "check", Usage: "compare against a float64 product with the dequantized matrix", Value: true, Destination: &check},
			&cli.BoolFlag{Name: "json", Usage: "print the report as JSON", Destination: &asJSON},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)

			var (
				w   *matMulWorkload
				err error
			)
			if inPath != "" {
				w, err = loadMatMul(inPath)
			} else {
				w, err = syntheticMatMul(sizes{channels: int(channels), tokens: int(tokens), batches: int(batches), rows: int(rows)}, seed)
			}
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: prepare inputs: %v", err), 1)
			}
			l, err := newLauncher(log)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			log.Info("running matmul", "rows", w.matrix.Rows, "cols", w.matrix.Cols, "shape", w.OutputShape().String())
			start := time.Now()
			out, err := w.Launch(l)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: matmul: %v", err), 1)
			}
			elapsed := time.Since(start)

			if outPath != "" {
				meta := map[string]string{"kernel": w.Kernel(), "version": version.String()}
				if err := writeOutput(outPath, w, out, meta); err != nil {
					return cli.Exit(fmt.Sprintf("error: write %s: %v", outPath, err), 1)
				}
				log.Info("wrote output", "path", outPath)
			}

			report := matMulReport{
				Kernel:    w.Kernel(),
				Rows:      w.matrix.Rows,
				Cols:      w.matrix.Cols,
				Shape:     [4]int(w.OutputShape()),
				ElapsedUS: elapsed.Microseconds(),
			}
			if check {
				e := maxAbsError(out, w.reference())
				report.MaxAbsErr = &e
			}
			if asJSON {
				return writeJSON(os.Stdout, report)
			}
			fmt.Printf("kernel:  %s (%d x %d)\n", report.Kernel, report.Rows, report.Cols)
			fmt.Printf("shape:   %s\n", w.OutputShape())
			fmt.Printf("elapsed: %s\n", elapsed.Round(time.Microsecond))
			if report.MaxAbsErr != nil {
				fmt.Printf("max abs error vs float64: %.3g\n", *report.MaxAbsErr)
			}
			return nil
		},
	}
}
