package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/tessera/internal/kernels"
	"github.com/samcharles93/tessera/internal/logger"
	"github.com/samcharles93/tessera/internal/version"
)

type layerNormReport struct {
	Kernel    string    `json:"kernel"`
	Shape     [4]int    `json:"shape"`
	Variance  string    `json:"variance"`
	ElapsedUS int64     `json:"elapsed_us"`
	NonFinite int       `json:"non_finite"`
	Rows      []rowStat `json:"rows"`
}

func layerNormCmd() *cli.Command {
	var (
		inPath   string
		outPath  string
		channels int64
		tokens   int64
		batches  int64
		variance string
		showRows int64
		asJSON   bool
	)

	return &cli.Command{
		Name:  "layernorm",
		Usage: "Normalize x [B, T, C] from a safetensors file or synthetic data",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "in", Aliases: []string{"i"}, Usage: "safetensors file with x, weight and bias (synthetic data when empty)", Destination: &inPath},
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "write the output tensor to this safetensors file", Destination: &outPath},
			&cli.Int64Flag{Name: "channels", Aliases: []string{"c"}, Usage: "synthetic channel count", Value: 1024, Destination: &channels},
			&cli.Int64Flag{Name: "tokens", Aliases: []string{"t"}, Usage: "synthetic token count", Value: 16, Destination: &tokens},
			&cli.Int64Flag{Name: "batches", Usage: "synthetic batch count", Value: 2, Destination: &batches},
			&cli.StringFlag{Name: "variance", Usage: "variance mode (naive, two-pass)", Value: "naive", Destination: &variance},
			&cli.Int64Flag{Name: "rows", Usage: "number of output rows to summarize (0 = all)", Value: 8, Destination: &showRows},
			&cli.BoolFlag{Name: "json", Usage: "print the report as JSON", Destination: &asJSON},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)

			v, err := kernels.ParseVariance(variance)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			var w *layerNormWorkload
			if inPath != "" {
				w, err = loadLayerNorm(inPath, v)
			} else {
				w, err = syntheticLayerNorm(sizes{channels: int(channels), tokens: int(tokens), batches: int(batches)}, v, seed)
			}
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: prepare inputs: %v", err), 1)
			}
			l, err := newLauncher(log)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			log.Info("running layer norm", "shape", w.OutputShape().String(), "variance", v.String())
			start := time.Now()
			out, err := w.Launch(l)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: layer norm: %v", err), 1)
			}
			elapsed := time.Since(start)

			if outPath != "" {
				meta := map[string]string{"kernel": w.Kernel(), "variance": v.String(), "version": version.String()}
				if err := writeOutput(outPath, w, out, meta); err != nil {
					return cli.Exit(fmt.Sprintf("error: write %s: %v", outPath, err), 1)
				}
				log.Info("wrote output", "path", outPath)
			}

			report := layerNormReport{
				Kernel:    w.Kernel(),
				Shape:     [4]int(w.OutputShape()),
				Variance:  v.String(),
				ElapsedUS: elapsed.Microseconds(),
				NonFinite: countNonFinite(out),
				Rows:      rowStats(out, w.OutputShape(), int(showRows)),
			}
			if asJSON {
				return writeJSON(os.Stdout, report)
			}
			fmt.Printf("kernel:     %s (%s variance)\n", report.Kernel, report.Variance)
			fmt.Printf("shape:      %s\n", w.OutputShape())
			fmt.Printf("elapsed:    %s\n", elapsed.Round(time.Microsecond))
			if report.NonFinite > 0 {
				fmt.Printf("non-finite: %d (rows with zero variance)\n", report.NonFinite)
			}
			fmt.Printf("\n%-6s %-6s %12s %12s\n", "batch", "token", "mean", "std")
			for _, r := range report.Rows {
				if !r.Finite {
					fmt.Printf("%-6d %-6d %12s %12s\n", r.Batch, r.Token, "nan", "nan")
					continue
				}
				fmt.Printf("%-6d %-6d %12.6f %12.6f\n", r.Batch, r.Token, r.Mean, r.Std)
			}
			return nil
		},
	}
}
