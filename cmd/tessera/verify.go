package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"runtime"

	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/samcharles93/tessera/internal/grid"
	"github.com/samcharles93/tessera/internal/kernels"
	"github.com/samcharles93/tessera/internal/logger"
)

type verifyResult struct {
	Kernel     string `json:"kernel"`
	Order      string `json:"order"`
	Lanes      string `json:"lanes"`
	Mismatches int    `json:"mismatches"`
}

// verifyWorkloads launches every workload once per block order and lane
// mode and compares each output bit for bit with a sequential serial
// launch. Block size and seed come from base.
func verifyWorkloads(ctx context.Context, base grid.Config, ws []workload) ([]verifyResult, error) {
	modes := []grid.LaneMode{grid.LanesSerial, grid.LanesConcurrent}
	orders := grid.Orders()

	baselines := make([][]float32, len(ws))
	ref := base
	ref.Order, ref.Lanes = grid.OrderSequential, grid.LanesSerial
	refLauncher, err := grid.New(ref)
	if err != nil {
		return nil, err
	}
	for i, w := range ws {
		if baselines[i], err = w.Launch(refLauncher); err != nil {
			return nil, fmt.Errorf("%s baseline: %w", w.Kernel(), err)
		}
	}

	results := make([]verifyResult, len(ws)*len(orders)*len(modes))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for wi, w := range ws {
		for oi, o := range orders {
			for mi, m := range modes {
				idx := (wi*len(orders)+oi)*len(modes) + mi
				g.Go(func() error {
					if err := ctx.Err(); err != nil {
						return err
					}
					cfg := base
					cfg.Order, cfg.Lanes = o, m
					l, err := grid.New(cfg)
					if err != nil {
						return err
					}
					out, err := w.Launch(l)
					if err != nil {
						return fmt.Errorf("%s %s/%s: %w", w.Kernel(), o, m, err)
					}
					results[idx] = verifyResult{
						Kernel:     w.Kernel(),
						Order:      o.String(),
						Lanes:      m.String(),
						Mismatches: bitMismatches(baselines[wi], out),
					}
					return nil
				})
			}
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func bitMismatches(a, b []float32) int {
	if len(a) != len(b) {
		return max(len(a), len(b))
	}
	n := 0
	for i := range a {
		if math.Float32bits(a[i]) != math.Float32bits(b[i]) {
			n++
		}
	}
	return n
}

func verifyCmd() *cli.Command {
	var (
		channels int64
		tokens   int64
		batches  int64
		rows     int64
		asJSON   bool
	)

	return &cli.Command{
		Name:  "verify",
		Usage: "Check that every block order and lane mode produces bit-identical outputs",
		Flags: []cli.Flag{
			&cli.Int64Flag{Name: "channels", Aliases: []string{"c"}, Usage: "channel count", Value: 512, Destination: &channels},
			&cli.Int64Flag{Name: "tokens", Aliases: []string{"t"}, Usage: "token count", Value: 8, Destination: &tokens},
			&cli.Int64Flag{Name: "batches", Usage: "batch count", Value: 2, Destination: &batches},
			&cli.Int64Flag{Name: "rows", Aliases: []string{"r"}, Usage: "matmul rows", Value: 256, Destination: &rows},
			&cli.BoolFlag{Name: "json", Usage: "print results as JSON", Destination: &asJSON},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)

			s := sizes{channels: int(channels), tokens: int(tokens), batches: int(batches), rows: int(rows)}
			var ws []workload
			for _, v := range []kernels.Variance{kernels.VarianceNaive, kernels.VarianceTwoPass} {
				w, err := syntheticLayerNorm(s, v, seed)
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: prepare inputs: %v", err), 1)
				}
				ws = append(ws, w)
			}
			mm, err := syntheticMatMul(s, seed)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: prepare inputs: %v", err), 1)
			}
			ws = append(ws, mm)

			base, err := launcherConfig(log)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			log.Info("verifying dispatch modes", "block_size", base.BlockSize, "workloads", len(ws))
			results, err := verifyWorkloads(ctx, base, ws)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: verify: %v", err), 1)
			}

			failed := 0
			for _, r := range results {
				if r.Mismatches > 0 {
					failed++
				}
			}
			if asJSON {
				if err := writeJSON(os.Stdout, results); err != nil {
					return err
				}
			} else {
				fmt.Printf("%-12s %-12s %-11s %s\n", "kernel", "order", "lanes", "result")
				for _, r := range results {
					status := "identical"
					if r.Mismatches > 0 {
						status = fmt.Sprintf("%d mismatches", r.Mismatches)
					}
					fmt.Printf("%-12s %-12s %-11s %s\n", r.Kernel, r.Order, r.Lanes, status)
				}
			}
			if failed > 0 {
				return cli.Exit(fmt.Sprintf("error: %d of %d launches differ from the sequential baseline", failed, len(results)), 1)
			}
			return nil
		},
	}
}
