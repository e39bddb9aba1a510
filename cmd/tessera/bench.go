package main

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/tessera/internal/kernels"
	"github.com/samcharles93/tessera/internal/logger"
)

type benchReport struct {
	Kernel      string          `json:"kernel"`
	Shape       [4]int          `json:"shape"`
	BlockSize   int             `json:"block_size"`
	Order       string          `json:"order"`
	Lanes       string          `json:"lanes"`
	Workers     int             `json:"workers"`
	Runs        int             `json:"runs"`
	Durations   durationSummary `json:"durations"`
	BytesPerRun int             `json:"bytes_per_run"`
	BytesPerSec float64         `json:"bytes_per_sec"`
}

func benchCmd() *cli.Command {
	var (
		kernel     string
		warmupRuns int64
		benchRuns  int64
		channels   int64
		tokens     int64
		batches    int64
		rows       int64
		variance   string
		quiet      bool
		asJSON     bool
	)

	return &cli.Command{
		Name:  "bench",
		Usage: "Time repeated launches of a kernel on synthetic data",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "kernel", Aliases: []string{"k"}, Usage: "kernel to run (layer_norm, matmul)", Value: kernels.MatMulName, Destination: &kernel},
			&cli.Int64Flag{Name: "warmup", Usage: "number of warmup runs", Value: 2, Destination: &warmupRuns},
			&cli.Int64Flag{Name: "runs", Aliases: []string{"n"}, Usage: "number of timed runs", Value: 20, Destination: &benchRuns},
			&cli.Int64Flag{Name: "channels", Aliases: []string{"c"}, Usage: "channel count", Value: 2048, Destination: &channels},
			&cli.Int64Flag{Name: "tokens", Aliases: []string{"t"}, Usage: "token count", Value: 32, Destination: &tokens},
			&cli.Int64Flag{Name: "batches", Usage: "batch count", Value: 1, Destination: &batches},
			&cli.Int64Flag{Name: "rows", Aliases: []string{"r"}, Usage: "matmul rows", Value: 2048, Destination: &rows},
			&cli.StringFlag{Name: "variance", Usage: "layer norm variance mode", Value: "naive", Destination: &variance},
			&cli.BoolFlag{Name: "quiet", Aliases: []string{"q"}, Usage: "hide the progress bar", Destination: &quiet},
			&cli.BoolFlag{Name: "json", Usage: "print the report as JSON", Destination: &asJSON},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)

			info, err := kernels.Lookup(kernel)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			s := sizes{channels: int(channels), tokens: int(tokens), batches: int(batches), rows: int(rows)}
			var w workload
			switch info.Name {
			case kernels.LayerNormName:
				v, perr := kernels.ParseVariance(variance)
				if perr != nil {
					return cli.Exit(fmt.Sprintf("error: %v", perr), 1)
				}
				w, err = syntheticLayerNorm(s, v, seed)
			case kernels.MatMulName:
				w, err = syntheticMatMul(s, seed)
			}
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: prepare inputs: %v", err), 1)
			}
			l, err := newLauncher(log)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			cfg := l.Config()

			for i := range int(warmupRuns) {
				log.Debug("warmup run", "run", i+1)
				if _, err := w.Launch(l); err != nil {
					return cli.Exit(fmt.Sprintf("error: warmup run %d: %v", i+1, err), 1)
				}
			}

			var bar *progressbar.ProgressBar
			if !quiet && !asJSON {
				bar = progressbar.NewOptions(int(benchRuns),
					progressbar.OptionSetDescription(info.Name),
					progressbar.OptionSetWriter(os.Stderr),
					progressbar.OptionShowCount(),
					progressbar.OptionClearOnFinish(),
				)
			}
			durations := make([]time.Duration, 0, benchRuns)
			for i := range int(benchRuns) {
				if err := ctx.Err(); err != nil {
					return err
				}
				start := time.Now()
				if _, err := w.Launch(l); err != nil {
					return cli.Exit(fmt.Sprintf("error: benchmark run %d: %v", i+1, err), 1)
				}
				durations = append(durations, time.Since(start))
				if bar != nil {
					_ = bar.Add(1)
				}
			}
			if bar != nil {
				_ = bar.Finish()
			}

			sum := summarize(durations)
			report := benchReport{
				Kernel:      info.Name,
				Shape:       [4]int(w.OutputShape()),
				BlockSize:   cfg.BlockSize,
				Order:       cfg.Order.String(),
				Lanes:       cfg.Lanes.String(),
				Workers:     cfg.Workers,
				Runs:        len(durations),
				Durations:   sum,
				BytesPerRun: w.Bytes(),
			}
			if sum.Median > 0 {
				report.BytesPerSec = float64(w.Bytes()) / sum.Median.Seconds()
			}
			if asJSON {
				return writeJSON(os.Stdout, report)
			}

			fmt.Println("=== Tessera Benchmark ===")
			fmt.Printf("Kernel:     %s\n", report.Kernel)
			fmt.Printf("Shape:      %s\n", w.OutputShape())
			fmt.Printf("Launcher:   block %d, %s order, %s lanes, %d workers\n", cfg.BlockSize, report.Order, report.Lanes, cfg.Workers)
			fmt.Printf("CPUs:       %d (GOMAXPROCS %d)\n", runtime.NumCPU(), runtime.GOMAXPROCS(0))
			fmt.Printf("Input:      %s per run\n", humanize.Bytes(uint64(w.Bytes())))
			fmt.Printf("Runs:       %s\n", humanize.Comma(int64(report.Runs)))
			fmt.Println()
			fmt.Printf("%-8s %12s\n", "", "duration")
			fmt.Printf("%-8s %12s\n", "min", sum.Min.Round(time.Microsecond))
			fmt.Printf("%-8s %12s\n", "median", sum.Median.Round(time.Microsecond))
			fmt.Printf("%-8s %12s\n", "mean", sum.Mean.Round(time.Microsecond))
			fmt.Printf("%-8s %12s\n", "max", sum.Max.Round(time.Microsecond))
			if report.BytesPerSec > 0 {
				fmt.Printf("\nThroughput: %s/s (median)\n", humanize.Bytes(uint64(report.BytesPerSec)))
			}
			return nil
		},
	}
}
