package main

import (
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/tessera/internal/grid"
	"github.com/samcharles93/tessera/internal/logger"
)

var (
	configFile string
	blockSize  int64
	workers    int64
	lanes      string
	order      string
	seed       int64
	logLevel   string
	logFormat  string
	debug      bool
)

func launcherFlags() []cli.Flag {
	return []cli.Flag{
		&cli.Int64Flag{
			Name:        "block-size",
			Aliases:     []string{"b"},
			Usage:       "lanes per block (power of two)",
			Value:       grid.DefaultBlockSize,
			Destination: &blockSize,
		},
		&cli.Int64Flag{
			Name:        "workers",
			Usage:       "parallel block workers (0 = GOMAXPROCS)",
			Destination: &workers,
		},
		&cli.StringFlag{
			Name:        "lanes",
			Usage:       "lane execution (serial, concurrent)",
			Value:       "serial",
			Destination: &lanes,
		},
		&cli.StringFlag{
			Name:        "order",
			Usage:       "block order (sequential, shuffled, interleaved, parallel)",
			Value:       "parallel",
			Destination: &order,
		},
		&cli.Int64Flag{
			Name:        "seed",
			Usage:       "seed for shuffled orders and synthetic data",
			Value:       42,
			Destination: &seed,
		},
	}
}

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
		&cli.StringFlag{
			Name:        "config",
			Usage:       "path to config.yaml",
			Value:       configPath(),
			Destination: &configFile,
		},
	}
}

// launcherConfig builds a grid configuration from the global flags.
func launcherConfig(log logger.Logger) (grid.Config, error) {
	lm, err := grid.ParseLaneMode(lanes)
	if err != nil {
		return grid.Config{}, err
	}
	o, err := grid.ParseOrder(order)
	if err != nil {
		return grid.Config{}, err
	}
	return grid.Config{
		BlockSize: int(blockSize),
		Lanes:     lm,
		Order:     o,
		Workers:   int(workers),
		Seed:      seed,
		Logger:    log,
	}, nil
}

func newLauncher(log logger.Logger) (*grid.Launcher, error) {
	cfg, err := launcherConfig(log)
	if err != nil {
		return nil, err
	}
	l, err := grid.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("launcher: %w", err)
	}
	return l, nil
}
