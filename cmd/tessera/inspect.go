package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/tessera/internal/safetensors"
	"github.com/samcharles93/tessera/internal/tensor"
)

type tensorEntry struct {
	Name     string `json:"name"`
	DType    string `json:"dtype"`
	Dims     []int  `json:"dims"`
	Shape    [4]int `json:"shape"`
	Elements int    `json:"elements"`
	Bytes    int64  `json:"bytes"`
}

type inspectReport struct {
	Path     string            `json:"path"`
	Size     int64             `json:"size"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Tensors  []tensorEntry     `json:"tensors"`
}

func inspectFile(path string) (inspectReport, error) {
	f, err := safetensors.Open(path)
	if err != nil {
		return inspectReport{}, err
	}
	defer func() { _ = f.Close() }()

	report := inspectReport{Path: path, Metadata: f.Metadata}
	if st, err := os.Stat(path); err == nil {
		report.Size = st.Size()
	}
	for _, name := range f.Names() {
		info, _ := f.Tensor(name)
		n, err := info.Elements()
		if err != nil {
			return inspectReport{}, fmt.Errorf("tensor %s: %w", name, err)
		}
		entry := tensorEntry{
			Name:     name,
			DType:    info.DType,
			Dims:     info.Shape,
			Elements: n,
			Bytes:    info.End - info.Start,
		}
		// Tensors of rank above four are listed but have no kernel shape.
		if shape, err := tensor.ShapeFromDims(info.Shape); err == nil {
			entry.Shape = [4]int(shape)
		}
		report.Tensors = append(report.Tensors, entry)
	}
	return report, nil
}

func inspectCmd() *cli.Command {
	var (
		path   string
		filter string
		asJSON bool
	)

	return &cli.Command{
		Name:  "inspect",
		Usage: "List the tensors of a safetensors file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "path to .safetensors file", Required: true, Destination: &path},
			&cli.StringFlag{Name: "filter", Usage: "only show tensors whose name contains this substring", Destination: &filter},
			&cli.BoolFlag{Name: "json", Usage: "print the listing as JSON", Destination: &asJSON},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			report, err := inspectFile(path)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: inspect %s: %v", path, err), 1)
			}
			if filter != "" {
				kept := report.Tensors[:0]
				for _, t := range report.Tensors {
					if strings.Contains(t.Name, filter) {
						kept = append(kept, t)
					}
				}
				report.Tensors = kept
			}
			if asJSON {
				return writeJSON(os.Stdout, report)
			}

			fmt.Printf("file:    %s (%s)\n", report.Path, humanize.Bytes(uint64(report.Size)))
			fmt.Printf("tensors: %d\n", len(report.Tensors))
			for k, v := range report.Metadata {
				fmt.Printf("meta:    %s=%s\n", k, v)
			}
			fmt.Printf("\n%-32s %-5s %-20s %14s %10s\n", "name", "dtype", "dims", "elements", "size")
			for _, t := range report.Tensors {
				fmt.Printf("%-32s %-5s %-20s %14s %10s\n",
					t.Name, t.DType, fmt.Sprint(t.Dims), humanize.Comma(int64(t.Elements)), humanize.Bytes(uint64(t.Bytes)))
			}
			return nil
		},
	}
}
