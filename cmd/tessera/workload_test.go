package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/samcharles93/tessera/internal/grid"
	"github.com/samcharles93/tessera/internal/kernels"
	"github.com/samcharles93/tessera/internal/pack"
	"github.com/samcharles93/tessera/internal/safetensors"
	"github.com/samcharles93/tessera/internal/tensor"
)

var small = sizes{channels: 64, tokens: 3, batches: 2, rows: 16}

func TestVerifyWorkloadsIdentical(t *testing.T) {
	ln, err := syntheticLayerNorm(small, kernels.VarianceTwoPass, 3)
	if err != nil {
		t.Fatalf("layer norm inputs: %v", err)
	}
	mm, err := syntheticMatMul(small, 3)
	if err != nil {
		t.Fatalf("matmul inputs: %v", err)
	}

	results, err := verifyWorkloads(context.Background(), grid.Config{BlockSize: 16, Seed: 5}, []workload{ln, mm})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if want := 2 * len(grid.Orders()) * 2; len(results) != want {
		t.Fatalf("got %d results, want %d", len(results), want)
	}
	for _, r := range results {
		if r.Mismatches != 0 {
			t.Fatalf("%s %s/%s: %d mismatches", r.Kernel, r.Order, r.Lanes, r.Mismatches)
		}
	}
}

func TestBitMismatches(t *testing.T) {
	if n := bitMismatches([]float32{1, 2, 3}, []float32{1, 2.0000002, 3}); n != 1 {
		t.Fatalf("got %d mismatches, want 1", n)
	}
	if n := bitMismatches([]float32{1}, []float32{1, 2}); n != 2 {
		t.Fatalf("length mismatch should count every element, got %d", n)
	}
}

func TestMatMulWorkloadMatchesReference(t *testing.T) {
	mm, err := syntheticMatMul(small, 11)
	if err != nil {
		t.Fatalf("inputs: %v", err)
	}
	out, err := mm.Launch(grid.MustNew(grid.Config{BlockSize: 8}))
	if err != nil {
		t.Fatalf("launch: %v", err)
	}
	if e := maxAbsError(out, mm.reference()); e > 1e-4 {
		t.Fatalf("max abs error %v", e)
	}
}

func TestLoadWorkloadsFromFile(t *testing.T) {
	dir := t.TempDir()
	s := sizes{channels: 8, tokens: 2, batches: 1, rows: 4}

	ln, err := syntheticLayerNorm(s, kernels.VarianceNaive, 1)
	if err != nil {
		t.Fatalf("inputs: %v", err)
	}
	lnPath := filepath.Join(dir, "ln.safetensors")
	err = safetensors.WriteFile(lnPath, []safetensors.NamedTensor{
		{Name: "x", DType: safetensors.F32, Shape: ln.x.Shape().Dims(3), Data: safetensors.EncodeF32(ln.x.Data())},
		{Name: "weight", DType: safetensors.F32, Shape: []int{s.channels}, Data: safetensors.EncodeF32(ln.weight)},
		{Name: "bias", DType: safetensors.F32, Shape: []int{s.channels}, Data: safetensors.EncodeF32(ln.bias)},
	}, nil)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	loaded, err := loadLayerNorm(lnPath, kernels.VarianceNaive)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.x.Shape() != ln.x.Shape() {
		t.Fatalf("shape: got %v want %v", loaded.x.Shape(), ln.x.Shape())
	}

	l := grid.MustNew(grid.Config{BlockSize: 4})
	want, err := ln.Launch(l)
	if err != nil {
		t.Fatalf("launch synthetic: %v", err)
	}
	got, err := loaded.Launch(l)
	if err != nil {
		t.Fatalf("launch loaded: %v", err)
	}
	if n := bitMismatches(want, got); n != 0 {
		t.Fatalf("%d mismatches between file and in-memory inputs", n)
	}

	outPath := filepath.Join(dir, "out.safetensors")
	if err := writeOutput(outPath, loaded, got, map[string]string{"kernel": loaded.Kernel()}); err != nil {
		t.Fatalf("write output: %v", err)
	}
	report, err := inspectFile(outPath)
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if len(report.Tensors) != 1 || report.Tensors[0].Name != "output" || report.Tensors[0].Shape != [4]int{8, 2, 1, 1} {
		t.Fatalf("unexpected report: %+v", report)
	}
	if report.Metadata["kernel"] != kernels.LayerNormName {
		t.Fatalf("metadata: %+v", report.Metadata)
	}

	mm, err := syntheticMatMul(s, 2)
	if err != nil {
		t.Fatalf("matmul inputs: %v", err)
	}
	codes := make([]uint8, s.rows*s.channels)
	pack.UnpackCodes(codes, mm.matrix.Codes)
	mmPath := filepath.Join(dir, "mm.safetensors")
	err = safetensors.WriteFile(mmPath, []safetensors.NamedTensor{
		{Name: "codes", DType: safetensors.U8, Shape: []int{s.rows, s.channels}, Data: codes},
		{Name: "col_mean", DType: safetensors.F32, Shape: []int{s.channels}, Data: safetensors.EncodeF32(mm.matrix.ColMean)},
		{Name: "col_range", DType: safetensors.F32, Shape: []int{s.channels}, Data: safetensors.EncodeF32(mm.matrix.ColRange)},
		{Name: "row_mean", DType: safetensors.F32, Shape: []int{s.rows}, Data: safetensors.EncodeF32(mm.matrix.RowMean)},
		{Name: "row_range", DType: safetensors.F32, Shape: []int{s.rows}, Data: safetensors.EncodeF32(mm.matrix.RowRange)},
		{Name: "input", DType: safetensors.F32, Shape: mm.input.Shape().Dims(3), Data: safetensors.EncodeF32(mm.input.Data())},
	}, nil)
	if err != nil {
		t.Fatalf("write matmul: %v", err)
	}
	loadedMM, err := loadMatMul(mmPath)
	if err != nil {
		t.Fatalf("load matmul: %v", err)
	}
	if loadedMM.matrix.Rows != s.rows || loadedMM.matrix.Cols != s.channels {
		t.Fatalf("matrix %dx%d", loadedMM.matrix.Rows, loadedMM.matrix.Cols)
	}
	want, _ = mm.Launch(l)
	got, err = loadedMM.Launch(l)
	if err != nil {
		t.Fatalf("launch loaded matmul: %v", err)
	}
	if n := bitMismatches(want, got); n != 0 {
		t.Fatalf("%d mismatches between file and in-memory matmul", n)
	}
}

func TestRowStats(t *testing.T) {
	nan := float32(0)
	nan /= nan
	out := []float32{1, 3, 1, 3, nan, 0, 0, 0}
	stats := rowStats(out, tensor.NewShape(4, 2, 1, 1), 0)
	if len(stats) != 2 {
		t.Fatalf("got %d rows", len(stats))
	}
	if !stats[0].Finite || stats[0].Mean != 2 || stats[0].Std != 1 {
		t.Fatalf("row 0: %+v", stats[0])
	}
	if stats[1].Finite || stats[1].Token != 1 {
		t.Fatalf("row 1: %+v", stats[1])
	}
	if n := countNonFinite(out); n != 1 {
		t.Fatalf("non-finite: %d", n)
	}
}
