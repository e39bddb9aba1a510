package safetensors

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	json "github.com/goccy/go-json"
)

// writeRaw creates a safetensors file from a hand-built header and payload.
func writeRaw(t *testing.T, path string, header map[string]any, data []byte) {
	t.Helper()
	headerBytes, err := json.Marshal(header)
	if err != nil {
		t.Fatalf("marshal header: %v", err)
	}
	var buf bytes.Buffer
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(headerBytes)))
	buf.Write(lenBuf[:])
	buf.Write(headerBytes)
	buf.Write(data)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
}

func entry(dtype string, shape []int, start, end int64) map[string]any {
	return map[string]any{
		"dtype":        dtype,
		"shape":        shape,
		"data_offsets": []int64{start, end},
	}
}

func openT(t *testing.T, path string) *File {
	t.Helper()
	f, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func TestOpenValidFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "test.safetensors")
	writeRaw(t, path, map[string]any{"weight": entry(F32, []int{2, 3}, 0, 24)}, make([]byte, 24))

	f := openT(t, path)
	if f.Path != path {
		t.Fatalf("expected path %q, got %q", path, f.Path)
	}
	info, ok := f.Tensor("weight")
	if !ok {
		t.Fatal("tensor 'weight' not found")
	}
	if info.DType != F32 {
		t.Fatalf("expected dtype F32, got %q", info.DType)
	}
	if len(info.Shape) != 2 || info.Shape[0] != 2 || info.Shape[1] != 3 {
		t.Fatalf("unexpected shape: %v", info.Shape)
	}
}

func TestOpenErrors(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	if _, err := Open(filepath.Join(dir, "missing.safetensors")); err == nil {
		t.Fatal("expected error for nonexistent file")
	}

	short := filepath.Join(dir, "short.safetensors")
	if err := os.WriteFile(short, []byte{0, 0, 0, 0}, 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if _, err := Open(short); err == nil {
		t.Fatal("expected error for truncated file")
	}

	invalid := filepath.Join(dir, "invalid.safetensors")
	var raw [8]byte
	binary.LittleEndian.PutUint64(raw[:], 12)
	if err := os.WriteFile(invalid, append(raw[:], "not valid js"...), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if _, err := Open(invalid); err == nil {
		t.Fatal("expected error for invalid JSON header")
	}

	cases := map[string]map[string]any{
		"one_offset": {"bad": map[string]any{"dtype": F32, "shape": []int{1}, "data_offsets": []int64{0}}},
		"inverted":   {"bad": entry(F32, []int{2}, 8, 0)},
		"past_end":   {"bad": entry(F32, []int{4}, 0, 16)},
	}
	for name, header := range cases {
		path := filepath.Join(dir, name+".safetensors")
		writeRaw(t, path, header, make([]byte, 8))
		if _, err := Open(path); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestMetadataSeparated(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "metadata.safetensors")
	writeRaw(t, path, map[string]any{
		"__metadata__": map[string]string{"format": "pt"},
		"tensor1":      entry(F32, []int{4}, 0, 16),
	}, make([]byte, 16))

	f := openT(t, path)
	if len(f.Tensors) != 1 {
		t.Fatalf("expected 1 tensor (metadata should be excluded), got %d", len(f.Tensors))
	}
	if f.Metadata["format"] != "pt" {
		t.Fatalf("metadata: %v", f.Metadata)
	}
}

func TestTensorNotFound(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "test.safetensors")
	writeRaw(t, path, map[string]any{"a": entry(F32, []int{1}, 0, 4)}, make([]byte, 4))

	f := openT(t, path)
	if _, ok := f.Tensor("nonexistent"); ok {
		t.Fatal("expected tensor not found")
	}
	if _, _, err := f.ReadTensor("nonexistent"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestReadTensorF32Conversions(t *testing.T) {
	t.Parallel()
	data := make([]byte, 0, 22)
	for _, v := range []float32{1, 2, 3, 4} {
		data = binary.LittleEndian.AppendUint32(data, math.Float32bits(v))
	}
	data = binary.LittleEndian.AppendUint16(data, 0x3F80) // bf16 1.0
	data = binary.LittleEndian.AppendUint16(data, 0x4000) // bf16 2.0
	data = binary.LittleEndian.AppendUint16(data, 0x3C00) // f16 1.0

	path := filepath.Join(t.TempDir(), "mixed.safetensors")
	writeRaw(t, path, map[string]any{
		"f32":  entry(F32, []int{4}, 0, 16),
		"bf16": entry(BF16, []int{2}, 16, 20),
		"f16":  entry(F16, []int{1}, 20, 22),
	}, data)
	f := openT(t, path)

	cases := map[string][]float32{
		"f32":  {1, 2, 3, 4},
		"bf16": {1, 2},
		"f16":  {1},
	}
	for name, want := range cases {
		got, _, err := f.ReadTensorF32(name)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if len(got) != len(want) {
			t.Fatalf("%s: got %d elements, want %d", name, len(got), len(want))
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("%s[%d]: got %v want %v", name, i, got[i], want[i])
			}
		}
	}
}

func TestReadTensorDTypeAndSize(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "bad.safetensors")
	writeRaw(t, path, map[string]any{
		"i32":   entry("I32", []int{2}, 0, 8),
		"short": entry(F32, []int{4}, 0, 8),
	}, make([]byte, 8))
	f := openT(t, path)

	if _, _, err := f.ReadTensorF32("i32"); !errors.Is(err, ErrDType) {
		t.Fatalf("expected ErrDType, got %v", err)
	}
	if _, _, err := f.ReadTensorU32("i32"); !errors.Is(err, ErrDType) {
		t.Fatalf("expected ErrDType, got %v", err)
	}
	if _, _, err := f.ReadTensorF32("short"); err == nil {
		t.Fatal("expected error for size mismatch")
	}
}

func TestWriteRoundTrip(t *testing.T) {
	t.Parallel()
	tensors := []NamedTensor{
		{Name: "x", DType: F32, Shape: []int{2, 4}, Data: EncodeF32([]float32{1, 2, 3, 4, 5, 6, 7, 8})},
		{Name: "weight", DType: U32, Shape: []int{2}, Data: EncodeU32([]uint32{0xdeadbeef, 7})},
		{Name: "half", DType: U16, Shape: []int{3}, Data: EncodeU16([]uint16{1, 2, 3})},
		{Name: "codes", DType: U8, Shape: []int{1, 3}, Data: []byte{0, 128, 255}},
	}
	path := filepath.Join(t.TempDir(), "rt.safetensors")
	if err := WriteFile(path, tensors, map[string]string{"producer": "tessera"}); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	f := openT(t, path)
	if f.DataStart%8 != 0 {
		t.Fatalf("data section at %d is not 8-byte aligned", f.DataStart)
	}
	if got := f.Names(); len(got) != 4 || got[0] != "codes" || got[3] != "x" {
		t.Fatalf("names: %v", got)
	}
	if f.Metadata["producer"] != "tessera" {
		t.Fatalf("metadata: %v", f.Metadata)
	}

	x, info, err := f.ReadTensorF32("x")
	if err != nil || len(x) != 8 || x[7] != 8 || info.Shape[1] != 4 {
		t.Fatalf("x: %v %v %v", x, info, err)
	}
	w, _, err := f.ReadTensorU32("weight")
	if err != nil || w[0] != 0xdeadbeef || w[1] != 7 {
		t.Fatalf("weight: %v %v", w, err)
	}
	h, _, err := f.ReadTensorU16("half")
	if err != nil || h[2] != 3 {
		t.Fatalf("half: %v %v", h, err)
	}
	c, _, err := f.ReadTensorU8("codes")
	if err != nil || !bytes.Equal(c, []byte{0, 128, 255}) {
		t.Fatalf("codes: %v %v", c, err)
	}
}

func TestWriteRejectsBadInput(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	bad := [][]NamedTensor{
		{{Name: "a", DType: F32, Shape: []int{2}, Data: make([]byte, 4)}},
		{{Name: "a", DType: "Q4", Shape: []int{1}, Data: make([]byte, 1)}},
		{{Name: "a", DType: U8, Shape: []int{1}, Data: []byte{1}}, {Name: "a", DType: U8, Shape: []int{1}, Data: []byte{1}}},
		{{Name: "__metadata__", DType: U8, Shape: []int{1}, Data: []byte{1}}},
	}
	for i, tensors := range bad {
		if err := Write(&buf, tensors, nil); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
}

func TestParseInMemory(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	if err := Write(&buf, []NamedTensor{{Name: "s", DType: F32, Data: EncodeF32([]float32{42})}}, nil); err != nil {
		t.Fatalf("Write: %v", err)
	}
	f, err := Parse(buf.Bytes())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	// A zero-rank tensor holds one element.
	v, _, err := f.ReadTensorF32("s")
	if err != nil || len(v) != 1 || v[0] != 42 {
		t.Fatalf("scalar: %v %v", v, err)
	}
}

func TestNumElements(t *testing.T) {
	t.Parallel()

	tests := []struct {
		shape    []int
		expected int
		wantErr  bool
	}{
		{[]int{2, 3}, 6, false},
		{[]int{1}, 1, false},
		{[]int{4, 5, 6}, 120, false},
		{[]int{}, 1, false},
		{[]int{0, 3}, 0, false},
		{[]int{-1}, 0, true},
		{[]int{2, -1}, 0, true},
	}

	for _, tc := range tests {
		n, err := numElements(tc.shape)
		if tc.wantErr {
			if err == nil {
				t.Errorf("numElements(%v): expected error", tc.shape)
			}
			continue
		}
		if err != nil {
			t.Errorf("numElements(%v): unexpected error: %v", tc.shape, err)
			continue
		}
		if n != tc.expected {
			t.Errorf("numElements(%v): expected %d, got %d", tc.shape, tc.expected, n)
		}
	}
}

func TestBf16ToF32(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    uint16
		expected float32
	}{
		{0x3F80, 1.0},
		{0x4000, 2.0},
		{0xBF80, -1.0},
		{0x0000, 0.0},
		{0x4040, 3.0},
	}

	for _, tc := range tests {
		result := bf16ToF32(tc.input)
		if result != tc.expected {
			t.Errorf("bf16ToF32(0x%04X): expected %f, got %f", tc.input, tc.expected, result)
		}
	}
}
