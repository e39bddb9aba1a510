// Package safetensors reads and writes the safetensors container: an 8-byte
// little-endian header length, a JSON header mapping tensor names to dtype,
// shape and byte offsets, then the raw tensor bytes.
package safetensors

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"slices"

	json "github.com/goccy/go-json"
	"github.com/x448/float16"
)

const metadataKey = "__metadata__"

// Data types understood by the typed readers.
const (
	F32  = "F32"
	F16  = "F16"
	BF16 = "BF16"
	U32  = "U32"
	U16  = "U16"
	U8   = "U8"
)

var (
	ErrNotFound = errors.New("tensor not found")
	ErrDType    = errors.New("unsupported dtype")
)

type TensorInfo struct {
	DType string
	Shape []int
	Start int64
	End   int64
}

// Elements is the element count of the tensor. A zero-rank shape holds one.
func (t TensorInfo) Elements() (int, error) {
	return numElements(t.Shape)
}

type File struct {
	Path      string
	DataStart int64
	Tensors   map[string]TensorInfo
	Metadata  map[string]string

	data   []byte
	mapped bool
}

type tensorHeader struct {
	DType       string  `json:"dtype"`
	Shape       []int   `json:"shape"`
	DataOffsets []int64 `json:"data_offsets"`
}

// Open maps the file into memory (or reads it where mapping is unavailable)
// and parses its header.
func Open(path string) (*File, error) {
	data, mapped, err := mapFile(path)
	if err != nil {
		return nil, err
	}
	f, err := parse(data)
	if err != nil {
		if mapped {
			_ = unmapFile(data)
		}
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	f.Path = path
	f.mapped = mapped
	return f, nil
}

// Parse reads a safetensors image already held in memory. The returned File
// aliases data.
func Parse(data []byte) (*File, error) {
	return parse(data)
}

func parse(data []byte) (*File, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("read header length: %w", io.ErrUnexpectedEOF)
	}
	headerLen := binary.LittleEndian.Uint64(data)
	if headerLen > uint64(len(data)-8) {
		return nil, fmt.Errorf("header length %d exceeds file size: %w", headerLen, io.ErrUnexpectedEOF)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data[8:8+headerLen], &raw); err != nil {
		return nil, fmt.Errorf("parse header: %w", err)
	}

	var meta map[string]string
	if msg, ok := raw[metadataKey]; ok {
		if err := json.Unmarshal(msg, &meta); err != nil {
			return nil, fmt.Errorf("parse metadata: %w", err)
		}
		delete(raw, metadataKey)
	}

	dataStart := int64(8 + headerLen)
	payload := int64(len(data)) - dataStart
	tensors := make(map[string]TensorInfo, len(raw))
	for name, msg := range raw {
		var th tensorHeader
		if err := json.Unmarshal(msg, &th); err != nil {
			return nil, fmt.Errorf("parse tensor %s: %w", name, err)
		}
		if len(th.DataOffsets) != 2 {
			return nil, fmt.Errorf("tensor %s: invalid data_offsets", name)
		}
		start, end := th.DataOffsets[0], th.DataOffsets[1]
		if start < 0 || end < start || end > payload {
			return nil, fmt.Errorf("tensor %s: invalid offsets [%d, %d)", name, start, end)
		}
		tensors[name] = TensorInfo{
			DType: th.DType,
			Shape: th.Shape,
			Start: start,
			End:   end,
		}
	}
	return &File{
		DataStart: dataStart,
		Tensors:   tensors,
		Metadata:  meta,
		data:      data,
	}, nil
}

// Close releases the mapping. Slices returned by ReadTensor are invalid
// afterwards.
func (f *File) Close() error {
	if f.data == nil {
		return nil
	}
	data := f.data
	f.data = nil
	if f.mapped {
		return unmapFile(data)
	}
	return nil
}

// Names lists the tensors in the file, sorted.
func (f *File) Names() []string {
	names := make([]string, 0, len(f.Tensors))
	for name := range f.Tensors {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (f *File) Tensor(name string) (TensorInfo, bool) {
	t, ok := f.Tensors[name]
	return t, ok
}

// ReadTensor returns the raw bytes of a tensor. The slice aliases the file
// image and must not be modified.
func (f *File) ReadTensor(name string) ([]byte, TensorInfo, error) {
	t, ok := f.Tensors[name]
	if !ok {
		return nil, TensorInfo{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if f.data == nil {
		return nil, TensorInfo{}, fmt.Errorf("tensor %s: file closed", name)
	}
	return f.data[f.DataStart+t.Start : f.DataStart+t.End], t, nil
}

// ReadTensorF32 decodes an F32, F16 or BF16 tensor into float32.
func (f *File) ReadTensorF32(name string) ([]float32, TensorInfo, error) {
	raw, info, n, err := f.readSized(name)
	if err != nil {
		return nil, TensorInfo{}, err
	}
	switch info.DType {
	case F32:
		if len(raw) != n*4 {
			return nil, TensorInfo{}, fmt.Errorf("tensor %s: invalid f32 data size", name)
		}
		out := make([]float32, n)
		for i := range n {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
		}
		return out, info, nil
	case BF16:
		if len(raw) != n*2 {
			return nil, TensorInfo{}, fmt.Errorf("tensor %s: invalid bf16 data size", name)
		}
		out := make([]float32, n)
		for i := range n {
			out[i] = bf16ToF32(binary.LittleEndian.Uint16(raw[i*2:]))
		}
		return out, info, nil
	case F16:
		if len(raw) != n*2 {
			return nil, TensorInfo{}, fmt.Errorf("tensor %s: invalid f16 data size", name)
		}
		out := make([]float32, n)
		for i := range n {
			out[i] = float16.Frombits(binary.LittleEndian.Uint16(raw[i*2:])).Float32()
		}
		return out, info, nil
	default:
		return nil, TensorInfo{}, fmt.Errorf("tensor %s: %w %s", name, ErrDType, info.DType)
	}
}

// ReadTensorU32 decodes a U32 tensor.
func (f *File) ReadTensorU32(name string) ([]uint32, TensorInfo, error) {
	raw, info, n, err := f.readTyped(name, U32, 4)
	if err != nil {
		return nil, TensorInfo{}, err
	}
	out := make([]uint32, n)
	for i := range n {
		out[i] = binary.LittleEndian.Uint32(raw[i*4:])
	}
	return out, info, nil
}

// ReadTensorU16 decodes a U16 tensor. F16 and BF16 tensors are returned as
// their raw bit patterns.
func (f *File) ReadTensorU16(name string) ([]uint16, TensorInfo, error) {
	raw, info, n, err := f.readSized(name)
	if err != nil {
		return nil, TensorInfo{}, err
	}
	switch info.DType {
	case U16, F16, BF16:
	default:
		return nil, TensorInfo{}, fmt.Errorf("tensor %s: %w %s, want %s", name, ErrDType, info.DType, U16)
	}
	if len(raw) != n*2 {
		return nil, TensorInfo{}, fmt.Errorf("tensor %s: invalid 16-bit data size", name)
	}
	out := make([]uint16, n)
	for i := range n {
		out[i] = binary.LittleEndian.Uint16(raw[i*2:])
	}
	return out, info, nil
}

// ReadTensorU8 copies a U8 tensor.
func (f *File) ReadTensorU8(name string) ([]uint8, TensorInfo, error) {
	raw, info, _, err := f.readTyped(name, U8, 1)
	if err != nil {
		return nil, TensorInfo{}, err
	}
	return slices.Clone(raw), info, nil
}

func (f *File) readSized(name string) ([]byte, TensorInfo, int, error) {
	raw, info, err := f.ReadTensor(name)
	if err != nil {
		return nil, TensorInfo{}, 0, err
	}
	n, err := numElements(info.Shape)
	if err != nil {
		return nil, TensorInfo{}, 0, fmt.Errorf("tensor %s: %w", name, err)
	}
	return raw, info, n, nil
}

func (f *File) readTyped(name, dtype string, width int) ([]byte, TensorInfo, int, error) {
	raw, info, n, err := f.readSized(name)
	if err != nil {
		return nil, TensorInfo{}, 0, err
	}
	if info.DType != dtype {
		return nil, TensorInfo{}, 0, fmt.Errorf("tensor %s: %w %s, want %s", name, ErrDType, info.DType, dtype)
	}
	if len(raw) != n*width {
		return nil, TensorInfo{}, 0, fmt.Errorf("tensor %s: invalid %s data size", name, dtype)
	}
	return raw, info, n, nil
}

func numElements(shape []int) (int, error) {
	n := 1
	for _, d := range shape {
		if d < 0 {
			return 0, fmt.Errorf("invalid dim %d", d)
		}
		if d != 0 && n > (int(^uint(0)>>1))/d {
			return 0, fmt.Errorf("tensor too large")
		}
		n *= d
	}
	return n, nil
}

func bf16ToF32(u uint16) float32 {
	return math.Float32frombits(uint32(u) << 16)
}
