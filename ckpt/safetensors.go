package ckpt

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"slices"

	"github.com/d4l3k/go-bfloat16"
	"github.com/x448/float16"

	"github.com/latentforge/animate/tensor"
)

type safetensorMetadata struct {
	Type    string  `json:"dtype"`
	Shape   []int   `json:"shape"`
	Offsets []int64 `json:"data_offsets"`
}

// safetensorSource reads tensors lazily from a safetensors container:
// an 8-byte little-endian header length, a JSON header mapping names to
// {dtype, shape, data_offsets}, then the packed data section.
type safetensorSource struct {
	f        *os.File
	dataBase int64
	headers  map[string]safetensorMetadata
	keys     []string
}

func openSafetensors(path string) (Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	var headerLen uint64
	if err := binary.Read(f, binary.LittleEndian, &headerLen); err != nil {
		f.Close()
		return nil, fmt.Errorf("safetensors header length: %w", err)
	}

	raw := make([]byte, headerLen)
	if _, err := io.ReadFull(f, raw); err != nil {
		f.Close()
		return nil, fmt.Errorf("safetensors header: %w", err)
	}

	var headers map[string]safetensorMetadata
	if err := json.Unmarshal(raw, &headers); err != nil {
		f.Close()
		return nil, fmt.Errorf("safetensors header: %w", err)
	}
	delete(headers, "__metadata__")

	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	return &safetensorSource{
		f:        f,
		dataBase: int64(8 + headerLen),
		headers:  headers,
		keys:     keys,
	}, nil
}

func (s *safetensorSource) Keys() []string { return slices.Clone(s.keys) }

func (s *safetensorSource) Tensor(name string) (*tensor.Array, error) {
	md, ok := s.headers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrTensorNotFound, name)
	}

	size := md.Offsets[1] - md.Offsets[0]
	raw := make([]byte, size)
	if _, err := s.f.ReadAt(raw, s.dataBase+md.Offsets[0]); err != nil {
		return nil, fmt.Errorf("read %q: %w", name, err)
	}

	var f32s []float32
	switch md.Type {
	case "F32":
		f32s = make([]float32, size/4)
		for i := range f32s {
			f32s[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
		}
	case "F16":
		f32s = make([]float32, size/2)
		for i := range f32s {
			f32s[i] = float16.Frombits(binary.LittleEndian.Uint16(raw[i*2:])).Float32()
		}
	case "BF16":
		f32s = bfloat16.DecodeFloat32(raw)
	default:
		return nil, fmt.Errorf("tensor %q: unsupported dtype %s", name, md.Type)
	}

	shape := md.Shape
	if len(shape) == 0 {
		shape = []int{1}
	}
	return tensor.NewArray(f32s, shape...), nil
}

func (s *safetensorSource) Close() error { return s.f.Close() }
