package ckpt

import (
	"fmt"
	"slices"

	"github.com/nlpodyssey/gopickle/pytorch"
	"github.com/nlpodyssey/gopickle/types"

	"github.com/latentforge/animate/tensor"
)

// torchSource holds the unpickled contents of a legacy PyTorch archive.
// Unlike safetensors there is no per-key framing, so the whole dict is
// materialized at open time.
type torchSource struct {
	tensors map[string]*tensor.Array
	keys    []string
}

func openTorch(path string) (Source, error) {
	obj, err := pytorch.Load(path)
	if err != nil {
		return nil, fmt.Errorf("unpickle %s: %w", path, err)
	}

	entries, err := dictEntries(obj)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	// Training checkpoints wrap the parameters in a "state_dict" key next to
	// bookkeeping like epoch counters. Descend into the wrapper when present.
	if wrapped, ok := entries["state_dict"]; ok {
		if inner, err := dictEntries(wrapped); err == nil {
			entries = inner
		}
	}

	src := &torchSource{tensors: make(map[string]*tensor.Array, len(entries))}
	for name, v := range entries {
		pt, ok := v.(*pytorch.Tensor)
		if !ok {
			continue // non-tensor bookkeeping entry
		}
		a, err := fromTorchTensor(pt)
		if err != nil {
			return nil, fmt.Errorf("tensor %q: %w", name, err)
		}
		src.tensors[name] = a
		src.keys = append(src.keys, name)
	}
	slices.Sort(src.keys)
	return src, nil
}

// dictEntries normalizes gopickle's two dict representations into a map with
// string keys. Non-string keys are rejected.
func dictEntries(obj any) (map[string]any, error) {
	out := make(map[string]any)
	switch d := obj.(type) {
	case *types.Dict:
		for _, k := range d.Keys() {
			name, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("non-string checkpoint key %v", k)
			}
			out[name] = d.MustGet(k)
		}
	case *types.OrderedDict:
		for k, entry := range d.Map {
			name, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("non-string checkpoint key %v", k)
			}
			out[name] = entry.Value
		}
	default:
		return nil, fmt.Errorf("checkpoint root is %T, want a dict", obj)
	}
	return out, nil
}

func fromTorchTensor(pt *pytorch.Tensor) (*tensor.Array, error) {
	n := 1
	for _, d := range pt.Size {
		n *= d
	}
	off := int(pt.StorageOffset)

	var f32s []float32
	switch st := pt.Source.(type) {
	case *pytorch.FloatStorage:
		f32s = slices.Clone(st.Data[off : off+n])
	case *pytorch.HalfStorage:
		f32s = slices.Clone(st.Data[off : off+n])
	case *pytorch.BFloat16Storage:
		f32s = slices.Clone(st.Data[off : off+n])
	case *pytorch.DoubleStorage:
		f32s = make([]float32, n)
		for i, v := range st.Data[off : off+n] {
			f32s[i] = float32(v)
		}
	default:
		return nil, fmt.Errorf("unsupported storage type %T", pt.Source)
	}

	shape := pt.Size
	if len(shape) == 0 {
		shape = []int{1}
	}
	return tensor.NewArray(f32s, shape...), nil
}

func (s *torchSource) Keys() []string { return slices.Clone(s.keys) }

func (s *torchSource) Tensor(name string) (*tensor.Array, error) {
	a, ok := s.tensors[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrTensorNotFound, name)
	}
	return a, nil
}

func (s *torchSource) Close() error { return nil }
