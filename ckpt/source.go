// Package ckpt reads serialized checkpoint dictionaries. Two container
// formats are supported: safetensors, read lazily per key, and legacy
// PyTorch pickle archives, unpickled in one pass. Both present the same
// Source interface keyed by dotted parameter names.
package ckpt

import (
	"errors"
	"fmt"
	"strings"

	"github.com/latentforge/animate/tensor"
)

var (
	// ErrUnknownFormat is returned for paths with an unrecognized suffix.
	ErrUnknownFormat = errors.New("unknown checkpoint format")
	// ErrTensorNotFound is returned when a source has no tensor by that name.
	ErrTensorNotFound = errors.New("tensor not found")
)

// Source is a readable checkpoint container.
type Source interface {
	// Keys returns all tensor names, sorted.
	Keys() []string
	// Tensor reads the named tensor as float32.
	Tensor(name string) (*tensor.Array, error)
	Close() error
}

// Open opens a checkpoint, dispatching on the file suffix.
func Open(path string) (Source, error) {
	switch {
	case strings.HasSuffix(path, ".safetensors"):
		return openSafetensors(path)
	case strings.HasSuffix(path, ".ckpt"), strings.HasSuffix(path, ".pt"), strings.HasSuffix(path, ".pth"):
		return openTorch(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, path)
	}
}
