// Package tensor provides a dense float32 n-dimensional array used for
// latents and conditioning frames. Layout is row-major; video batches use
// NCHW or NCTHW. Operations are CPU-only and allocate their results.
package tensor

import (
	"fmt"
	"slices"
)

// Array is a dense float32 tensor.
type Array struct {
	data  []float32
	shape []int
}

// New returns a zero-filled array with the given shape.
func New(shape ...int) *Array {
	return &Array{data: make([]float32, numel(shape)), shape: slices.Clone(shape)}
}

// NewArray wraps data in an array with the given shape. The slice is not
// copied; the caller gives up ownership.
func NewArray(data []float32, shape ...int) *Array {
	if len(data) != numel(shape) {
		panic(fmt.Sprintf("tensor: %d values for shape %v", len(data), shape))
	}
	return &Array{data: data, shape: slices.Clone(shape)}
}

// Zeros returns a zero-filled array, same as New.
func Zeros(shape ...int) *Array { return New(shape...) }

// Full returns an array filled with value.
func Full(value float32, shape ...int) *Array {
	a := New(shape...)
	for i := range a.data {
		a.data[i] = value
	}
	return a
}

// Ones returns an array filled with 1.
func Ones(shape ...int) *Array { return Full(1, shape...) }

// ZerosLike returns a zero-filled array with a's shape.
func ZerosLike(a *Array) *Array { return New(a.shape...) }

func numel(shape []int) int {
	n := 1
	for _, d := range shape {
		if d < 0 {
			panic(fmt.Sprintf("tensor: negative dimension in shape %v", shape))
		}
		n *= d
	}
	return n
}

// Shape returns the dimensions. The slice is shared; callers must not modify it.
func (a *Array) Shape() []int { return a.shape }

// Dim returns the size of dimension i. Negative i counts from the end.
func (a *Array) Dim(i int) int {
	if i < 0 {
		i += len(a.shape)
	}
	return a.shape[i]
}

// NDim returns the number of dimensions.
func (a *Array) NDim() int { return len(a.shape) }

// Len returns the total number of elements.
func (a *Array) Len() int { return len(a.data) }

// Data returns the backing slice.
func (a *Array) Data() []float32 { return a.data }

// Clone returns a deep copy.
func (a *Array) Clone() *Array {
	return &Array{data: slices.Clone(a.data), shape: slices.Clone(a.shape)}
}

// Reshape changes the shape in place. The element count must match.
func (a *Array) Reshape(shape ...int) *Array {
	if numel(shape) != len(a.data) {
		panic(fmt.Sprintf("tensor: cannot reshape %v to %v", a.shape, shape))
	}
	a.shape = slices.Clone(shape)
	return a
}

// SameShape reports whether a and b have identical shapes.
func SameShape(a, b *Array) bool { return slices.Equal(a.shape, b.shape) }

// At returns the element at the given 4D index of an NCHW array.
func (a *Array) At(n, c, h, w int) float32 {
	return a.data[a.offset4(n, c, h, w)]
}

// Set assigns the element at the given 4D index of an NCHW array.
func (a *Array) Set(v float32, n, c, h, w int) {
	a.data[a.offset4(n, c, h, w)] = v
}

func (a *Array) offset4(n, c, h, w int) int {
	if len(a.shape) != 4 {
		panic(fmt.Sprintf("tensor: 4D index into %v", a.shape))
	}
	return ((n*a.shape[1]+c)*a.shape[2]+h)*a.shape[3] + w
}

// Frame returns the i-th leading-dimension slice of a as a view with the
// leading dimension dropped, e.g. frame i of a (B,C,H,W) batch as (C,H,W).
// The view shares backing storage with a.
func (a *Array) Frame(i int) *Array {
	if len(a.shape) == 0 {
		panic("tensor: Frame of scalar")
	}
	stride := len(a.data) / a.shape[0]
	return &Array{
		data:  a.data[i*stride : (i+1)*stride],
		shape: slices.Clone(a.shape[1:]),
	}
}

// Unsqueeze returns a view of a with a leading dimension of 1.
func (a *Array) Unsqueeze() *Array {
	return &Array{data: a.data, shape: append([]int{1}, a.shape...)}
}
