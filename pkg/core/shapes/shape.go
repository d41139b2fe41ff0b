// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package shapes defines Shape, the dtype and dimensions of image samples and of the packed tensors.
//
// Samples are shaped `[C, H, W]` (channels, height, width) and packed tensors `[N, C, H, W]`, with N the
// number of examples.
//
// ## Glossary
//
//   - Rank: number of axes (dimensions) of a shape.
//   - Axis: the index of a dimension. Axis 0 of a packed tensor is the example axis, axis 1 the channel axis.
//   - Dimension: the size of a shape in one of its axes.
//   - DType: the data type of the unit element, enumeration defined in github.com/gomlx/gopjrt/dtypes.
package shapes

import (
	"fmt"
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
)

// Shape represents the shape of a sample or of a tensor: its DType and the dimension of each axis.
//
// Use Make to create a new shape.
type Shape struct {
	DType      dtypes.DType
	Dimensions []int
}

// Make returns a Shape structure filled with the values given.
//
// It panics if any of the dimensions is <= 0.
func Make(dtype dtypes.DType, dimensions ...int) Shape {
	s := Shape{Dimensions: slices.Clone(dimensions), DType: dtype}
	for _, dim := range dimensions {
		if dim <= 0 {
			exceptions.Panicf("shapes.Make(%s): cannot create a shape with an axis with dimension <= 0", s)
		}
	}
	return s
}

// Image returns the float32 shape `[channels, height, width]` of one image sample.
func Image(channels, height, width int) Shape {
	return Make(dtypes.Float32, channels, height, width)
}

// Invalid returns an invalid shape.
//
// Invalid().Ok() == false.
func Invalid() Shape {
	return Shape{DType: dtypes.InvalidDType}
}

// Ok returns whether this is a valid Shape. A "zero" shape, that is just instantiating it with Shape{} will be invalid.
func (s Shape) Ok() bool { return s.DType != dtypes.InvalidDType }

// Rank of the shape, that is, the number of dimensions.
func (s Shape) Rank() int { return len(s.Dimensions) }

// Dim returns the dimension of the given axis. axis can take negative numbers, in which
// case it counts as starting from the end -- so axis=-1 refers to the last axis.
// Like with a slice indexing, it panics for an out-of-bound axis.
func (s Shape) Dim(axis int) int {
	adjustedAxis := axis
	if adjustedAxis < 0 {
		adjustedAxis += s.Rank()
	}
	if adjustedAxis < 0 || adjustedAxis >= s.Rank() {
		exceptions.Panicf("Shape.Dim(%d) out-of-bounds for rank %d (shape=%s)", axis, s.Rank(), s)
	}
	return s.Dimensions[adjustedAxis]
}

// String implements stringer, pretty-prints the shape.
func (s Shape) String() string {
	if s.Rank() == 0 {
		return fmt.Sprintf("(%s)", s.DType)
	}
	return fmt.Sprintf("(%s)%v", s.DType, s.Dimensions)
}

// Size returns the number of elements of DType are needed for this shape. It's the product of all dimensions.
func (s Shape) Size() (size int) {
	size = 1
	for _, d := range s.Dimensions {
		size *= d
	}
	return
}

// Memory returns the memory used to store an array of the given shape, the same as the size in bytes.
func (s Shape) Memory() uintptr {
	return s.DType.Memory() * uintptr(s.Size())
}

// Equal compares two shapes for equality: dtype and dimensions are compared.
func (s Shape) Equal(s2 Shape) bool {
	if s.DType != s2.DType {
		return false
	}
	return slices.Equal(s.Dimensions, s2.Dimensions)
}

// Clone returns a new deep copy of the shape.
func (s Shape) Clone() (s2 Shape) {
	s2.DType = s.DType
	s2.Dimensions = slices.Clone(s.Dimensions)
	return
}

// Strides returns the number of elements to skip to move one position in each axis, for a
// row-major (last axis contiguous) layout.
func (s Shape) Strides() (strides []int) {
	rank := s.Rank()
	if rank == 0 {
		return
	}
	strides = make([]int, rank)
	currentStride := 1
	for axis := rank - 1; axis >= 0; axis-- {
		strides[axis] = currentStride
		currentStride *= s.Dimensions[axis]
	}
	return
}

// Batch returns the shape with a leading axis of dimension n prepended: a `[C, H, W]` sample shape
// becomes the `[n, C, H, W]` shape of the packed tensor.
func (s Shape) Batch(n int) Shape {
	return Make(s.DType, append([]int{n}, s.Dimensions...)...)
}
