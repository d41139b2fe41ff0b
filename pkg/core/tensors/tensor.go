// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package tensors implements Tensor, a multidimensional float32 array held in local (host) memory,
// with its shape and its content stored as a flat (1D) row-major slice.
//
// Tensors are the output format of the dataset pipeline: images packed as `[N, C, H, W]`.
//
// Access to the data goes through ConstFlatData and MutableFlatData, which lock the tensor while
// the given function runs.
package tensors

import (
	"encoding/gob"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/facepatches/pkg/core/shapes"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
)

// Tensor represents a multidimensional float32 array, defined by its shape and its content stored
// as a flat slice.
type Tensor struct {
	// shape of the tensor, considered immutable.
	shape shapes.Shape

	// mu protects flat.
	mu   sync.Mutex
	flat []float32
}

// FromShape returns a Tensor with the given shape, with the data initialized with zeros.
//
// It panics if the shape is invalid or if its DType is not Float32.
func FromShape(shape shapes.Shape) *Tensor {
	if !shape.Ok() {
		exceptions.Panicf("tensors.FromShape(%s): invalid shape", shape)
	}
	if shape.DType != dtypes.Float32 {
		exceptions.Panicf("tensors.FromShape(%s): only %s tensors are supported", shape, dtypes.Float32)
	}
	return &Tensor{
		shape: shape.Clone(),
		flat:  make([]float32, shape.Size()),
	}
}

// FromFlatDataAndDimensions creates a tensor with the given dimensions, filled with a copy of data.
//
// It panics if len(data) doesn't match the size of the dimensions.
func FromFlatDataAndDimensions(data []float32, dimensions ...int) *Tensor {
	shape := shapes.Make(dtypes.Float32, dimensions...)
	if len(data) != shape.Size() {
		exceptions.Panicf("FromFlatDataAndDimensions: data has %d values, but shape %s requires %d",
			len(data), shape, shape.Size())
	}
	t := FromShape(shape)
	copy(t.flat, data)
	return t
}

// Shape of the tensor, includes DType.
func (t *Tensor) Shape() shapes.Shape { return t.shape }

// DType returns the DType of the tensor's shape.
func (t *Tensor) DType() dtypes.DType { return t.shape.DType }

// Rank returns the rank of the tensor's shape.
func (t *Tensor) Rank() int { return t.shape.Rank() }

// Size returns the number of elements in the tensor.
func (t *Tensor) Size() int { return t.shape.Size() }

// Ok returns whether the tensor is valid: not nil and not finalized.
func (t *Tensor) Ok() bool {
	return t != nil && t.flat != nil
}

// AssertValid panics if the tensor is nil or was finalized.
func (t *Tensor) AssertValid() {
	if t == nil {
		exceptions.Panicf("tensor is nil")
	}
	if t.flat == nil {
		exceptions.Panicf("tensor shaped %s has been finalized", t.shape)
	}
}

// Finalize releases the memory associated with the tensor. It becomes invalid afterward.
func (t *Tensor) Finalize() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.flat = nil
}

// ConstFlatData calls accessFn with the flattened data. It locks the Tensor until accessFn returns.
//
// accessFn is given the actual Tensor data (not a copy), and it should not be changed.
// See Tensor.MutableFlatData to access a mutable version of the flat data.
//
// It panics if the tensor is in an invalid state.
func (t *Tensor) ConstFlatData(accessFn func(flat []float32)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.AssertValid()
	accessFn(t.flat)
}

// MutableFlatData calls accessFn with a flat slice pointing to the Tensor data. The contents of the slice
// can be changed until accessFn returns. During this time the Tensor is locked.
//
// It panics if the tensor is in an invalid state.
func (t *Tensor) MutableFlatData(accessFn func(flat []float32)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.AssertValid()
	accessFn(t.flat)
}

// CopyFlatData returns a copy of the flat data of the Tensor.
func (t *Tensor) CopyFlatData() []float32 {
	var flatCopy []float32
	t.ConstFlatData(func(flat []float32) {
		flatCopy = make([]float32, len(flat))
		copy(flatCopy, flat)
	})
	return flatCopy
}

// Clone returns a deep copy of the tensor.
func (t *Tensor) Clone() *Tensor {
	return FromFlatDataAndDimensions(t.CopyFlatData(), t.shape.Dimensions...)
}

// LayoutStrides return the strides for each axis. This can be handy when manipulating the flat data.
func (t *Tensor) LayoutStrides() []int {
	return t.shape.Strides()
}

// InDelta checks whether Abs(t - otherTensor) <= delta for every element.
// If the shapes are different it returns false.
// NaN values are never in delta.
func (t *Tensor) InDelta(otherTensor *Tensor, delta float64) bool {
	t.AssertValid()
	otherTensor.AssertValid()
	if t == otherTensor {
		return true
	}
	if !t.shape.Equal(otherTensor.shape) {
		return false
	}
	inDelta := true
	t.ConstFlatData(func(flat0 []float32) {
		otherTensor.ConstFlatData(func(flat1 []float32) {
			for ii, v0 := range flat0 {
				if !(math.Abs(float64(v0)-float64(flat1[ii])) <= delta) {
					inDelta = false
					return
				}
			}
		})
	})
	return inDelta
}

// MaxSizeForString is the largest tensor whose values are included by String.
var MaxSizeForString = 100

// String returns the shape of the tensor, and its values if not larger than MaxSizeForString.
func (t *Tensor) String() string {
	if !t.Ok() {
		return "<invalid tensor>"
	}
	if t.Size() > MaxSizeForString {
		return fmt.Sprintf("%s: (... too large, %d values ...)", t.shape, t.Size())
	}
	var sb strings.Builder
	sb.WriteString(t.shape.String())
	sb.WriteString(": [")
	t.ConstFlatData(func(flat []float32) {
		for ii, v := range flat {
			if ii > 0 {
				sb.WriteString(" ")
			}
			_, _ = fmt.Fprintf(&sb, "%.4g", v)
		}
	})
	sb.WriteString("]")
	return sb.String()
}

// GobSerialize tensor in binary format: dimensions followed by the flat data.
func (t *Tensor) GobSerialize(encoder *gob.Encoder) (err error) {
	t.ConstFlatData(func(flat []float32) {
		err = encoder.Encode(t.shape.Dimensions)
		if err != nil {
			return
		}
		err = encoder.Encode(flat)
	})
	if err != nil {
		err = errors.Wrapf(err, "failed to serialize Tensor shaped %s", t.shape)
	}
	return
}

// GobDeserialize a Tensor serialized with Tensor.GobSerialize.
func GobDeserialize(decoder *gob.Decoder) (t *Tensor, err error) {
	var dimensions []int
	if err = decoder.Decode(&dimensions); err != nil {
		return nil, errors.Wrap(err, "failed to deserialize Tensor dimensions")
	}
	var flat []float32
	if err = decoder.Decode(&flat); err != nil {
		return nil, errors.Wrap(err, "failed to deserialize Tensor data")
	}
	err = exceptions.TryCatch[error](func() { t = FromFlatDataAndDimensions(flat, dimensions...) })
	if err != nil {
		return nil, errors.WithMessage(err, "invalid serialized Tensor")
	}
	return
}
