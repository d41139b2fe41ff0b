// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package tensors

import (
	"bytes"
	"encoding/gob"
	"math"
	"testing"

	"github.com/gomlx/facepatches/pkg/core/shapes"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromShape(t *testing.T) {
	tensor := FromShape(shapes.Make(dtypes.Float32, 2, 1, 2, 3))
	assert.Equal(t, 12, tensor.Size())
	assert.Equal(t, 4, tensor.Rank())
	assert.Equal(t, []int{6, 6, 3, 1}, tensor.LayoutStrides())
	tensor.ConstFlatData(func(flat []float32) {
		for _, v := range flat {
			assert.Zero(t, v)
		}
	})
	require.Panics(t, func() { FromShape(shapes.Make(dtypes.Float64, 2)) })
	require.Panics(t, func() { FromShape(shapes.Invalid()) })
}

func TestCloneDoesNotAlias(t *testing.T) {
	original := FromFlatDataAndDimensions([]float32{1, 2, 3, 4}, 1, 1, 2, 2)
	clone := original.Clone()
	clone.MutableFlatData(func(flat []float32) { flat[0] = 100 })
	assert.Equal(t, []float32{1, 2, 3, 4}, original.CopyFlatData())
	assert.Equal(t, []float32{100, 2, 3, 4}, clone.CopyFlatData())
	assert.False(t, original.InDelta(clone, 1))
	assert.True(t, original.InDelta(original.Clone(), 0))
}

func TestInDelta(t *testing.T) {
	a := FromFlatDataAndDimensions([]float32{1, 2}, 2)
	b := FromFlatDataAndDimensions([]float32{1.05, 1.95}, 2)
	assert.True(t, a.InDelta(b, 0.1))
	assert.False(t, a.InDelta(b, 0.01))
	assert.False(t, a.InDelta(FromFlatDataAndDimensions([]float32{1, 2}, 1, 2), 1), "different shapes")
	nan := FromFlatDataAndDimensions([]float32{float32(math.NaN()), 2}, 2)
	assert.False(t, nan.InDelta(nan.Clone(), 1))
}

func TestGobSerialize(t *testing.T) {
	tensor := FromFlatDataAndDimensions([]float32{1, -2, 3.5, 0, 7, 8}, 1, 2, 3)
	var buf bytes.Buffer
	require.NoError(t, tensor.GobSerialize(gob.NewEncoder(&buf)))
	loaded, err := GobDeserialize(gob.NewDecoder(&buf))
	require.NoError(t, err)
	assert.True(t, tensor.Shape().Equal(loaded.Shape()))
	assert.True(t, tensor.InDelta(loaded, 0))
}

func TestFinalize(t *testing.T) {
	tensor := FromFlatDataAndDimensions([]float32{1}, 1)
	tensor.Finalize()
	assert.False(t, tensor.Ok())
	assert.Equal(t, "<invalid tensor>", tensor.String())
	require.Panics(t, func() { tensor.ConstFlatData(func([]float32) {}) })
}
