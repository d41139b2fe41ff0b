// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shapes

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShape(t *testing.T) {
	s := Image(3, 4, 5)
	assert.Equal(t, 3, s.Rank())
	assert.Equal(t, 60, s.Size())
	assert.Equal(t, uintptr(240), s.Memory())
	assert.Equal(t, 5, s.Dim(-1))
	assert.Equal(t, []int{20, 5, 1}, s.Strides())
	assert.Equal(t, "(Float32)[3 4 5]", s.String())

	batched := s.Batch(7)
	assert.Equal(t, []int{7, 3, 4, 5}, batched.Dimensions)
	assert.Equal(t, []int{3, 4, 5}, s.Dimensions, "Batch must not change the original shape")

	assert.True(t, s.Equal(s.Clone()))
	assert.False(t, s.Equal(Image(3, 5, 4)))
	assert.False(t, s.Equal(Make(dtypes.Float64, 3, 4, 5)))
	assert.False(t, Invalid().Ok())

	require.Panics(t, func() { Make(dtypes.Float32, 1, 0) })
	require.Panics(t, func() { s.Dim(3) })
}
