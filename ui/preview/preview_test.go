// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package preview

import (
	"image"
	"image/png"
	"testing"

	"github.com/gomlx/facepatches/pkg/core/tensors"
	"github.com/gomlx/facepatches/pkg/data/datasets"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rampBundle creates n samples shaped [2, 2, 3], where channel 0 of sample i holds values i*6 .. i*6+5 and
// channel 1 is constant.
func rampBundle(n int) *datasets.Bundle {
	data := make([]float32, n*2*6)
	for ii := range n {
		for jj := range 6 {
			data[ii*12+jj] = float32(ii*6 + jj)
			data[ii*12+6+jj] = 3
		}
	}
	return &datasets.Bundle{
		Data:   tensors.FromFlatDataAndDimensions(data, n, 2, 2, 3),
		Labels: make([]datasets.Label, n),
		Size:   n,
	}
}

func TestGrid(t *testing.T) {
	bundle := rampBundle(5)
	img := must.M1(Grid(bundle, 0, 4, 3, 2))
	// 3 columns of 3*2+1 pixels plus border, 2 rows of 2*2+1 pixels plus border.
	assert.Equal(t, image.Rect(0, 0, 22, 11), img.Bounds())

	// First pixel of the first sample is the minimum, last pixel of the 4th sample the maximum.
	r, _, _, _ := img.At(1, 1).RGBA()
	assert.Equal(t, uint32(0), r)
	r, _, _, _ = img.At(6, 9).RGBA()
	assert.Equal(t, uint32(0xFFFF), r)

	// count <= 0 previews all, constant channels don't fail.
	img = must.M1(Grid(bundle, 1, 0, 5, 1))
	assert.Equal(t, image.Rect(0, 0, 21, 4), img.Bounds())

	for _, args := range [][4]int{{2, 1, 1, 1}, {0, 1, 0, 1}, {0, 1, 1, 0}} {
		_, err := Grid(bundle, args[0], args[1], args[2], args[3])
		require.Error(t, err)
		assert.True(t, errors.Is(err, datasets.ErrInvalidArgument))
	}
	_, err := Grid(nil, 0, 1, 1, 1)
	assert.True(t, errors.Is(err, datasets.ErrInvalidArgument))
}

func TestSaveGrid(t *testing.T) {
	fs := afero.NewMemMapFs()
	img := must.M1(Grid(rampBundle(2), 0, 2, 2, 3))
	require.NoError(t, SaveGrid(fs, "/preview.png", img))
	f := must.M1(fs.Open("/preview.png"))
	defer func() { _ = f.Close() }()
	decoded := must.M1(png.Decode(f))
	assert.Equal(t, img.Bounds(), decoded.Bounds())
}
