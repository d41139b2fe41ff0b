// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package preview renders packed samples as images, to eyeball what was acquired and how it was normalized.
package preview

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"github.com/gomlx/facepatches/pkg/data/datasets"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// Grid renders one channel of the first count samples of the bundle as a grayscale grid of images, with
// the given number of columns and with each pixel enlarged scale times.
//
// Values are scaled linearly from the minimum (black) to the maximum (white) of the samples displayed,
// so normalized and raw bundles can be previewed the same way.
func Grid(bundle *datasets.Bundle, channel, count, columns, scale int) (image.Image, error) {
	if bundle == nil || bundle.Size == 0 {
		return nil, errors.Wrap(datasets.ErrInvalidArgument, "no samples to preview")
	}
	dims := bundle.Data.Shape().Dimensions
	numChannels, height, width := dims[1], dims[2], dims[3]
	if channel < 0 || channel >= numChannels {
		return nil, errors.Wrapf(datasets.ErrInvalidArgument, "channel %d out of range for samples with %d channels", channel, numChannels)
	}
	if columns <= 0 || scale <= 0 {
		return nil, errors.Wrapf(datasets.ErrInvalidArgument, "columns (%d) and scale (%d) must be positive", columns, scale)
	}
	if count <= 0 || count > bundle.Size {
		count = bundle.Size
	}
	columns = min(columns, count)
	rows := (count + columns - 1) / columns
	const border = 1
	cellWidth, cellHeight := width*scale+border, height*scale+border
	grid := imaging.New(columns*cellWidth+border, rows*cellHeight+border, color.NRGBA{R: 64, G: 0, B: 64, A: 255})

	planeSize := height * width
	exampleSize := numChannels * planeSize
	bundle.Data.ConstFlatData(func(flat []float32) {
		low, high := math.Inf(1), math.Inf(-1)
		for ii := range count {
			start := ii*exampleSize + channel*planeSize
			for _, v := range flat[start : start+planeSize] {
				low = math.Min(low, float64(v))
				high = math.Max(high, float64(v))
			}
		}
		valueRange := high - low
		if valueRange == 0 || math.IsNaN(valueRange) || math.IsInf(valueRange, 0) {
			valueRange = 1
		}
		for ii := range count {
			start := ii*exampleSize + channel*planeSize
			plane := flat[start : start+planeSize]
			cell := image.NewGray(image.Rect(0, 0, width, height))
			for pos, v := range plane {
				level := (float64(v) - low) / valueRange
				cell.Pix[pos] = uint8(math.Round(255 * math.Max(0, math.Min(1, level))))
			}
			scaled := imaging.Resize(cell, width*scale, height*scale, imaging.NearestNeighbor)
			row, col := ii/columns, ii%columns
			grid = imaging.Paste(grid, scaled, image.Pt(border+col*cellWidth, border+row*cellHeight))
		}
	})
	return grid, nil
}

// SaveGrid writes the image as a PNG file in filePath.
func SaveGrid(fs afero.Fs, filePath string, img image.Image) error {
	f, err := fs.Create(filePath)
	if err != nil {
		return errors.Wrapf(err, "failed to create preview file %q", filePath)
	}
	if err = imaging.Encode(f, img, imaging.PNG); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "failed to encode preview into %q", filePath)
	}
	return errors.Wrapf(f.Close(), "failed to close preview file %q", filePath)
}
