// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package plots draws the distribution of the values of packed samples, to compare the train and test
// partitions after normalization.
package plots

import (
	"image/color"

	"github.com/gomlx/facepatches/pkg/data/datasets"
	"github.com/gomlx/facepatches/pkg/support/xslices"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// Series is one named bundle to include in a histogram.
type Series struct {
	Name   string
	Bundle *datasets.Bundle
}

// seriesColors are used in order for each series, and repeated if there are more series.
var seriesColors = []color.Color{
	color.NRGBA{R: 112, G: 80, B: 144, A: 160},
	color.NRGBA{R: 230, G: 140, B: 30, A: 160},
	color.NRGBA{R: 40, G: 160, B: 90, A: 160},
}

// ChannelValues returns all the values of t[:, channel, :, :] of the bundle.
func ChannelValues(bundle *datasets.Bundle, channel int) (plotter.Values, error) {
	dims := bundle.Data.Shape().Dimensions
	if len(dims) != 4 || channel < 0 || channel >= dims[1] {
		return nil, errors.Wrapf(datasets.ErrInvalidArgument, "channel %d not available in samples shaped %s",
			channel, bundle.Data.Shape())
	}
	planeSize := dims[2] * dims[3]
	exampleSize := dims[1] * planeSize
	values := make([]float64, 0, dims[0]*planeSize)
	bundle.Data.ConstFlatData(func(flat []float32) {
		for ii := range dims[0] {
			start := ii*exampleSize + channel*planeSize
			values = xslices.ToFloat64(values, flat[start:start+planeSize])
		}
	})
	return values, nil
}

// Histogram plots the distribution of the values of the channel for each series, normalized to a unit
// area so partitions of different sizes can be compared.
func Histogram(title string, channel, bins int, series ...Series) (*plot.Plot, error) {
	if bins <= 0 {
		return nil, errors.Wrapf(datasets.ErrInvalidArgument, "number of bins must be positive, got %d", bins)
	}
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "value"
	p.Y.Label.Text = "density"
	for ii, s := range series {
		if s.Bundle == nil {
			continue
		}
		values, err := ChannelValues(s.Bundle, channel)
		if err != nil {
			return nil, errors.WithMessagef(err, "series %q", s.Name)
		}
		hist, err := plotter.NewHist(values, bins)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to create histogram of series %q", s.Name)
		}
		hist.Normalize(1)
		hist.FillColor = seriesColors[ii%len(seriesColors)]
		hist.LineStyle.Width = 0
		p.Add(hist)
		p.Legend.Add(s.Name, hist)
	}
	p.Legend.Top = true
	return p, nil
}

// SavePlot writes the plot as a PNG image in filePath.
func SavePlot(fs afero.Fs, filePath string, p *plot.Plot) error {
	writerTo, err := p.WriterTo(8*vg.Inch, 5*vg.Inch, "png")
	if err != nil {
		return errors.Wrap(err, "failed to render plot")
	}
	f, err := fs.Create(filePath)
	if err != nil {
		return errors.Wrapf(err, "failed to create plot file %q", filePath)
	}
	if _, err = writerTo.WriteTo(f); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "failed to write plot to %q", filePath)
	}
	return errors.Wrapf(f.Close(), "failed to close plot file %q", filePath)
}
