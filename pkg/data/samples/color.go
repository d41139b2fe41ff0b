// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package samples

import (
	"image"
	"slices"
	"strings"

	"github.com/gomlx/facepatches/pkg/core/shapes"
	"github.com/pkg/errors"
)

// ColorModel defines how decoded images are converted to sample channels.
type ColorModel int

const (
	// Luminance converts images to one channel "y".
	Luminance ColorModel = iota

	// YUV converts images to the three channels "y", "u" and "v".
	YUV

	// RGB keeps the three channels "r", "g" and "b".
	RGB
)

var colorModelChannels = map[ColorModel][]string{
	Luminance: {"y"},
	YUV:       {"y", "u", "v"},
	RGB:       {"r", "g", "b"},
}

// Channels returns the ordered channel names produced by the color model.
func (m ColorModel) Channels() []string {
	return slices.Clone(colorModelChannels[m])
}

// String implements fmt.Stringer.
func (m ColorModel) String() string {
	return strings.Join(colorModelChannels[m], "")
}

// ColorModelForChannels returns the color model that produces exactly the given ordered channel names.
// E.g. `["y"]` for luminance-only and `["y", "u", "v"]` for full color.
func ColorModelForChannels(channels []string) (ColorModel, error) {
	for _, m := range []ColorModel{Luminance, YUV, RGB} {
		if slices.Equal(colorModelChannels[m], channels) {
			return m, nil
		}
	}
	return 0, errors.Errorf("no color model produces channels %q: use [y], [y u v] or [r g b]", channels)
}

// FromImage converts the image to a `[C, H, W]` RawSample using the color model. Values are in [0, 1]
// for "y", "r", "g" and "b", while "u" and "v" are centered around 0.
func FromImage(img image.Image, model ColorModel) *RawSample {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	numChannels := len(colorModelChannels[model])
	planeSize := width * height
	pix := make([]float32, numChannels*planeSize)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r16, g16, b16, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			r, g, b := float64(r16)/0xFFFF, float64(g16)/0xFFFF, float64(b16)/0xFFFF
			pos := y*width + x
			switch model {
			case Luminance:
				pix[pos] = float32(0.299*r + 0.587*g + 0.114*b)
			case YUV:
				pix[pos] = float32(0.299*r + 0.587*g + 0.114*b)
				pix[planeSize+pos] = float32(-0.14713*r - 0.28886*g + 0.436*b)
				pix[2*planeSize+pos] = float32(0.615*r - 0.51499*g - 0.10001*b)
			case RGB:
				pix[pos] = float32(r)
				pix[planeSize+pos] = float32(g)
				pix[2*planeSize+pos] = float32(b)
			}
		}
	}
	return NewRawSample(shapes.Image(numChannels, height, width), pix)
}
