// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package samples

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"path"
	"testing"

	"github.com/gomlx/facepatches/pkg/core/shapes"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeGrayPNG writes a width x height PNG filled with the given gray level.
func writeGrayPNG(t *testing.T, fs afero.Fs, filePath string, width, height int, level uint8) {
	img := image.NewGray(image.Rect(0, 0, width, height))
	for ii := range img.Pix {
		img.Pix[ii] = level
	}
	f := must.M1(fs.Create(filePath))
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
}

func TestMemorySource(t *testing.T) {
	shape := shapes.Image(1, 2, 2)
	var all []*RawSample
	for ii := range 5 {
		all = append(all, NewRawSample(shape, []float32{float32(ii), 0, 0, 0}))
	}
	src := NewMemorySource("mem", all...)
	assert.Equal(t, 5, must.M1(src.Count()))
	assert.Len(t, must.M1(src.Samples(All)), 5)
	assert.Len(t, must.M1(src.Samples(3)), 3)
	assert.Len(t, must.M1(src.Samples(10)), 5, "fewer available than requested returns what is available")
	assert.Equal(t, float32(1), must.M1(src.Samples(2))[1].Pix[0])
}

func TestNewRawSample(t *testing.T) {
	s := NewRawSample(shapes.Image(2, 1, 2), []float32{1, 2, 3, 4})
	assert.Equal(t, 2, s.Channels())
	assert.Equal(t, []float32{3, 4}, s.Channel(1))
	require.Panics(t, func() { NewRawSample(shapes.Image(1, 2, 2), []float32{1}) })
}

func TestColorModel(t *testing.T) {
	m, err := ColorModelForChannels([]string{"y", "u", "v"})
	require.NoError(t, err)
	assert.Equal(t, YUV, m)
	assert.Equal(t, []string{"y", "u", "v"}, m.Channels())
	_, err = ColorModelForChannels([]string{"u"})
	require.Error(t, err)

	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	img.Set(0, 0, color.RGBA{R: 255, G: 255, B: 255, A: 255})
	img.Set(1, 0, color.RGBA{R: 255, A: 255})

	lum := FromImage(img, Luminance)
	assert.Equal(t, []int{1, 1, 2}, lum.Shape.Dimensions)
	assert.InDelta(t, 1.0, lum.Pix[0], 1e-6)
	assert.InDelta(t, 0.299, lum.Pix[1], 1e-6)

	yuv := FromImage(img, YUV)
	assert.Equal(t, []int{3, 1, 2}, yuv.Shape.Dimensions)
	// White has no chrominance.
	assert.InDelta(t, 0.0, yuv.Channel(1)[0], 1e-4)
	assert.InDelta(t, 0.0, yuv.Channel(2)[0], 1e-4)
	assert.InDelta(t, 0.615, yuv.Channel(2)[1], 1e-6)

	rgb := FromImage(img, RGB)
	assert.Equal(t, []float32{1, 1}, rgb.Channel(0))
	assert.Equal(t, []float32{1, 0}, rgb.Channel(1))
}

func TestDirSource(t *testing.T) {
	fs := afero.NewMemMapFs()
	for ii := range 4 {
		writeGrayPNG(t, fs, fmt.Sprintf("/faces/face-%02d.png", ii), 4, 4, uint8(ii*50))
	}
	// Different size gets resized, non-images are ignored.
	writeGrayPNG(t, fs, "/faces/face-99.png", 8, 8, 255)
	must.M(afero.WriteFile(fs, "/faces/README.txt", []byte("not an image"), 0644))

	src := NewDirSource(fs, "/faces", Luminance, 4, 4)
	assert.Equal(t, "/faces", src.Name())
	assert.Equal(t, 5, must.M1(src.Count()))
	got := must.M1(src.Samples(All))
	require.Len(t, got, 5)
	for ii, s := range got {
		assert.Equal(t, []int{1, 4, 4}, s.Shape.Dimensions, "sample #%d", ii)
	}
	assert.InDelta(t, 50.0/255.0, got[1].Pix[0], 1e-3)
	assert.InDelta(t, 1.0, got[4].Pix[5], 1e-3)
	assert.Len(t, must.M1(src.Samples(2)), 2)
}

func TestDirSourceErrors(t *testing.T) {
	fs := afero.NewMemMapFs()
	_, err := NewDirSource(fs, "/missing", Luminance, 4, 4).Samples(All)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAcquisition))

	must.M(afero.WriteFile(fs, "/bad/broken.png", []byte("garbage"), 0644))
	_, err = NewDirSource(fs, "/bad", Luminance, 4, 4).Samples(All)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAcquisition))
	var acqErr *AcquisitionError
	require.True(t, errors.As(err, &acqErr))
	assert.Equal(t, path.Join("/bad", "broken.png"), acqErr.Source)
}

// countingSource counts calls to Samples.
type countingSource struct {
	Source
	calls int
}

func (c *countingSource) Samples(limit int) ([]*RawSample, error) {
	c.calls++
	return c.Source.Samples(limit)
}

func TestCachedSource(t *testing.T) {
	fs := afero.NewMemMapFs()
	shape := shapes.Image(1, 1, 2)
	inner := &countingSource{Source: NewMemorySource("data/bg",
		NewRawSample(shape, []float32{1, 2}),
		NewRawSample(shape, []float32{3, 4}),
		NewRawSample(shape, []float32{5, 6}))}
	cached := NewCachedSource(fs, "/cache", inner)
	assert.Equal(t, "/cache/data%2Fbg-2.gob", cached.CachePath(2))
	assert.Equal(t, "/cache/data%2Fbg-all.gob", cached.CachePath(All))
	for _, name := range []string{"data_bg", "data:bg", "data\\bg", "data%2Fbg"} {
		other := NewCachedSource(fs, "/cache", NewMemorySource(name))
		assert.NotEqual(t, cached.CachePath(All), other.CachePath(All), "source %q", name)
		assert.Equal(t, "/cache", path.Dir(other.CachePath(All)), "source %q", name)
	}

	first := must.M1(cached.Samples(2))
	require.Len(t, first, 2)
	assert.True(t, must.M1(afero.Exists(fs, cached.CachePath(2))))

	second := must.M1(cached.Samples(2))
	assert.Equal(t, 1, inner.calls, "second read should come from the cache")
	require.Len(t, second, 2)
	for ii := range first {
		assert.True(t, first[ii].Shape.Equal(second[ii].Shape))
		assert.Equal(t, first[ii].Pix, second[ii].Pix)
	}

	// A corrupted cache is regenerated.
	must.M(afero.WriteFile(fs, cached.CachePath(2), []byte("corrupted"), 0644))
	third := must.M1(cached.Samples(2))
	assert.Equal(t, 2, inner.calls)
	assert.Equal(t, first[1].Pix, third[1].Pix)
}
