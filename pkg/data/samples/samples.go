// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package samples defines the raw image samples consumed by the dataset pipeline, and the sources that
// provide them: in-memory sources, directories of image files and a caching wrapper.
//
// A RawSample is a `[C, H, W]` float32 image patch. A Source yields the samples of one semantic class
// ("face" or "background") in a stable order.
package samples

import (
	"fmt"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/facepatches/pkg/core/shapes"
)

// All is the limit value used to request all samples of a Source.
const All = -1

// RawSample is an image patch shaped `[C, H, W]`, with values stored flat in Pix, channel-major.
//
// It is considered immutable once created: later stages copy the pixels, they never change them.
type RawSample struct {
	Shape shapes.Shape
	Pix   []float32
}

// NewRawSample creates a RawSample with the given shape, taking ownership of pix.
//
// It panics if the shape is not of rank 3 or if len(pix) doesn't match it.
func NewRawSample(shape shapes.Shape, pix []float32) *RawSample {
	if shape.Rank() != 3 {
		exceptions.Panicf("NewRawSample: samples must be shaped [C, H, W], got %s", shape)
	}
	if len(pix) != shape.Size() {
		exceptions.Panicf("NewRawSample: shape %s requires %d values, got %d", shape, shape.Size(), len(pix))
	}
	return &RawSample{Shape: shape, Pix: pix}
}

// Channels returns the number of channels of the sample.
func (s *RawSample) Channels() int { return s.Shape.Dim(0) }

// Channel returns a view (not a copy) of the pixels of the given channel, shaped `[H, W]` flattened.
func (s *RawSample) Channel(channel int) []float32 {
	planeSize := s.Shape.Dim(1) * s.Shape.Dim(2)
	return s.Pix[channel*planeSize : (channel+1)*planeSize]
}

// String implements fmt.Stringer.
func (s *RawSample) String() string {
	return fmt.Sprintf("RawSample%s", s.Shape)
}

// Source provides the raw samples of one semantic class.
type Source interface {
	// Name identifies the source in logs, errors and cache keys.
	Name() string

	// Count returns the number of samples available.
	Count() (int, error)

	// Samples returns up to limit samples (or all of them if limit is All), always in the same order.
	// If fewer samples are available than requested, it returns what is available.
	Samples(limit int) ([]*RawSample, error)
}

// MemorySource is a Source of samples already in memory.
type MemorySource struct {
	name    string
	samples []*RawSample
}

var _ Source = (*MemorySource)(nil)

// NewMemorySource creates a Source that returns the given samples.
func NewMemorySource(name string, samples ...*RawSample) *MemorySource {
	return &MemorySource{name: name, samples: samples}
}

// Name implements Source.
func (m *MemorySource) Name() string { return m.name }

// Count implements Source.
func (m *MemorySource) Count() (int, error) { return len(m.samples), nil }

// Samples implements Source.
func (m *MemorySource) Samples(limit int) ([]*RawSample, error) {
	return m.samples[:clampLimit(limit, len(m.samples))], nil
}

// clampLimit returns how many samples to take when limit is requested and available exist.
func clampLimit(limit, available int) int {
	if limit == All || limit > available {
		return available
	}
	if limit < 0 {
		return 0
	}
	return limit
}
