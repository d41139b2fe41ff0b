// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package datasets groups raw samples into class-labeled collections, assembles the collections of all
// classes into one ordered dataset, and packs it into a `[N, C, H, W]` tensor with a parallel vector of
// labels.
//
// The usual sequence is:
//
//	faces, err := datasets.FromSources(0, samples.All, faceSource)
//	backgrounds, err := datasets.FromSources(1, samples.All, bgSource, bgFalsePositivesSource)
//	faces.Shuffle(rng)
//	backgrounds.Shuffle(rng)
//	testFaces, err := faces.Split(ratio)
//	testBackgrounds, err := backgrounds.Split(ratio)
//	train, err := datasets.Assemble(faces, backgrounds)
//	trainBundle, err := datasets.Pack(train, shape, pool)
package datasets

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/gomlx/facepatches/pkg/core/shapes"
	"github.com/gomlx/facepatches/pkg/data/samples"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Label is the integer class identifier of a sample.
type Label int32

// Collection is an ordered sequence of samples of the same shape, all sharing one class label.
//
// It is mutated only by Merge, Shuffle and Split. It is not safe for concurrent use.
type Collection struct {
	label   Label
	shape   shapes.Shape
	samples []*samples.RawSample
}

// NewCollection creates a collection with the given label and samples, which must all have the same shape.
func NewCollection(label Label, rawSamples ...*samples.RawSample) (*Collection, error) {
	c := &Collection{label: label, shape: shapes.Invalid()}
	if err := c.append(rawSamples, "new collection"); err != nil {
		return nil, err
	}
	return c, nil
}

// FromSources creates a collection with the samples of every source, in order.
//
// limit caps the total number of samples in the collection, samples.All for no cap. Sources are read in
// order until the cap is reached. If fewer samples are available than requested, the collection holds
// what is available, and a warning is logged.
func FromSources(label Label, limit int, sources ...samples.Source) (*Collection, error) {
	if limit < 0 && limit != samples.All {
		return nil, errors.Wrapf(ErrInvalidArgument, "number of samples requested for label %d must be >= 0, got %d", label, limit)
	}
	c := &Collection{label: label, shape: shapes.Invalid()}
	for _, source := range sources {
		request := samples.All
		if limit != samples.All {
			request = limit - c.Len()
			if request == 0 {
				break
			}
		}
		sourceSamples, err := source.Samples(request)
		if err != nil {
			return nil, errors.WithMessagef(err, "reading samples for label %d", label)
		}
		if err = c.append(sourceSamples, fmt.Sprintf("source %q", source.Name())); err != nil {
			return nil, err
		}
		klog.V(1).Infof("label %d: %d samples from %q", label, len(sourceSamples), source.Name())
	}
	if limit != samples.All && c.Len() < limit {
		klog.Warningf("label %d: requested %d samples, only %d available", label, limit, c.Len())
	}
	return c, nil
}

// append samples after checking their shapes. where is used in error messages.
func (c *Collection) append(rawSamples []*samples.RawSample, where string) error {
	shape := c.shape
	for ii, s := range rawSamples {
		if !shape.Ok() {
			shape = s.Shape
			continue
		}
		if !s.Shape.Equal(shape) {
			return errors.Wrapf(ErrShapeMismatch, "%s: sample #%d shaped %s, collection with label %d is shaped %s",
				where, ii, s.Shape, c.label, shape)
		}
	}
	c.shape = shape
	c.samples = append(c.samples, rawSamples...)
	return nil
}

// Label of the samples in the collection.
func (c *Collection) Label() Label { return c.label }

// Shape of each sample in the collection. It is invalid if the collection is empty and
// never had a sample.
func (c *Collection) Shape() shapes.Shape { return c.shape }

// Len returns the number of samples in the collection.
func (c *Collection) Len() int { return len(c.samples) }

// At returns the i-th sample.
func (c *Collection) At(i int) *samples.RawSample { return c.samples[i] }

// Merge appends the samples of other, in order, to the end of the collection.
//
// It fails with ErrInvalidArgument if the labels differ and with ErrShapeMismatch if the sample shapes
// differ. other is not changed.
func (c *Collection) Merge(other *Collection) error {
	if other.label != c.label {
		return errors.Wrapf(ErrInvalidArgument, "cannot merge collection with label %d into collection with label %d",
			other.label, c.label)
	}
	if c.shape.Ok() && other.shape.Ok() && !c.shape.Equal(other.shape) {
		return errors.Wrapf(ErrShapeMismatch, "cannot merge collection shaped %s into collection shaped %s",
			other.shape, c.shape)
	}
	return c.append(other.samples, "merge")
}

// Shuffle the order of the samples in place with a uniformly random permutation. It is reproducible
// only if rng was created with a fixed seed.
func (c *Collection) Shuffle(rng *rand.Rand) {
	rng.Shuffle(len(c.samples), func(i, j int) {
		c.samples[i], c.samples[j] = c.samples[j], c.samples[i]
	})
}

// Split removes the trailing floor(ratio * Len()) samples from the collection and returns them as a new
// collection with the same label. ratio must be in [0, 1], otherwise it returns ErrInvalidArgument.
//
// Which samples are split off depends only on the current order, so Shuffle before Split to get a random
// split.
func (c *Collection) Split(ratio float64) (*Collection, error) {
	if math.IsNaN(ratio) || ratio < 0 || ratio > 1 {
		return nil, errors.Wrapf(ErrInvalidArgument, "split ratio must be in [0, 1], got %g", ratio)
	}
	numSplit := int(math.Floor(ratio * float64(c.Len())))
	keep := c.Len() - numSplit
	split := &Collection{
		label:   c.label,
		shape:   c.shape,
		samples: make([]*samples.RawSample, numSplit),
	}
	copy(split.samples, c.samples[keep:])
	clear(c.samples[keep:])
	c.samples = c.samples[:keep]
	return split, nil
}
