// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package datasets

import (
	"github.com/gomlx/facepatches/pkg/core/shapes"
	"github.com/gomlx/facepatches/pkg/data/samples"
	"github.com/pkg/errors"
)

// Entry is one sample of an assembled dataset, paired with its label.
type Entry struct {
	Sample *samples.RawSample
	Label  Label
}

// Assembled is the ordered concatenation of the collections of every class.
type Assembled struct {
	shape   shapes.Shape
	entries []Entry
}

// Assemble concatenates the samples of the collections, in the order given and then in the order of each
// collection, pairing each sample with the label of its collection.
//
// Classes are not interleaved: the result is blocked by class, in the order the collections are given.
// Empty collections are skipped. All non-empty collections must have the same sample shape, otherwise it
// returns ErrShapeMismatch.
func Assemble(collections ...*Collection) (*Assembled, error) {
	a := &Assembled{shape: shapes.Invalid()}
	total := 0
	for _, c := range collections {
		total += c.Len()
	}
	a.entries = make([]Entry, 0, total)
	for _, c := range collections {
		if c.Len() == 0 {
			continue
		}
		if !a.shape.Ok() {
			a.shape = c.Shape()
		} else if !a.shape.Equal(c.Shape()) {
			return nil, errors.Wrapf(ErrShapeMismatch, "collection with label %d is shaped %s, previous collections are shaped %s",
				c.Label(), c.Shape(), a.shape)
		}
		for _, s := range c.samples {
			a.entries = append(a.entries, Entry{Sample: s, Label: c.Label()})
		}
	}
	return a, nil
}

// Len returns the total number of samples.
func (a *Assembled) Len() int { return len(a.entries) }

// At returns the i-th entry.
func (a *Assembled) At(i int) Entry { return a.entries[i] }

// Shape of the samples, invalid if the dataset is empty.
func (a *Assembled) Shape() shapes.Shape { return a.shape }
