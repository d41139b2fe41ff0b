// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package datasets

import (
	"encoding/gob"
	"io"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/facepatches/internal/workerspool"
	"github.com/gomlx/facepatches/pkg/core/shapes"
	"github.com/gomlx/facepatches/pkg/core/tensors"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Bundle holds packed samples and their labels: Data is shaped `[N, C, H, W]`, and Labels[i] is the label
// of the sample Data[i]. Size is N.
//
// The Bundle owns Data and Labels: they don't alias the collections they were packed from.
type Bundle struct {
	Data   *tensors.Tensor
	Labels []Label
	Size   int
}

// SampleShape returns the `[C, H, W]` shape of one sample of the bundle.
func (b *Bundle) SampleShape() shapes.Shape {
	return shapes.Make(b.Data.DType(), b.Data.Shape().Dimensions[1:]...)
}

// Pack copies the samples of the dataset into a new `[N, C, H, W]` tensor, with the labels in a parallel
// slice, preserving the dataset order.
//
// Every sample must be shaped exactly targetShape (`[C, H, W]`) and hold as many values as the shape
// requires: otherwise it returns ErrShapeMismatch and nothing is packed. Samples are copied in parallel using pool, which can be nil for a sequential copy.
func Pack(dataset *Assembled, targetShape shapes.Shape, pool *workerspool.Pool) (*Bundle, error) {
	if targetShape.Rank() != 3 {
		return nil, errors.Wrapf(ErrInvalidArgument, "target shape must be [C, H, W], got %s", targetShape)
	}
	n := dataset.Len()
	if n == 0 {
		return nil, errors.Wrap(ErrInvalidArgument, "cannot pack an empty dataset")
	}
	sampleSize := targetShape.Size()
	for ii, entry := range dataset.entries {
		if !entry.Sample.Shape.Equal(targetShape) {
			return nil, errors.Wrapf(ErrShapeMismatch, "sample #%d (label %d) is shaped %s, wanted %s",
				ii, entry.Label, entry.Sample.Shape, targetShape)
		}
		if len(entry.Sample.Pix) != sampleSize {
			return nil, errors.Wrapf(ErrShapeMismatch, "sample #%d (label %d) is shaped %s but holds %d values",
				ii, entry.Label, entry.Sample.Shape, len(entry.Sample.Pix))
		}
	}

	var data *tensors.Tensor
	if err := exceptions.TryCatch[error](func() { data = tensors.FromShape(targetShape.Batch(n)) }); err != nil {
		return nil, errors.WithMessage(err, "allocating packed tensor")
	}
	labels := make([]Label, n)
	if pool == nil {
		pool = workerspool.NewWithParallelism(0)
	}
	data.MutableFlatData(func(flat []float32) {
		pool.ForEach(n, func(ii int) {
			entry := dataset.entries[ii]
			copy(flat[ii*sampleSize:(ii+1)*sampleSize], entry.Sample.Pix)
			labels[ii] = entry.Label
		})
	})
	klog.V(1).Infof("packed %d samples into %s", n, data.Shape())
	return &Bundle{Data: data, Labels: labels, Size: n}, nil
}

// Save the bundle (data and labels) to w, using gob encoding.
func (b *Bundle) Save(w io.Writer) error {
	enc := gob.NewEncoder(w)
	if err := b.Data.GobSerialize(enc); err != nil {
		return err
	}
	return errors.Wrap(enc.Encode(b.Labels), "failed to serialize labels")
}

// LoadBundle loads a bundle saved with Bundle.Save.
func LoadBundle(r io.Reader) (*Bundle, error) {
	dec := gob.NewDecoder(r)
	data, err := tensors.GobDeserialize(dec)
	if err != nil {
		return nil, err
	}
	var labels []Label
	if err = dec.Decode(&labels); err != nil {
		return nil, errors.Wrap(err, "failed to deserialize labels")
	}
	if data.Rank() != 4 || data.Shape().Dim(0) != len(labels) {
		return nil, errors.Wrapf(ErrShapeMismatch, "loaded data shaped %s with %d labels", data.Shape(), len(labels))
	}
	return &Bundle{Data: data, Labels: labels, Size: len(labels)}, nil
}
