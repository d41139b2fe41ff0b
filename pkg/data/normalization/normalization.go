// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package normalization implements the global per-channel normalization of packed `[N, C, H, W]` tensors.
//
// Statistics are fitted on the training tensor only, and the same values are then applied to both the
// training and the test tensors:
//
//	stats, err := normalization.Fit(train.Data, channel)
//	err = normalization.Apply(train.Data, channel, stats)
//	err = normalization.Apply(test.Data, channel, stats)
//
// Stats can only be created by Fit, so Apply can't be called without fitted statistics. Report recomputes
// the statistics of a normalized tensor for verification, returning a Summary, which can't be applied.
//
// The standard deviation is the sample (unbiased, n-1) standard deviation, both when fitting and when
// reporting.
package normalization

import (
	"fmt"
	"math"

	"github.com/gomlx/facepatches/internal/workerspool"
	"github.com/gomlx/facepatches/pkg/core/tensors"
	"github.com/gomlx/facepatches/pkg/data/datasets"
	"github.com/gomlx/facepatches/pkg/support/xslices"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"
	"k8s.io/klog/v2"
)

// ErrDegenerateChannel is returned by Fit when a channel has a zero (or undefined) standard deviation:
// normalizing it would divide by zero.
var ErrDegenerateChannel = errors.New("degenerate channel")

// Stats holds the mean and standard deviation fitted on one channel of a training tensor.
//
// The zero value is not valid: Stats are only created by Fit.
type Stats struct {
	mean, stdDev float64
	fitted       bool
}

// Mean fitted on the channel.
func (s Stats) Mean() float64 { return s.mean }

// StdDev fitted on the channel.
func (s Stats) StdDev() float64 { return s.stdDev }

// String implements fmt.Stringer.
func (s Stats) String() string {
	if !s.fitted {
		return "Stats(not fitted)"
	}
	return fmt.Sprintf("Stats(mean=%.6g, stddev=%.6g)", s.mean, s.stdDev)
}

// checkChannel validates the tensor is shaped [N, C, H, W] and channel is one of its channels.
func checkChannel(t *tensors.Tensor, channel int) error {
	if !t.Ok() {
		return errors.Wrap(datasets.ErrInvalidArgument, "invalid tensor")
	}
	if t.Rank() != 4 {
		return errors.Wrapf(datasets.ErrInvalidArgument, "tensor must be shaped [N, C, H, W], got %s", t.Shape())
	}
	if numChannels := t.Shape().Dim(1); channel < 0 || channel >= numChannels {
		return errors.Wrapf(datasets.ErrInvalidArgument, "channel %d out of range for tensor with %d channels",
			channel, numChannels)
	}
	return nil
}

// planes returns the number of examples, and the size of each channel plane (H*W) and of each example (C*H*W).
func planes(t *tensors.Tensor) (numExamples, planeSize, exampleSize int) {
	dims := t.Shape().Dimensions
	numExamples = dims[0]
	planeSize = dims[2] * dims[3]
	exampleSize = dims[1] * planeSize
	return
}

// channelMeanStdDev computes the mean and the sample standard deviation over every element of t[:, channel, :, :].
func channelMeanStdDev(t *tensors.Tensor, channel int) (mean, stdDev float64, count int) {
	numExamples, planeSize, exampleSize := planes(t)
	values := make([]float64, 0, numExamples*planeSize)
	t.ConstFlatData(func(flat []float32) {
		for ii := range numExamples {
			start := ii*exampleSize + channel*planeSize
			values = xslices.ToFloat64(values, flat[start:start+planeSize])
		}
	})
	mean, stdDev = stat.MeanStdDev(values, nil)
	return mean, stdDev, len(values)
}

// Fit computes the mean and standard deviation of every element of the channel t[:, channel, :, :].
//
// It returns ErrDegenerateChannel if the standard deviation is zero or not finite (which includes channels
// with fewer than two elements).
func Fit(t *tensors.Tensor, channel int) (Stats, error) {
	if err := checkChannel(t, channel); err != nil {
		return Stats{}, err
	}
	mean, stdDev, count := channelMeanStdDev(t, channel)
	if count < 2 || stdDev == 0 || math.IsNaN(stdDev) || math.IsInf(stdDev, 0) || math.IsNaN(mean) || math.IsInf(mean, 0) {
		return Stats{}, errors.Wrapf(ErrDegenerateChannel, "channel %d of tensor %s has mean=%g and stddev=%g over %d values",
			channel, t.Shape(), mean, stdDev, count)
	}
	return Stats{mean: mean, stdDev: stdDev, fitted: true}, nil
}

// Apply normalizes in place every element x of t[:, channel, :, :] to (x - mean) / stddev, using the fitted
// stats. Examples are processed in parallel with pool, which can be nil to run sequentially.
func Apply(t *tensors.Tensor, channel int, stats Stats, pool *workerspool.Pool) error {
	if !stats.fitted {
		return errors.Wrap(datasets.ErrInvalidArgument, "Apply requires Stats returned by Fit")
	}
	if err := checkChannel(t, channel); err != nil {
		return err
	}
	if pool == nil {
		pool = workerspool.NewWithParallelism(0)
	}
	numExamples, planeSize, exampleSize := planes(t)
	t.MutableFlatData(func(flat []float32) {
		pool.ForEach(numExamples, func(ii int) {
			start := ii*exampleSize + channel*planeSize
			plane := flat[start : start+planeSize]
			for jj, v := range plane {
				plane[jj] = float32((float64(v) - stats.mean) / stats.stdDev)
			}
		})
	})
	return nil
}

// ChannelStats are the fitted statistics of each normalized channel, in the order of Channels.
type ChannelStats struct {
	Channels []string
	Stats    []Stats
}

// Get returns the fitted stats for the channel with the given name.
func (cs ChannelStats) Get(name string) (Stats, bool) {
	for ii, channel := range cs.Channels {
		if channel == name {
			return cs.Stats[ii], true
		}
	}
	return Stats{}, false
}

// FitAndApply normalizes the channels of both bundles: for each named channel (channel i of the tensors is
// channels[i]) it fits the statistics on train, and applies the same statistics to train and to test.
// The statistics of test are never computed.
//
// test can be nil, if there is no test partition.
func FitAndApply(train, test *datasets.Bundle, channels []string, pool *workerspool.Pool) (ChannelStats, error) {
	if len(channels) == 0 {
		return ChannelStats{}, errors.Wrap(datasets.ErrInvalidArgument, "no channels to normalize")
	}
	numChannels := train.Data.Shape().Dim(1)
	if len(channels) > numChannels {
		return ChannelStats{}, errors.Wrapf(datasets.ErrInvalidArgument, "%d channels %q given, but data has only %d channels",
			len(channels), channels, numChannels)
	}
	if test != nil && !test.SampleShape().Equal(train.SampleShape()) {
		return ChannelStats{}, errors.Wrapf(datasets.ErrShapeMismatch, "train samples are shaped %s, test samples are shaped %s",
			train.SampleShape(), test.SampleShape())
	}
	cs := ChannelStats{Channels: channels, Stats: make([]Stats, len(channels))}
	for channel, name := range channels {
		stats, err := Fit(train.Data, channel)
		if err != nil {
			return ChannelStats{}, errors.WithMessagef(err, "fitting channel %q", name)
		}
		if err = Apply(train.Data, channel, stats, pool); err != nil {
			return ChannelStats{}, errors.WithMessagef(err, "normalizing train channel %q", name)
		}
		if test != nil {
			if err = Apply(test.Data, channel, stats, pool); err != nil {
				return ChannelStats{}, errors.WithMessagef(err, "normalizing test channel %q", name)
			}
		}
		cs.Stats[channel] = stats
		klog.V(1).Infof("channel %q: %s", name, stats)
	}
	return cs, nil
}
