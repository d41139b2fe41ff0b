// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package normalization

import (
	"fmt"
	"math"

	"github.com/gomlx/facepatches/pkg/core/tensors"
	"github.com/gomlx/facepatches/pkg/data/datasets"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Summary is the mean and standard deviation measured on a channel, for verification only.
type Summary struct {
	Channel string
	Mean    float64
	StdDev  float64
}

// Near returns whether the summary mean and standard deviation are both within tolerance of the given values.
func (s Summary) Near(mean, stdDev, tolerance float64) bool {
	return math.Abs(s.Mean-mean) <= tolerance && math.Abs(s.StdDev-stdDev) <= tolerance
}

// String implements fmt.Stringer.
func (s Summary) String() string {
	return fmt.Sprintf("%s: mean=%.6g stddev=%.6g", s.Channel, s.Mean, s.StdDev)
}

// Report recomputes the mean and standard deviation of t[:, channel, :, :], the same way Fit does.
//
// It is purely informational: degenerate channels are reported as they are, not as errors.
func Report(t *tensors.Tensor, channel int) (Summary, error) {
	if err := checkChannel(t, channel); err != nil {
		return Summary{}, err
	}
	mean, stdDev, _ := channelMeanStdDev(t, channel)
	return Summary{Channel: fmt.Sprintf("%d", channel), Mean: mean, StdDev: stdDev}, nil
}

// Verify reports every named channel of the bundle and logs the results under the given partition name
// ("train" or "test").
//
// After FitAndApply the training channels should be close to mean 0 and stddev 1. The test channels
// are only roughly so, since they are normalized with the training statistics.
func Verify(partition string, bundle *datasets.Bundle, channels []string) ([]Summary, error) {
	summaries := make([]Summary, 0, len(channels))
	for channel, name := range channels {
		summary, err := Report(bundle.Data, channel)
		if err != nil {
			return nil, errors.WithMessagef(err, "verifying %s channel %q", partition, name)
		}
		summary.Channel = name
		klog.Infof("%s data, %s", partition, summary)
		summaries = append(summaries, summary)
	}
	return summaries, nil
}
