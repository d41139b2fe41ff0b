// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package commandline

import (
	"io"

	"github.com/goccy/go-json"
	"github.com/gomlx/facepatches/pkg/data/datasets"
	"github.com/gomlx/facepatches/pkg/data/pipeline"
	"github.com/pkg/errors"
)

// RunSummary is the machine-readable summary of a pipeline run.
type RunSummary struct {
	RunID       string           `json:"run_id"`
	Seed        int64            `json:"seed"`
	Channels    []string         `json:"channels"`
	SampleShape []int            `json:"sample_shape"`
	Train       PartitionSummary `json:"train"`
	Test        PartitionSummary `json:"test"`
	Stats       []ChannelSummary `json:"stats"`
}

// PartitionSummary describes the train or test partition.
type PartitionSummary struct {
	Size     int                    `json:"size"`
	PerLabel map[datasets.Label]int `json:"per_label"`
}

// ChannelSummary holds the fitted statistics of a channel and the statistics of the normalized partitions.
type ChannelSummary struct {
	Channel     string   `json:"channel"`
	Mean        float64  `json:"mean"`
	StdDev      float64  `json:"stddev"`
	TrainMean   float64  `json:"train_mean"`
	TrainStdDev float64  `json:"train_stddev"`
	TestMean    *float64 `json:"test_mean,omitempty"`
	TestStdDev  *float64 `json:"test_stddev,omitempty"`
}

// NewRunSummary creates the summary of the result of a run.
func NewRunSummary(config *pipeline.Config, result *pipeline.Result) *RunSummary {
	summary := &RunSummary{
		RunID:       result.RunID.String(),
		Seed:        result.Seed,
		Channels:    config.Channels,
		SampleShape: config.SampleShape().Dimensions,
		Train:       PartitionSummary{Size: result.Train.Size, PerLabel: labelCounts(result.Train)},
		Test:        PartitionSummary{PerLabel: labelCounts(result.Test)},
	}
	if result.Test != nil {
		summary.Test.Size = result.Test.Size
	}
	for ii, channel := range result.Stats.Channels {
		cs := ChannelSummary{
			Channel: channel,
			Mean:    result.Stats.Stats[ii].Mean(),
			StdDev:  result.Stats.Stats[ii].StdDev(),
		}
		if ii < len(result.TrainReport) {
			cs.TrainMean, cs.TrainStdDev = result.TrainReport[ii].Mean, result.TrainReport[ii].StdDev
		}
		if ii < len(result.TestReport) {
			mean, stdDev := result.TestReport[ii].Mean, result.TestReport[ii].StdDev
			cs.TestMean, cs.TestStdDev = &mean, &stdDev
		}
		summary.Stats = append(summary.Stats, cs)
	}
	return summary
}

// WriteJSON writes the summary as indented JSON.
func (s *RunSummary) WriteJSON(w io.Writer) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to serialize run summary")
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return errors.Wrap(err, "failed to write run summary")
}
