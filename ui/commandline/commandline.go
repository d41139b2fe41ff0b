// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package commandline contains convenience UI tools to run and report dataset preparation on the command line.
package commandline

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/facepatches/pkg/data/datasets"
	"github.com/gomlx/facepatches/pkg/data/normalization"
	"github.com/gomlx/facepatches/pkg/data/pipeline"
)

// NormalizedTolerance is how far from mean 0 and standard deviation 1 the normalized train channels can be
// before they are highlighted in the report.
var NormalizedTolerance = 1e-3

var titleStyle = lipgloss.NewStyle().Bold(true).Padding(1, 4, 0, 4)

// ReportRun prints to w tables describing the result of a pipeline run: sizes of the train and test
// bundles, samples per class, and the per channel statistics.
//
// Train channels whose normalized statistics are not within NormalizedTolerance of (0, 1) are highlighted.
func ReportRun(w io.Writer, config *pipeline.Config, result *pipeline.Result) {
	_, _ = fmt.Fprintln(w, titleStyle.Render("Dataset"))
	table := newPlainTable(false, lipgloss.Right, lipgloss.Left)
	table.Row("run", result.RunID.String())
	table.Row("seed", fmt.Sprintf("%d", result.Seed))
	table.Row("channels", strings.Join(config.Channels, ", "))
	table.Row("sample shape", config.SampleShape().String())
	table.Row("train", bundleSize(result.Train))
	table.Row("test", bundleSize(result.Test))
	_, _ = fmt.Fprintln(w, table.Render())

	_, _ = fmt.Fprintln(w, titleStyle.Render("Classes"))
	table = newPlainTable(true, lipgloss.Left, lipgloss.Right)
	table.Headers("class", "label", "train", "test")
	trainCounts, testCounts := labelCounts(result.Train), labelCounts(result.Test)
	for _, class := range config.Classes {
		table.Row(class.Name, fmt.Sprintf("%d", class.Label),
			humanize.Comma(int64(trainCounts[class.Label])), humanize.Comma(int64(testCounts[class.Label])))
	}
	_, _ = fmt.Fprintln(w, table.Render())

	_, _ = fmt.Fprintln(w, titleStyle.Render("Normalization"))
	statsTable := newPlainTableWithReds(true, lipgloss.Left, lipgloss.Right)
	statsTable.Table.Headers("channel", "fitted mean", "fitted stddev", "train mean", "train stddev", "test mean", "test stddev")
	for ii, channel := range result.Stats.Channels {
		stats := result.Stats.Stats[ii]
		row := []string{channel, formatFloat(stats.Mean()), formatFloat(stats.StdDev())}
		row = append(row, summaryCells(result.TrainReport, ii)...)
		row = append(row, summaryCells(result.TestReport, ii)...)
		isRed := ii < len(result.TrainReport) && !result.TrainReport[ii].Near(0, 1, NormalizedTolerance)
		statsTable.Row(isRed, row...)
	}
	_, _ = fmt.Fprintln(w, statsTable.Table.Render())
}

func bundleSize(bundle *datasets.Bundle) string {
	if bundle == nil {
		return "-"
	}
	return fmt.Sprintf("%s samples, %s", humanize.Comma(int64(bundle.Size)),
		humanize.IBytes(uint64(bundle.Data.Shape().Memory())))
}

func labelCounts(bundle *datasets.Bundle) map[datasets.Label]int {
	counts := make(map[datasets.Label]int)
	if bundle == nil {
		return counts
	}
	for _, label := range bundle.Labels {
		counts[label]++
	}
	return counts
}

func summaryCells(report []normalization.Summary, ii int) []string {
	if ii >= len(report) {
		return []string{"-", "-"}
	}
	return []string{formatFloat(report[ii].Mean), formatFloat(report[ii].StdDev)}
}

func formatFloat(v float64) string {
	return fmt.Sprintf("%.5f", v)
}
