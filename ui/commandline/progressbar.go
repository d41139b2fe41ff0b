// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package commandline

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/gomlx/facepatches/pkg/data/pipeline"
	"github.com/muesli/termenv"
	"github.com/schollz/progressbar/v3"
)

// ProgressbarStyle to use. Defaults to the ASCII version.
// Consider "progressbar.ThemeUnicode" for a prettier version.
// But it requires some of the graphical symbols to be supported.
var ProgressbarStyle = progressbar.ThemeASCII

// StageDuration is the time spent in one stage of a pipeline run.
type StageDuration struct {
	Stage    pipeline.Stage
	Duration time.Duration
}

// StageProgressBar displays a progress bar over the stages of a pipeline run, and records how long
// each stage took.
//
// Example:
//
//	pBar := commandline.NewStageProgressBar(os.Stdout)
//	result, err := pipeline.RunDirs(fs, dataDir, cacheDir, config, pBar.Observe)
//	pBar.Done()
//	commandline.ReportStageDurations(os.Stdout, pBar.Durations())
type StageProgressBar struct {
	w          io.Writer
	termenv    *termenv.Output
	bar        *progressbar.ProgressBar
	stageStart time.Time
	current    pipeline.Stage
	started    bool
	durations  []StageDuration
}

// NewStageProgressBar creates a progress bar over the pipeline stages, written to w.
func NewStageProgressBar(w io.Writer) *StageProgressBar {
	pBar := &StageProgressBar{w: w, termenv: termenv.NewOutput(w)}
	pBar.bar = progressbar.NewOptions(pipeline.NumStages,
		progressbar.OptionSetDescription("[bold]starting[reset]"),
		progressbar.OptionUseANSICodes(true),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionSetItsString("stages"),
		progressbar.OptionSetTheme(ProgressbarStyle),
		progressbar.OptionSetWriter(w),
	)
	return pBar
}

// Observe implements pipeline.Observer: pass pBar.Observe to pipeline.Run.
func (pBar *StageProgressBar) Observe(stage pipeline.Stage) {
	now := time.Now()
	if pBar.started {
		pBar.finishStage(now)
	} else {
		pBar.termenv.HideCursor()
	}
	pBar.started = true
	pBar.current = stage
	pBar.stageStart = now
	pBar.bar.Describe(fmt.Sprintf("[bold]%-10s[reset]", stage))
}

func (pBar *StageProgressBar) finishStage(now time.Time) {
	pBar.durations = append(pBar.durations, StageDuration{Stage: pBar.current, Duration: now.Sub(pBar.stageStart)})
	_ = pBar.bar.Add(1)
}

// Done finishes the last stage and the progress bar. It should be called once the run returns, successfully
// or not.
func (pBar *StageProgressBar) Done() {
	if pBar.started {
		pBar.finishStage(time.Now())
		pBar.started = false
		pBar.termenv.ShowCursor()
	}
	_ = pBar.bar.Exit()
	_, _ = fmt.Fprintln(pBar.w)
}

// Durations of the finished stages, in order.
func (pBar *StageProgressBar) Durations() []StageDuration {
	return pBar.durations
}

// ReportStageDurations prints a table with the time spent in each stage, and the total.
func ReportStageDurations(w io.Writer, durations []StageDuration) {
	_, _ = fmt.Fprintln(w, titleStyle.Render("Stages"))
	table := newPlainTable(false, lipgloss.Right, lipgloss.Right)
	var total time.Duration
	for _, d := range durations {
		table.Row(d.Stage.String(), FormatDuration(d.Duration))
		total += d.Duration
	}
	table.Row("total", FormatDuration(total))
	_, _ = fmt.Fprintln(w, table.Render())
}
