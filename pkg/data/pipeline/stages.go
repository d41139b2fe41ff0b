// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package pipeline

import "fmt"

// Stage of a pipeline run. Stages always run in this order.
type Stage int

const (
	StageAcquire Stage = iota
	StageSplit
	StageAssemble
	StagePack
	StageNormalize
	StageVerify

	// NumStages is the number of stages of a run.
	NumStages int = iota
)

var stageNames = []string{"acquire", "split", "assemble", "pack", "normalize", "verify"}

// String implements fmt.Stringer.
func (s Stage) String() string {
	if s < 0 || int(s) >= NumStages {
		return fmt.Sprintf("Stage(%d)", int(s))
	}
	return stageNames[s]
}

// Observer is called at the start of each stage of a run, e.g. to display progress.
type Observer func(stage Stage)

func notify(observers []Observer, stage Stage) {
	for _, observer := range observers {
		observer(stage)
	}
}
