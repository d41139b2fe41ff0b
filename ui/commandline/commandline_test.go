// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package commandline

import (
	"bytes"
	"math/rand"
	"testing"
	"time"

	"github.com/gomlx/facepatches/pkg/core/shapes"
	"github.com/gomlx/facepatches/pkg/data/datasets"
	"github.com/gomlx/facepatches/pkg/data/pipeline"
	"github.com/gomlx/facepatches/pkg/data/samples"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfigSettings(t *testing.T) {
	config := pipeline.DefaultConfig()
	paramsSet, err := ParseConfigSettings(afero.NewMemMapFs(), config, "ratio=0.1;patches=500; channels=y,u,v;seed=7;")
	require.NoError(t, err)
	require.Equal(t, []string{"ratio", "patches", "channels", "seed"}, paramsSet)
	assert.Equal(t, 0.1, config.Ratio)
	assert.Equal(t, pipeline.PatchLimit(500), config.Patches)
	assert.Equal(t, []string{"y", "u", "v"}, config.Channels)
	require.NotNil(t, config.Seed)
	assert.Equal(t, int64(7), *config.Seed)
	// Untouched.
	assert.Equal(t, 32, config.Width)

	printed := SprintModifiedConfigSettings(config, append(paramsSet, "ratio"))
	assert.Contains(t, printed, `"ratio": 0.1`)
	assert.Contains(t, printed, `"patches": 500`)

	// Unknown parameter.
	_, err = ParseConfigSettings(afero.NewMemMapFs(), config, "colour=blue")
	require.Error(t, err)

	// Malformed setting.
	_, err = ParseConfigSettings(afero.NewMemMapFs(), config, "ratio")
	require.Error(t, err)

	// Invalid value.
	_, err = ParseConfigSettings(afero.NewMemMapFs(), config, "patches=-2")
	require.Error(t, err)
	assert.True(t, errors.Is(err, datasets.ErrInvalidArgument))
	_, err = ParseConfigSettings(afero.NewMemMapFs(), config, "width=wide")
	require.Error(t, err)
}

func TestParseConfigSettingsFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/settings.txt", []byte("# Patch size\nwidth=24;height=24\n\npatches=all\n"), 0644))
	config := pipeline.DefaultConfig()
	config.Patches = 10
	paramsSet := must.M1(ParseConfigSettings(fs, config, "file:/settings.txt;ratio=0"))
	assert.Equal(t, []string{"width", "height", "patches", "ratio"}, paramsSet)
	assert.Equal(t, 24, config.Width)
	assert.Equal(t, 24, config.Height)
	assert.Equal(t, pipeline.PatchesAll, config.Patches)
	assert.Equal(t, 0.0, config.Ratio)

	_, err := ParseConfigSettings(fs, config, "file:/missing.txt")
	require.Error(t, err)
}

func TestConfigParams(t *testing.T) {
	assert.Equal(t,
		[]string{"channels", "classes", "height", "parallelism", "patches", "ratio", "seed", "width"},
		ConfigParams(pipeline.DefaultConfig()))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "1.23s", FormatDuration(1234567*time.Microsecond))
	assert.Equal(t, "450.00ms", FormatDuration(450*time.Millisecond))
	assert.Equal(t, "1m30s", FormatDuration(90*time.Second))
}

func TestReportRun(t *testing.T) {
	config := pipeline.DefaultConfig()
	config.Width, config.Height = 2, 2
	seed := int64(3)
	config.Seed = &seed
	rng := rand.New(rand.NewSource(1))
	shape := shapes.Image(1, 2, 2)
	var classes []pipeline.ClassSources
	for _, class := range config.Classes {
		rawSamples := make([]*samples.RawSample, 10)
		for ii := range rawSamples {
			rawSamples[ii] = samples.NewRawSample(shape, []float32{rng.Float32(), rng.Float32(), rng.Float32(), rng.Float32()})
		}
		classes = append(classes, pipeline.ClassSources{
			Name: class.Name, Label: class.Label,
			Sources: []samples.Source{samples.NewMemorySource(class.Name, rawSamples...)},
		})
	}

	var progress bytes.Buffer
	pBar := NewStageProgressBar(&progress)
	result := must.M1(pipeline.Run(config, classes, pBar.Observe))
	pBar.Done()
	durations := pBar.Durations()
	require.Len(t, durations, pipeline.NumStages)
	assert.Equal(t, pipeline.StageAcquire, durations[0].Stage)
	assert.Equal(t, pipeline.StageVerify, durations[len(durations)-1].Stage)

	var out bytes.Buffer
	ReportRun(&out, config, result)
	ReportStageDurations(&out, durations)
	report := out.String()
	assert.Contains(t, report, result.RunID.String())
	assert.Contains(t, report, "background")
	assert.Contains(t, report, "fitted mean")
	assert.Contains(t, report, "16 samples")
	assert.Contains(t, report, "normalize")
	assert.Contains(t, report, "total")

	summary := NewRunSummary(config, result)
	assert.Equal(t, 16, summary.Train.Size)
	assert.Equal(t, 4, summary.Test.Size)
	assert.Equal(t, map[datasets.Label]int{0: 8, 1: 8}, summary.Train.PerLabel)
	require.Len(t, summary.Stats, 1)
	require.NotNil(t, summary.Stats[0].TestMean)
	var jsonOut bytes.Buffer
	require.NoError(t, summary.WriteJSON(&jsonOut))
	assert.Contains(t, jsonOut.String(), `"run_id": "`+result.RunID.String()+`"`)
	assert.Contains(t, jsonOut.String(), `"train_stddev"`)
}
