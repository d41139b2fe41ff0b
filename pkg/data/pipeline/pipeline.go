// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package pipeline runs the complete face/background dataset preparation:
//
//	Acquire -> Shuffle -> Split -> Assemble -> Pack -> Fit(train) -> Apply(train) -> Apply(test) -> Verify
//
// Each stage consumes the complete output of the previous one. Any error aborts the run and no partial
// result is returned.
//
// Example:
//
//	config := must.M1(pipeline.LoadConfig(afero.NewOsFs(), "facepatches.yaml"))
//	result, err := pipeline.RunDirs(afero.NewOsFs(), dataDir, "", config)
//	if err != nil {
//		klog.Fatalf("Failed: %+v", err)
//	}
//	trainData, trainLabels := result.Train.Data, result.Train.Labels
package pipeline

import (
	"fmt"
	"path"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/facepatches/pkg/data/datasets"
	"github.com/gomlx/facepatches/pkg/data/normalization"
	"github.com/gomlx/facepatches/pkg/data/samples"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"k8s.io/klog/v2"
)

// ClassSources are the sources of samples of one class.
//
// Entries passed to Run with the same label are merged, in order, into one class. The patches limit
// applies to the merged class: later entries only contribute what is left of it.
type ClassSources struct {
	Name    string
	Label   datasets.Label
	Sources []samples.Source
}

// Result of a pipeline run: the normalized train and test bundles, and the statistics fitted on the
// train bundle, which should be used to normalize any future input.
type Result struct {
	// RunID uniquely identifies the run in logs and reports.
	RunID uuid.UUID

	// Seed used to shuffle the classes before splitting.
	Seed int64

	// Train and Test bundles. Test is nil if Ratio leaves no samples for testing.
	Train, Test *datasets.Bundle

	// Stats fitted on the train bundle, one per channel.
	Stats normalization.ChannelStats

	// TrainReport and TestReport are the statistics of each channel after normalization.
	// TestReport is empty if Test is nil.
	TrainReport, TestReport []normalization.Summary
}

// DirSources creates the class sources reading images from the directories configured for each class,
// relative to baseDir.
//
// If cacheDir is not empty, the samples of each directory are cached in a subdirectory of it named after the
// color model and patch size (see samples.CachedSource and CacheSubdir).
func DirSources(fs afero.Fs, baseDir, cacheDir string, config *Config) ([]ClassSources, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if err := config.ValidateClasses(); err != nil {
		return nil, err
	}
	if err := config.validateDirs(); err != nil {
		return nil, err
	}
	model, err := config.ColorModel()
	if err != nil {
		return nil, err
	}
	if cacheDir != "" {
		cacheDir = path.Join(cacheDir, CacheSubdir(config))
	}
	classes := make([]ClassSources, 0, len(config.Classes))
	for _, class := range config.Classes {
		cs := ClassSources{Name: class.Name, Label: class.Label}
		for _, dir := range class.Dirs {
			var source samples.Source = samples.NewDirSource(fs, path.Join(baseDir, dir), model, config.Width, config.Height)
			if cacheDir != "" {
				source = samples.NewCachedSource(fs, cacheDir, source)
			}
			cs.Sources = append(cs.Sources, source)
		}
		classes = append(classes, cs)
	}
	return classes, nil
}

// CacheSubdir returns the name of the cache subdirectory for the samples converted as configured, e.g. "y-32x32".
func CacheSubdir(config *Config) string {
	return fmt.Sprintf("%s-%dx%d", strings.Join(config.Channels, ""), config.Width, config.Height)
}

// RunDirs runs the pipeline on the images of the class directories under baseDir. See DirSources and Run.
func RunDirs(fs afero.Fs, baseDir, cacheDir string, config *Config, observers ...Observer) (*Result, error) {
	classes, err := DirSources(fs, baseDir, cacheDir, config)
	if err != nil {
		return nil, err
	}
	return Run(config, classes, observers...)
}

// Run executes the pipeline on the given classes of samples, with the configuration options (the
// Classes of the configuration are neither used nor validated, see RunDirs).
//
// Errors reading the sources wrap samples.ErrAcquisition and are returned before any sample is
// normalized.
//
// observers are notified at the start of each stage.
func Run(config *Config, classes []ClassSources, observers ...Observer) (*Result, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if len(classes) == 0 {
		return nil, errors.Wrap(datasets.ErrInvalidArgument, "no classes of samples given")
	}
	var result *Result
	var runErr error
	if err := exceptions.TryCatch[error](func() { result, runErr = run(config, classes, observers) }); err != nil {
		return nil, errors.WithMessage(err, "pipeline run panicked")
	}
	if runErr != nil {
		return nil, runErr
	}
	return result, nil
}

// run implements Run, after the configuration is validated.
func run(config *Config, classes []ClassSources, observers []Observer) (*Result, error) {
	result := &Result{RunID: uuid.New()}
	klog.V(1).Infof("run %s: configuration:\n%s", result.RunID, config)

	notify(observers, StageAcquire)
	collections, err := acquire(config, classes)
	if err != nil {
		return nil, err
	}

	notify(observers, StageSplit)
	rng, seed := config.Rand()
	result.Seed = seed
	testCollections := make([]*datasets.Collection, 0, len(collections))
	for _, c := range collections {
		c.Shuffle(rng)
		split, err := c.Split(config.Ratio)
		if err != nil {
			return nil, err
		}
		klog.V(1).Infof("label %d: %d train and %d test samples", c.Label(), c.Len(), split.Len())
		testCollections = append(testCollections, split)
	}

	notify(observers, StageAssemble)
	train, err := datasets.Assemble(collections...)
	if err != nil {
		return nil, errors.WithMessage(err, "assembling train dataset")
	}
	if train.Len() == 0 {
		return nil, errors.Wrapf(datasets.ErrInvalidArgument, "no training samples left with ratio %g", config.Ratio)
	}
	test, err := datasets.Assemble(testCollections...)
	if err != nil {
		return nil, errors.WithMessage(err, "assembling test dataset")
	}

	notify(observers, StagePack)
	pool := config.Pool()
	targetShape := config.SampleShape()
	if result.Train, err = datasets.Pack(train, targetShape, pool); err != nil {
		return nil, errors.WithMessage(err, "packing train dataset")
	}
	if test.Len() > 0 {
		if result.Test, err = datasets.Pack(test, targetShape, pool); err != nil {
			return nil, errors.WithMessage(err, "packing test dataset")
		}
	} else {
		klog.Warningf("run %s: no test samples with ratio %g", result.RunID, config.Ratio)
	}

	// Statistics are fitted on train only.
	notify(observers, StageNormalize)
	if result.Stats, err = normalization.FitAndApply(result.Train, result.Test, config.Channels, pool); err != nil {
		return nil, err
	}

	notify(observers, StageVerify)
	if result.TrainReport, err = normalization.Verify("train", result.Train, config.Channels); err != nil {
		return nil, err
	}
	if result.Test != nil {
		if result.TestReport, err = normalization.Verify("test", result.Test, config.Channels); err != nil {
			return nil, err
		}
	}
	klog.V(1).Infof("run %s: %d train and %d test samples ready", result.RunID, result.Train.Size, testSize(result))
	return result, nil
}

func testSize(result *Result) int {
	if result.Test == nil {
		return 0
	}
	return result.Test.Size
}

// acquire reads the samples of each class, merging classes with the same label, in order of first
// appearance. The patches limit applies to each label.
func acquire(config *Config, classes []ClassSources) ([]*datasets.Collection, error) {
	var collections []*datasets.Collection
	byLabel := make(map[datasets.Label]*datasets.Collection, len(classes))
	for _, class := range classes {
		limit := int(config.Patches)
		existing, found := byLabel[class.Label]
		if found && config.Patches != PatchesAll {
			limit = max(limit-existing.Len(), 0)
		}
		c, err := datasets.FromSources(class.Label, limit, class.Sources...)
		if err != nil {
			return nil, errors.WithMessagef(err, "acquiring class %q", class.Name)
		}
		klog.V(1).Infof("class %q (label %d): %d samples", class.Name, class.Label, c.Len())
		if found {
			if err = existing.Merge(c); err != nil {
				return nil, errors.WithMessagef(err, "merging class %q", class.Name)
			}
			continue
		}
		byLabel[class.Label] = c
		collections = append(collections, c)
	}
	return collections, nil
}
