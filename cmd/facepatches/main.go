// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// facepatches prepares the face/background patches dataset: it optionally downloads the images, reads
// the class directories, splits them into train and test, packs them into tensors and normalizes each
// channel with the statistics of the train partition.
//
// Example:
//
//	facepatches -data ~/work/faces -config faces.yaml -set "channels=y,u,v;seed=42" -preview /tmp/faces.png
package main

import (
	"flag"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/gomlx/facepatches/pkg/data/datasets"
	"github.com/gomlx/facepatches/pkg/data/downloader"
	"github.com/gomlx/facepatches/pkg/data/pipeline"
	"github.com/gomlx/facepatches/pkg/support/fsutil"
	"github.com/gomlx/facepatches/pkg/support/xslices"
	"github.com/gomlx/facepatches/ui/commandline"
	"github.com/gomlx/facepatches/ui/plots"
	"github.com/gomlx/facepatches/ui/preview"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
	"k8s.io/klog/v2"
)

var (
	flagDataDir  = flag.String("data", "~/work/facepatches", "Directory with the class subdirectories of images.")
	flagConfig   = flag.String("config", "", "YAML configuration file. If empty, the default configuration is used.")
	flagURL      = flag.String("url", "", "URL of a .tar.gz archive with the class subdirectories, used with -download.")
	flagChecksum = flag.String("checksum", "", "Optional sha256 checksum of the archive given by -url.")
	flagDownload = flag.Bool("download", false, "Download and extract the archive given by -url, if not yet done.")
	flagCacheDir = flag.String("cache", "", "Directory where to cache decoded samples. If empty, no caching is done.")
	flagSeed     = flag.Int64("seed", 0, "Seed used to shuffle the classes before the split. "+
		"If not given, the seed of the configuration is used, or a random one if none is configured.")
	flagChannels = xslices.Flag[string]("channels", nil,
		"Comma-separated channels to generate and normalize, overriding the configuration: \"y\", \"y,u,v\" or \"r,g,b\".",
		func(s string) (string, error) { return s, nil })
	flagPreview   = flag.String("preview", "", "If set, saves a PNG grid with the first train samples to this path.")
	flagHistogram = flag.String("histogram", "", "If set, saves a PNG histogram of the first channel of train and test to this path.")
	flagSummary   = flag.String("summary_json", "", "If set, writes a JSON summary of the run to this path.")
	flagOutput    = flag.String("output", "", "If set, saves the normalized train and test bundles and the fitted "+
		"statistics to this directory.")
)

func main() {
	klog.InitFlags(nil)
	config := pipeline.DefaultConfig()
	settings := commandline.CreateConfigSettingsFlag(config, "")
	flag.Parse()
	fs := afero.NewOsFs()

	if *flagConfig != "" {
		configPath := fsutil.MustReplaceTildeInDir(*flagConfig)
		if !fsutil.MustFileExists(fs, configPath) {
			klog.Fatalf("Configuration file %q not found", configPath)
		}
		config = must.M1(pipeline.LoadConfig(fs, configPath))
	}
	paramsSet := must.M1(commandline.ParseConfigSettings(fs, config, *settings))
	if len(paramsSet) > 0 {
		klog.Infof("Configuration settings:\n%s", commandline.SprintModifiedConfigSettings(config, paramsSet))
	}
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "seed" {
			config.Seed = flagSeed
		}
	})
	if len(*flagChannels) > 0 {
		config.Channels = *flagChannels
	}
	if err := config.Validate(); err != nil {
		klog.Fatalf("Invalid configuration: %+v", err)
	}

	dataDir := fsutil.MustReplaceTildeInDir(*flagDataDir)
	if *flagDownload {
		must.M(download(fs, dataDir, config))
	}
	cacheDir := *flagCacheDir
	if cacheDir != "" {
		cacheDir = fsutil.MustReplaceTildeInDir(cacheDir)
	}

	pBar := commandline.NewStageProgressBar(os.Stdout)
	result, err := pipeline.RunDirs(fs, dataDir, cacheDir, config, pBar.Observe)
	pBar.Done()
	if err != nil {
		klog.Fatalf("Failed to prepare dataset from %q: %+v", dataDir, err)
	}
	commandline.ReportRun(os.Stdout, config, result)
	commandline.ReportStageDurations(os.Stdout, pBar.Durations())

	if *flagSummary != "" {
		f := must.M1(fs.Create(*flagSummary))
		must.M(commandline.NewRunSummary(config, result).WriteJSON(f))
		must.M(f.Close())
	}
	if *flagPreview != "" {
		img := must.M1(preview.Grid(result.Train, 0, 64, 16, 2))
		must.M(preview.SaveGrid(fs, *flagPreview, img))
		fmt.Printf("Preview of the train samples saved to %q\n", *flagPreview)
	}
	if *flagHistogram != "" {
		p := must.M1(plots.Histogram(fmt.Sprintf("Channel %q after normalization", config.Channels[0]), 0, 50,
			plots.Series{Name: "train", Bundle: result.Train}, plots.Series{Name: "test", Bundle: result.Test}))
		must.M(plots.SavePlot(fs, *flagHistogram, p))
		fmt.Printf("Histogram saved to %q\n", *flagHistogram)
	}
	if *flagOutput != "" {
		must.M(save(fs, fsutil.MustReplaceTildeInDir(*flagOutput), result))
		fmt.Printf("Dataset saved to %q\n", *flagOutput)
	}
}

// download the archive given by -url into dataDir, and extract it unless the directory of the first class
// already exists.
func download(fs afero.Fs, dataDir string, config *pipeline.Config) error {
	if *flagURL == "" {
		return errors.New("-download requires -url")
	}
	if len(config.Classes) == 0 || len(config.Classes[0].Dirs) == 0 {
		return errors.New("-download requires at least one configured class with directories")
	}
	archive := path.Base(strings.SplitN(*flagURL, "?", 2)[0])
	return downloader.DownloadAndUntarIfMissing(fs, *flagURL, dataDir, archive, config.Classes[0].Dirs[0], *flagChecksum)
}

// channelStats is the serialized form of the statistics fitted on the train partition.
type channelStats struct {
	Channel string  `yaml:"channel"`
	Mean    float64 `yaml:"mean"`
	StdDev  float64 `yaml:"stddev"`
}

// save writes train.bin, test.bin (if there is a test partition) and stats.yaml into outputDir.
func save(fs afero.Fs, outputDir string, result *pipeline.Result) error {
	if err := fs.MkdirAll(outputDir, 0755); err != nil {
		return errors.Wrapf(err, "failed to create output directory %q", outputDir)
	}
	for name, bundle := range map[string]*datasets.Bundle{"train": result.Train, "test": result.Test} {
		if bundle == nil {
			continue
		}
		filePath := path.Join(outputDir, name+".bin")
		f, err := fs.Create(filePath)
		if err != nil {
			return errors.Wrapf(err, "failed to create %q", filePath)
		}
		if err = bundle.Save(f); err != nil {
			_ = f.Close()
			return errors.WithMessagef(err, "saving %s bundle to %q", name, filePath)
		}
		if err = f.Close(); err != nil {
			return errors.Wrapf(err, "failed to close %q", filePath)
		}
	}

	stats := make([]channelStats, len(result.Stats.Channels))
	for ii, channel := range result.Stats.Channels {
		stats[ii] = channelStats{Channel: channel, Mean: result.Stats.Stats[ii].Mean(), StdDev: result.Stats.Stats[ii].StdDev()}
	}
	data, err := yaml.Marshal(map[string]any{"run": result.RunID.String(), "seed": result.Seed, "stats": stats})
	if err != nil {
		return errors.Wrap(err, "failed to serialize statistics")
	}
	return errors.Wrap(afero.WriteFile(fs, path.Join(outputDir, "stats.yaml"), data, 0644), "failed to write statistics")
}
