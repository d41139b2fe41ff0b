// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"bytes"
	"io"
	"math"
	"math/rand"
	"strconv"
	"time"

	"github.com/gomlx/facepatches/internal/workerspool"
	"github.com/gomlx/facepatches/pkg/core/shapes"
	"github.com/gomlx/facepatches/pkg/data/datasets"
	"github.com/gomlx/facepatches/pkg/data/samples"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
	"k8s.io/klog/v2"
)

// PatchLimit is the maximum number of samples per class. PatchesAll means no limit.
//
// In YAML it is either a non-negative integer or the string "all".
type PatchLimit int

// PatchesAll is the PatchLimit that takes every available sample.
const PatchesAll = PatchLimit(samples.All)

// String implements fmt.Stringer.
func (p PatchLimit) String() string {
	if p == PatchesAll {
		return "all"
	}
	return strconv.Itoa(int(p))
}

// MarshalYAML implements yaml.Marshaler.
func (p PatchLimit) MarshalYAML() (any, error) {
	if p == PatchesAll {
		return "all", nil
	}
	return int(p), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (p *PatchLimit) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode && value.Value == "all" {
		*p = PatchesAll
		return nil
	}
	var n int
	if err := value.Decode(&n); err != nil {
		return errors.Wrapf(datasets.ErrInvalidArgument, "patches must be a non-negative integer or \"all\", got %q (line %d)",
			value.Value, value.Line)
	}
	if n < 0 {
		return errors.Wrapf(datasets.ErrInvalidArgument, "patches must be a non-negative integer or \"all\", got %d (line %d)",
			n, value.Line)
	}
	*p = PatchLimit(n)
	return nil
}

// ClassConfig describes one class of samples: its label and the directories (relative to the data
// directory) its images are read from, in order.
type ClassConfig struct {
	Name  string         `yaml:"name"`
	Label datasets.Label `yaml:"label"`
	Dirs  []string       `yaml:"dirs"`
}

// Config of a pipeline run.
type Config struct {
	// Patches caps the number of samples per class.
	Patches PatchLimit `yaml:"patches"`

	// Ratio is the fraction of each class reserved for testing, in [0, 1].
	Ratio float64 `yaml:"ratio"`

	// Channels are the ordered names of the sample channels, all of them normalized: ["y"], ["y", "u", "v"]
	// or ["r", "g", "b"].
	Channels []string `yaml:"channels"`

	// Seed for shuffling. If nil, a time based seed is used, and runs are not reproducible.
	Seed *int64 `yaml:"seed,omitempty"`

	// Width and Height of the patches: images of a different size are resized.
	Width  int `yaml:"width"`
	Height int `yaml:"height"`

	// Parallelism used to pack and normalize samples: 0 for sequential, -1 for unlimited.
	// If nil, it defaults to runtime.NumCPU().
	Parallelism *int `yaml:"parallelism,omitempty"`

	// Classes of samples, in the order they are assembled.
	Classes []ClassConfig `yaml:"classes"`
}

// DefaultConfig returns the configuration of the face/background dataset: luminance only 32x32 patches,
// 20% of each class reserved for testing.
func DefaultConfig() *Config {
	return &Config{
		Patches:  PatchesAll,
		Ratio:    0.2,
		Channels: []string{"y"},
		Width:    32,
		Height:   32,
		Classes: []ClassConfig{
			{Name: "face", Label: 0, Dirs: []string{"face"}},
			{Name: "background", Label: 1, Dirs: []string{"bg", "bg-false-pos-interior-scene"}},
		},
	}
}

// ParseConfig parses a YAML configuration. Fields not given keep the values of DefaultConfig, and
// unknown fields are an error.
func ParseConfig(data []byte) (*Config, error) {
	config := DefaultConfig()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(config); err != nil && err != io.EOF {
		if errors.Is(err, datasets.ErrInvalidArgument) {
			return nil, err
		}
		return nil, errors.Wrapf(datasets.ErrInvalidArgument, "parsing configuration: %v", err)
	}
	return config, nil
}

// LoadConfig reads and parses the YAML configuration file in path.
func LoadConfig(fs afero.Fs, path string) (*Config, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading configuration file %q", path)
	}
	config, err := ParseConfig(data)
	if err == nil {
		err = config.ValidateClasses()
	}
	if err != nil {
		return nil, errors.WithMessagef(err, "configuration file %q", path)
	}
	return config, nil
}

// String returns the configuration in YAML.
func (c *Config) String() string {
	data, err := yaml.Marshal(c)
	if err != nil {
		return "invalid configuration: " + err.Error()
	}
	return string(data)
}

// Validate returns an error wrapping datasets.ErrInvalidArgument if any option is out of range.
// It is called by Run before any work begins.
//
// Classes are not checked, see ValidateClasses.
func (c *Config) Validate() error {
	if c.Patches < 0 && c.Patches != PatchesAll {
		return errors.Wrapf(datasets.ErrInvalidArgument, "patches must be >= 0 or \"all\", got %d", int(c.Patches))
	}
	if math.IsNaN(c.Ratio) || c.Ratio < 0 || c.Ratio > 1 {
		return errors.Wrapf(datasets.ErrInvalidArgument, "ratio must be in [0, 1], got %g", c.Ratio)
	}
	if len(c.Channels) == 0 {
		return errors.Wrap(datasets.ErrInvalidArgument, "no channels to normalize")
	}
	seen := make(map[string]bool, len(c.Channels))
	for _, channel := range c.Channels {
		if seen[channel] {
			return errors.Wrapf(datasets.ErrInvalidArgument, "channel %q given more than once in %q", channel, c.Channels)
		}
		seen[channel] = true
	}
	if _, err := c.ColorModel(); err != nil {
		return err
	}
	if c.Width <= 0 || c.Height <= 0 {
		return errors.Wrapf(datasets.ErrInvalidArgument, "patch size must be positive, got %dx%d", c.Width, c.Height)
	}
	if c.Parallelism != nil && *c.Parallelism < -1 {
		return errors.Wrapf(datasets.ErrInvalidArgument, "parallelism must be >= -1, got %d", *c.Parallelism)
	}
	return nil
}

// ValidateClasses returns an error wrapping datasets.ErrInvalidArgument if there are no classes configured
// or if two classes share a label. It is called by LoadConfig and DirSources.
func (c *Config) ValidateClasses() error {
	if len(c.Classes) == 0 {
		return errors.Wrap(datasets.ErrInvalidArgument, "no classes configured")
	}
	labels := make(map[datasets.Label]string, len(c.Classes))
	for _, class := range c.Classes {
		if other, found := labels[class.Label]; found {
			return errors.Wrapf(datasets.ErrInvalidArgument, "classes %q and %q have the same label %d",
				other, class.Name, class.Label)
		}
		labels[class.Label] = class.Name
	}
	return nil
}

// validateDirs checks that every class has directories to read from.
func (c *Config) validateDirs() error {
	for _, class := range c.Classes {
		if len(class.Dirs) == 0 {
			return errors.Wrapf(datasets.ErrInvalidArgument, "class %q (label %d) has no directories", class.Name, class.Label)
		}
	}
	return nil
}

// ColorModel used to convert images to the configured channels.
func (c *Config) ColorModel() (samples.ColorModel, error) {
	model, err := samples.ColorModelForChannels(c.Channels)
	if err != nil {
		return 0, errors.Wrap(datasets.ErrInvalidArgument, err.Error())
	}
	return model, nil
}

// SampleShape is the `[C, H, W]` shape of each sample.
func (c *Config) SampleShape() shapes.Shape {
	return shapes.Image(len(c.Channels), c.Height, c.Width)
}

// Pool returns the workers pool with the configured parallelism.
func (c *Config) Pool() *workerspool.Pool {
	if c.Parallelism == nil {
		return workerspool.New()
	}
	return workerspool.NewWithParallelism(*c.Parallelism)
}

// Rand returns the random number generator used for shuffling, and the seed it was created with.
func (c *Config) Rand() (*rand.Rand, int64) {
	var seed int64
	if c.Seed != nil {
		seed = *c.Seed
	} else {
		seed = time.Now().UnixNano()
		klog.Warningf("no seed configured, shuffling with seed %d: the train/test split is not reproducible", seed)
	}
	return rand.New(rand.NewSource(seed)), seed
}
