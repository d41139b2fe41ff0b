// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package commandline

import (
	"flag"
	"fmt"
	"slices"
	"strings"

	"github.com/gomlx/facepatches/pkg/data/pipeline"
	"github.com/gomlx/facepatches/pkg/support/fsutil"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// ParseConfigSettings from settings -- typically the contents of a flag set by the user.
// The settings are a list separated by ";": e.g.: "ratio=0.1;patches=all;channels=y,u,v".
//
// Each "param" must be one of the top level options of pipeline.Config, and the value is parsed as YAML.
// Values with a "," that are not already a YAML list are taken as a list.
//
// A setting "file:<path>" reads settings from the file, one or more per line, and lines starting with "#"
// are comments.
//
// It returns the names of the parameters set, in order.
//
// Example usage:
//
//	func main() {
//		config := pipeline.DefaultConfig()
//		settings := commandline.CreateConfigSettingsFlag(config, "")
//		flag.Parse()
//		paramsSet, err := commandline.ParseConfigSettings(afero.NewOsFs(), config, *settings)
//		if err != nil { panic(err) }
//		fmt.Println(commandline.SprintModifiedConfigSettings(config, paramsSet))
//		...
//	}
func ParseConfigSettings(fs afero.Fs, config *pipeline.Config, settings string) (paramsSet []string, err error) {
	for _, setting := range strings.Split(settings, ";") {
		paramsSet, err = parseConfigSetting(fs, config, setting, paramsSet)
		if err != nil {
			return
		}
	}
	return
}

func parseConfigSetting(fs afero.Fs, config *pipeline.Config, setting string, paramsSet []string) (newParamsSet []string, err error) {
	newParamsSet = paramsSet
	setting = strings.TrimSpace(setting)
	if setting == "" {
		return
	}
	if strings.HasPrefix(setting, "file:") {
		// Read parameters from a file.
		filePath := strings.TrimPrefix(setting, "file:")
		if filePath, err = fsutil.ReplaceTildeInDir(filePath); err != nil {
			return
		}
		var contents []byte
		contents, err = afero.ReadFile(fs, filePath)
		if err != nil {
			err = errors.Wrapf(err, "failed to read settings from file %q", filePath)
			return
		}
		for _, line := range strings.Split(string(contents), "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			for _, setting := range strings.Split(line, ";") {
				newParamsSet, err = parseConfigSetting(fs, config, setting, newParamsSet)
				if err != nil {
					return
				}
			}
		}
		return
	}

	param, valueStr, found := strings.Cut(setting, "=")
	if !found {
		err = errors.Errorf("can't parse settings %q: each setting requires the format \"<param>=<value>\"", setting)
		return
	}
	param, valueStr = strings.TrimSpace(param), strings.TrimSpace(valueStr)
	if !slices.Contains(ConfigParams(config), param) {
		err = errors.Errorf("unknown parameter %q in setting %q, known parameters are %q", param, setting, ConfigParams(config))
		return
	}
	if strings.Contains(valueStr, ",") && !strings.HasPrefix(valueStr, "[") {
		valueStr = "[" + valueStr + "]"
	}
	decoder := yaml.NewDecoder(strings.NewReader(fmt.Sprintf("%s: %s\n", param, valueStr)))
	decoder.KnownFields(true)
	if err = decoder.Decode(config); err != nil {
		err = errors.Wrapf(err, "failed to parse value %q for parameter %q", valueStr, param)
		return
	}
	newParamsSet = append(newParamsSet, param)
	return
}

// configValues returns the top level options of the configuration, with their current values.
func configValues(config *pipeline.Config) map[string]any {
	values := make(map[string]any)
	data, err := yaml.Marshal(config)
	if err == nil {
		err = yaml.Unmarshal(data, &values)
	}
	if err != nil {
		return nil
	}
	// Optional values are omitted when not set.
	for _, param := range []string{"seed", "parallelism"} {
		if _, found := values[param]; !found {
			values[param] = nil
		}
	}
	return values
}

// ConfigParams returns the sorted names of the options of the configuration that can be set.
func ConfigParams(config *pipeline.Config) []string {
	values := configValues(config)
	params := make([]string, 0, len(values))
	for param := range values {
		params = append(params, param)
	}
	slices.Sort(params)
	return params
}

// CreateConfigSettingsFlag create a string flag with the given flagName (if empty it will be named
// "set") and with a description of the options of the configuration and their current values.
//
// The flag should be created before the call to `flags.Parse()`. See example in ParseConfigSettings.
func CreateConfigSettingsFlag(config *pipeline.Config, flagName string) *string {
	if flagName == "" {
		flagName = "set"
	}
	parts := []string{
		`Set configuration options, overriding the configuration file. ` +
			`It should be a list of elements "param=value" separated by ";", values are parsed as YAML. ` +
			`It can also be given an entry like: "file:settings_file.txt", in ` +
			`which case the file will be read and the settings will be parsed, ` +
			`with new-lines working as ";" to separate settings and lines starting with "#" are considered comments. ` +
			`Current available parameters that can be set:`,
	}
	values := configValues(config)
	for _, param := range ConfigParams(config) {
		parts = append(parts, fmt.Sprintf("%q: default value is %v", param, values[param]))
	}
	var settings string
	flag.StringVar(&settings, flagName, "", strings.Join(parts, "\n"))
	return &settings
}

// SprintModifiedConfigSettings pretty-print the values of the parameters set.
func SprintModifiedConfigSettings(config *pipeline.Config, paramsSet []string) string {
	var parts []string
	paramsSet = slices.Clone(paramsSet)
	slices.Sort(paramsSet)
	paramsSet = slices.Compact(paramsSet)
	values := configValues(config)
	for _, param := range paramsSet {
		value, found := values[param]
		if !found {
			continue
		}
		parts = append(parts, fmt.Sprintf("\t%q: %v", param, value))
	}
	return strings.Join(parts, "\n")
}
