// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"fmt"
	"os"
	"path"

	"github.com/irqfuzz/irqscope/internal/funcutil"
	"gopkg.in/yaml.v3"
)

var (
	// The global config file
	configFile string
)

// SetGlobalConfig sets the global config filename
func SetGlobalConfig(filename string) {
	configFile = filename
}

// LoadGlobal loads the config file that has been set by SetGlobalConfig
func LoadGlobal() (*Config, error) {
	return Load(configFile)
}

// FilterLevels are the accepted values of Options.FilterLevel.
var FilterLevels = []string{"none", "basic", "moderate", "strict", "fuzzing"}

// Config holds the analysis settings loaded from a yaml file.
// If some field is not defined in the config file, it will be empty/zero in the struct.
// Private fields are not populated from a yaml file, but computed after initialization.
type Config struct {
	Options `yaml:",inline"`

	sourceFile string

	// FilterWhitelist lists symbol or struct names that survive filtering regardless of level policy
	FilterWhitelist []string `yaml:"filter-whitelist"`

	// FilterBlacklist lists symbol or struct names that are always dropped by the filter engine
	FilterBlacklist []string `yaml:"filter-blacklist"`
}

// Options are the settings that can be overridden from the command line.
type Options struct {
	// OutputPath is the path of the JSON result document
	OutputPath string `yaml:"output-path"`

	// IRExtension is the file extension substituted for the source extension when mapping
	// compilation-database entries to IR files
	IRExtension string `yaml:"ir-extension"`

	// MaxModules caps the number of IR modules loaded. 0 means unlimited.
	MaxModules int `yaml:"max-modules"`

	// FilterLevel selects the post-analysis filtering policy, one of FilterLevels
	FilterLevel string `yaml:"filter-level"`

	// MinConfidence overrides the confidence threshold of the selected filter level when > 0
	MinConfidence int `yaml:"min-confidence"`

	// IncludeConstantAddresses keeps constant-address accesses under the strict and fuzzing levels
	IncludeConstantAddresses bool `yaml:"include-constant-addresses"`

	// IncludeDevIDChains keeps device-pointer chains under the strict level
	IncludeDevIDChains bool `yaml:"include-dev-id-chains"`

	// UsePointsTo enables the Andersen points-to engine for indirect call resolution
	UsePointsTo bool `yaml:"use-points-to"`

	// PointsToBudgetSeconds is the soft time budget of the points-to engine. On expiry the
	// engine is discarded and the built-in resolver is used. 0 means no budget.
	PointsToBudgetSeconds int `yaml:"points-to-budget-seconds"`

	// MaxCallDepth bounds the call-graph traversal from each handler root
	MaxCallDepth int `yaml:"max-call-depth"`

	// MaxDataFlowDepth bounds the recursion of the value-origin resolver
	MaxDataFlowDepth int `yaml:"max-data-flow-depth"`

	// NumThreads is the number of workers in parallel mode
	NumThreads int `yaml:"num-threads"`

	// GroupSize is the number of IR modules per worker group in parallel mode
	GroupSize int `yaml:"group-size"`

	// LogLevel controls the verbosity of the tool
	LogLevel int `yaml:"log-level"`

	// ShowStats prints aggregate statistics after the analysis
	ShowStats bool `yaml:"show-stats"`
}

// NewDefault returns the default config.
func NewDefault() *Config {
	return &Config{
		sourceFile:      "",
		FilterWhitelist: nil,
		FilterBlacklist: nil,
		Options: Options{
			OutputPath:               "irq_analysis_results.json",
			IRExtension:              DefaultIRExtension,
			MaxModules:               0,
			FilterLevel:              "moderate",
			MinConfidence:            0,
			IncludeConstantAddresses: true,
			IncludeDevIDChains:       true,
			UsePointsTo:              false,
			PointsToBudgetSeconds:    DefaultPointsToBudgetSeconds,
			MaxCallDepth:             DefaultMaxCallDepth,
			MaxDataFlowDepth:         DefaultMaxDataFlowDepth,
			NumThreads:               DefaultNumThreads,
			GroupSize:                DefaultGroupSize,
			LogLevel:                 int(InfoLevel),
			ShowStats:                false,
		},
	}
}

// Load reads a configuration from a file
func Load(filename string) (*Config, error) {
	cfg := NewDefault()
	b, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("could not read config file: %w", err)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("could not unmarshal config file: %w", err)
	}

	cfg.sourceFile = filename

	// If logLevel has not been specified (i.e. it is 0) set the default to Info
	if cfg.LogLevel == 0 {
		cfg.LogLevel = int(InfoLevel)
	}

	if cfg.MaxCallDepth <= 0 {
		cfg.MaxCallDepth = DefaultMaxCallDepth
	}
	if cfg.MaxDataFlowDepth <= 0 {
		cfg.MaxDataFlowDepth = DefaultMaxDataFlowDepth
	}
	if cfg.IRExtension == "" {
		cfg.IRExtension = DefaultIRExtension
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the config values that come from user input.
func (c *Config) Validate() error {
	if !funcutil.Contains(FilterLevels, c.FilterLevel) {
		return fmt.Errorf("invalid filter level %q, expected one of %v", c.FilterLevel, FilterLevels)
	}
	if c.MinConfidence < 0 || c.MinConfidence > 100 {
		return fmt.Errorf("min-confidence must be in [0, 100], got %d", c.MinConfidence)
	}
	if c.NumThreads < 0 {
		return fmt.Errorf("num-threads must be >= 0, got %d", c.NumThreads)
	}
	if c.GroupSize < 0 {
		return fmt.Errorf("group-size must be >= 0, got %d", c.GroupSize)
	}
	if c.MaxModules < 0 {
		return fmt.Errorf("max-modules must be >= 0, got %d", c.MaxModules)
	}
	return nil
}

// RelPath returns filename path relative to the config source file
func (c Config) RelPath(filename string) string {
	return path.Join(path.Dir(c.sourceFile), filename)
}

// Verbose returns true if the configuration verbosity setting is larger than Info (i.e. Debug or Trace)
func (c Config) Verbose() bool {
	return c.LogLevel >= int(DebugLevel)
}

// ExceedsMaxCallDepth returns true if the input exceeds the maximum call depth parameter of the
// configuration. If the configuration setting is <= 0, this always returns false.
func (c Config) ExceedsMaxCallDepth(d int) bool {
	if c.MaxCallDepth <= 0 {
		return false
	}
	return d > c.MaxCallDepth
}
