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

// Package tools contains utility types and functions for irqscope tool frontends.
package tools

import (
	"flag"
	"fmt"
	"os"

	"github.com/irqfuzz/irqscope/analysis/config"
)

// UnparsedCommonFlags represents an unparsed CLI sub-command flag set.
type UnparsedCommonFlags struct {
	FlagSet         *flag.FlagSet
	CompileCommands *string
	Handlers        *string
	Output          *string
	ConfigPath      *string
	MaxModules      *int
	Filter          *string
	MinConfidence   *int
	DisablePointsTo *bool
	Verbose         *bool
	Stats           *bool
}

// NewUnparsedCommonFlags returns an unparsed flag set with a given name. This is useful for
// creating sub-commands that need flags in addition to the shared ones.
func NewUnparsedCommonFlags(name string) UnparsedCommonFlags {
	cmd := flag.NewFlagSet(name, flag.ExitOnError)
	return UnparsedCommonFlags{
		FlagSet:         cmd,
		CompileCommands: cmd.String("compile-commands", "", "path to the compilation database (required)"),
		Handlers:        cmd.String("handlers", "", "path to the handler-list document (required)"),
		Output:          cmd.String("output", "", "output path for the result document, overrides config"),
		ConfigPath:      cmd.String("config", "", "config file path for analysis"),
		MaxModules:      cmd.Int("max-modules", -1, "cap on IR modules loaded, 0 = unlimited, overrides config"),
		Filter:          cmd.String("filter", "", "filter level: none, basic, moderate, strict or fuzzing, overrides config"),
		MinConfidence:   cmd.Int("min-confidence", -1, "confidence threshold override in [0, 100]"),
		DisablePointsTo: cmd.Bool("disable-pointsto", false, "force the built-in resolver without the points-to engine"),
		Verbose:         cmd.Bool("verbose", false, "verbose printing on standard output"),
		Stats:           cmd.Bool("stats", false, "print aggregate statistics after the analysis"),
	}
}

// CommonFlags represents parsed CLI sub-command flags shared by analyze and parallel.
type CommonFlags struct {
	FlagSet         *flag.FlagSet
	CompileCommands string
	Handlers        string
	Output          string
	ConfigPath      string
	MaxModules      int
	Filter          string
	MinConfidence   int
	DisablePointsTo bool
	Verbose         bool
	Stats           bool
}

// NewCommonFlags returns a parsed flag set with a given name. Returns an error if args are
// invalid or a required input path is missing. Prints cmdUsage along with flag docs as the
// --help message.
func NewCommonFlags(name string, args []string, cmdUsage string) (CommonFlags, error) {
	flags := NewUnparsedCommonFlags(name)
	SetUsage(flags.FlagSet, cmdUsage)
	if err := flags.FlagSet.Parse(args); err != nil {
		return CommonFlags{}, fmt.Errorf("failed to parse command %s with args %v: %v", name, args, err)
	}
	parsed := CommonFlags{
		FlagSet:         flags.FlagSet,
		CompileCommands: *flags.CompileCommands,
		Handlers:        *flags.Handlers,
		Output:          *flags.Output,
		ConfigPath:      *flags.ConfigPath,
		MaxModules:      *flags.MaxModules,
		Filter:          *flags.Filter,
		MinConfidence:   *flags.MinConfidence,
		DisablePointsTo: *flags.DisablePointsTo,
		Verbose:         *flags.Verbose,
		Stats:           *flags.Stats,
	}
	if parsed.CompileCommands == "" {
		return CommonFlags{}, fmt.Errorf("-compile-commands is required")
	}
	if parsed.Handlers == "" {
		return CommonFlags{}, fmt.Errorf("-handlers is required")
	}
	return parsed, nil
}

// SetUsage sets cmd's usage (for --help flag) to output the string cmdUsage followed by each
// flag's documentation.
func SetUsage(cmd *flag.FlagSet, cmdUsage string) {
	cmd.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s\n", cmdUsage)
		fmt.Fprintf(os.Stderr, "Options:\n")
		cmd.VisitAll(func(f *flag.Flag) {
			fmt.Fprintf(os.Stderr, "  -%s: %s (default: %q)\n", f.Name, f.Usage, f.DefValue)
		})
	}
}

// LoadConfig loads the config file named by flags, or the defaults when none is given, and
// applies the command-line overrides on top. The merged config is validated.
func LoadConfig(flags CommonFlags) (*config.Config, error) {
	cfg := config.NewDefault()
	if flags.ConfigPath != "" {
		config.SetGlobalConfig(flags.ConfigPath)
		loaded, err := config.LoadGlobal()
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %v", flags.ConfigPath, err)
		}
		cfg = loaded
	}

	if flags.Output != "" {
		cfg.OutputPath = flags.Output
	}
	if flags.MaxModules >= 0 {
		cfg.MaxModules = flags.MaxModules
	}
	if flags.Filter != "" {
		cfg.FilterLevel = flags.Filter
	}
	if flags.MinConfidence >= 0 {
		cfg.MinConfidence = flags.MinConfidence
	}
	if flags.DisablePointsTo {
		cfg.UsePointsTo = false
	}
	if flags.Verbose {
		cfg.LogLevel = int(config.DebugLevel)
	}
	if flags.Stats {
		cfg.ShowStats = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
