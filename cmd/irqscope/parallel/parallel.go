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

// Package parallel implements the multi-worker irqscope front-end: IR modules are split into
// groups and analyzed by independent workers, each with its own analyzer state.
package parallel

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/irqfuzz/irqscope/analysis"
	"github.com/irqfuzz/irqscope/analysis/config"
	"github.com/irqfuzz/irqscope/analysis/filters"
	"github.com/irqfuzz/irqscope/analysis/handler"
	"github.com/irqfuzz/irqscope/analysis/report"
	"github.com/irqfuzz/irqscope/cmd/irqscope/tools"
	"github.com/irqfuzz/irqscope/internal/formatutil"
)

// Usage is the help text of the parallel sub-command.
const Usage = ` Analyze interrupt handlers with independent workers over module groups.
Usage:
  irqscope parallel [options] -compile-commands compile_commands.json -handlers handlers.json
Examples:
  % irqscope parallel -threads 8 -group-size 200 -compile-commands build/compile_commands.json -handlers handlers.json
`

// Flags represents the parsed flags of the parallel sub-command.
type Flags struct {
	tools.CommonFlags
	threads   int
	groupSize int
}

// NewFlags returns the parsed parallel flags for args.
func NewFlags(args []string) (Flags, error) {
	unparsed := tools.NewUnparsedCommonFlags("parallel")
	threads := unparsed.FlagSet.Int("threads", -1, "number of workers, overrides config")
	groupSize := unparsed.FlagSet.Int("group-size", -1, "IR modules per worker group, overrides config")
	tools.SetUsage(unparsed.FlagSet, Usage)
	if err := unparsed.FlagSet.Parse(args); err != nil {
		return Flags{}, fmt.Errorf("failed to parse command parallel with args %v: %v", args, err)
	}
	common := tools.CommonFlags{
		FlagSet:         unparsed.FlagSet,
		CompileCommands: *unparsed.CompileCommands,
		Handlers:        *unparsed.Handlers,
		Output:          *unparsed.Output,
		ConfigPath:      *unparsed.ConfigPath,
		MaxModules:      *unparsed.MaxModules,
		Filter:          *unparsed.Filter,
		MinConfidence:   *unparsed.MinConfidence,
		DisablePointsTo: *unparsed.DisablePointsTo,
		Verbose:         *unparsed.Verbose,
		Stats:           *unparsed.Stats,
	}
	if common.CompileCommands == "" {
		return Flags{}, fmt.Errorf("-compile-commands is required")
	}
	if common.Handlers == "" {
		return Flags{}, fmt.Errorf("-handlers is required")
	}
	return Flags{CommonFlags: common, threads: *threads, groupSize: *groupSize}, nil
}

// Run executes the parallel analysis with flags.
func Run(flags Flags) error {
	cfg, err := tools.LoadConfig(flags.CommonFlags)
	if err != nil {
		return err
	}
	if flags.threads > 0 {
		cfg.NumThreads = flags.threads
	}
	if flags.groupSize > 0 {
		cfg.GroupSize = flags.groupSize
	}
	logger := config.NewLogGroup(cfg)
	logger.Infof(formatutil.Faint("irqscope parallel - " + analysis.Version))

	irPaths, handlers, duplicates, err := tools.LoadInputs(flags.CommonFlags, cfg)
	if err != nil {
		return err
	}
	if cfg.MaxModules > 0 && len(irPaths) > cfg.MaxModules {
		irPaths = irPaths[:cfg.MaxModules]
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	start := time.Now()
	records, stats := handler.RunParallel(ctx, cfg, logger, irPaths, handlers)
	logger.Infof("parallel analysis of %d handlers took %3.4f s", len(handlers), time.Since(start).Seconds())

	eng := filters.NewEngine(cfg)
	doc := report.New(records, duplicates, eng.Level(), eng.Threshold(), stats)
	if err := doc.WriteJSON(cfg.OutputPath); err != nil {
		return err
	}
	fmt.Println(formatutil.Green("results written to " + cfg.OutputPath))
	if cfg.ShowStats {
		tools.PrintStats(doc)
	}
	return nil
}
