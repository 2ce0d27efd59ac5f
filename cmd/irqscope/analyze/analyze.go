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

// Package analyze implements the single-threaded irqscope front-end: all IR modules are
// loaded into one analyzer state and every handler is analyzed in sequence.
package analyze

import (
	"fmt"
	"time"

	"github.com/irqfuzz/irqscope/analysis"
	"github.com/irqfuzz/irqscope/analysis/config"
	"github.com/irqfuzz/irqscope/analysis/handler"
	"github.com/irqfuzz/irqscope/analysis/loader"
	"github.com/irqfuzz/irqscope/analysis/report"
	"github.com/irqfuzz/irqscope/cmd/irqscope/tools"
	"github.com/irqfuzz/irqscope/internal/formatutil"
)

// Usage is the help text of the analyze sub-command.
const Usage = ` Analyze the memory footprint of interrupt handlers.
Usage:
  irqscope analyze [options] -compile-commands compile_commands.json -handlers handlers.json
Examples:
  % irqscope analyze -compile-commands build/compile_commands.json -handlers handlers.json -filter strict
`

// Flags represents the parsed flags of the analyze sub-command.
type Flags struct {
	tools.CommonFlags
}

// NewFlags returns the parsed analyze flags for args.
func NewFlags(args []string) (Flags, error) {
	flags, err := tools.NewCommonFlags("analyze", args, Usage)
	if err != nil {
		return Flags{}, err
	}
	return Flags{CommonFlags: flags}, nil
}

// Run executes the analysis with flags.
func Run(flags Flags) error {
	cfg, err := tools.LoadConfig(flags.CommonFlags)
	if err != nil {
		return err
	}
	logger := config.NewLogGroup(cfg)
	logger.Infof(formatutil.Faint("irqscope analyze - " + analysis.Version))

	irPaths, handlers, duplicates, err := tools.LoadInputs(flags.CommonFlags, cfg)
	if err != nil {
		return err
	}

	modules, err := loader.Modules(irPaths, cfg.MaxModules, logger)
	if err != nil {
		return err
	}
	state := analysis.NewState(cfg, logger, modules)

	start := time.Now()
	records := handler.New(state).AnalyzeAll(handlers)
	logger.Infof("analysis of %d handlers took %3.4f s", len(handlers), time.Since(start).Seconds())

	doc := report.New(records, duplicates, state.Filters.Level(), state.Filters.Threshold(), state.Filters.Stats())
	if err := doc.WriteJSON(cfg.OutputPath); err != nil {
		return err
	}
	fmt.Println(formatutil.Green("results written to " + cfg.OutputPath))
	if cfg.ShowStats {
		tools.PrintStats(doc)
	}
	return nil
}
