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

package tools

import (
	"fmt"

	"github.com/irqfuzz/irqscope/analysis/compiledb"
	"github.com/irqfuzz/irqscope/analysis/config"
	"github.com/irqfuzz/irqscope/analysis/report"
)

// LoadInputs reads the compilation database and the handler list named by flags. It returns
// the candidate IR paths, the deduplicated handler names and the duplicate-name count.
// An empty handler list is an input error.
func LoadInputs(flags CommonFlags, cfg *config.Config) ([]string, []string, int, error) {
	entries, err := compiledb.Load(flags.CompileCommands)
	if err != nil {
		return nil, nil, 0, err
	}
	irPaths := compiledb.IRPaths(entries, cfg.IRExtension)
	if len(irPaths) == 0 {
		return nil, nil, 0, fmt.Errorf("no IR file candidates in %s", flags.CompileCommands)
	}

	handlers, duplicates, err := compiledb.LoadHandlers(flags.Handlers)
	if err != nil {
		return nil, nil, 0, err
	}
	if len(handlers) == 0 {
		return nil, nil, 0, fmt.Errorf("no handlers to analyze in %s", flags.Handlers)
	}
	return irPaths, handlers, duplicates, nil
}

// PrintStats prints the aggregate counters of the result document to standard output.
func PrintStats(doc *report.Document) {
	s := doc.EnhancedStats
	fmt.Printf("handlers analyzed:        %d\n", s.AnalyzedHandlers)
	fmt.Printf("handlers missing:         %d\n", s.MissingHandlers)
	fmt.Printf("duplicate handler names:  %d\n", s.DuplicateHandlers)
	fmt.Printf("memory accesses:          %d\n", s.TotalAccesses)
	fmt.Printf("consolidated writes:      %d\n", s.TotalWrites)
	fmt.Printf("indirect call sites:      %d (resolved %d)\n", s.IndirectCallSites, s.ResolvedIndirectCalls)
	fmt.Printf("register accesses:        %d\n", s.RegisterAccesses)
	f := doc.FilteringApplied
	fmt.Printf("filter level:             %s (threshold %d)\n", f.Level, f.Threshold)
	fmt.Printf("filtered records:         %d compiler, %d low-confidence, %d deny-listed, %d level policy\n",
		f.Statistics.CompilerSymbols, f.Statistics.LowConfidence,
		f.Statistics.Blacklisted, f.Statistics.LevelPolicy)
}
