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

// Package analysis wires the analyzer components over a set of loaded IR modules.
package analysis

import (
	"time"

	"github.com/irqfuzz/irqscope/analysis/callgraph"
	"github.com/irqfuzz/irqscope/analysis/config"
	"github.com/irqfuzz/irqscope/analysis/dataflow"
	"github.com/irqfuzz/irqscope/analysis/filters"
	"github.com/irqfuzz/irqscope/analysis/funcptr"
	"github.com/irqfuzz/irqscope/analysis/memory"
	"github.com/irqfuzz/irqscope/analysis/pointsto"
	"github.com/irqfuzz/irqscope/analysis/symbols"
	"github.com/llir/llvm/ir"
)

// State owns one analyzer instance: the modules, the symbol table and every component with
// its caches. A State must not be shared between goroutines; parallel runs build one State
// per worker over disjoint module sets.
type State struct {
	Config     *config.Config
	Logger     *config.LogGroup
	Modules    []*ir.Module
	Symbols    *symbols.Table
	Origins    *dataflow.Resolver
	Classifier *memory.Classifier
	Summarizer *memory.Summarizer
	FuncPtrs   *funcptr.Resolver
	Walker     *callgraph.Walker
	Filters    *filters.Engine

	// PointsTo is nil when the precise engine is disabled or its solve ran out of budget.
	PointsTo *pointsto.Engine
}

// NewState builds the component graph over the loaded modules. When the points-to engine is
// enabled but fails to solve within budget, a single warning is logged and the heuristic
// resolver carries the run.
func NewState(cfg *config.Config, logger *config.LogGroup, modules []*ir.Module) *State {
	table := symbols.NewTable(modules)
	origins := dataflow.NewResolver(table, cfg.MaxDataFlowDepth)

	var engine *pointsto.Engine
	var precise funcptr.PointsTo
	if cfg.UsePointsTo {
		engine = pointsto.New(table, time.Duration(cfg.PointsToBudgetSeconds)*time.Second)
		start := time.Now()
		if err := engine.Solve(); err != nil {
			logger.Warnf("points-to engine unavailable, continuing with the built-in resolver: %v", err)
			engine = nil
		} else {
			logger.Infof("points-to solving done (%.2f s)", time.Since(start).Seconds())
			precise = engine
		}
	}

	funcPtrs := funcptr.NewResolver(table, origins, precise)
	classifier := memory.NewClassifier(table, cfg.MaxDataFlowDepth)

	return &State{
		Config:     cfg,
		Logger:     logger,
		Modules:    modules,
		Symbols:    table,
		Origins:    origins,
		Classifier: classifier,
		Summarizer: memory.NewSummarizer(table, classifier, origins),
		FuncPtrs:   funcPtrs,
		Walker:     callgraph.NewWalker(table, funcPtrs, cfg.MaxCallDepth),
		Filters:    filters.NewEngine(cfg),
		PointsTo:   engine,
	}
}
