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

package handler

import (
	"context"
	"sync/atomic"

	"github.com/irqfuzz/irqscope/analysis"
	"github.com/irqfuzz/irqscope/analysis/config"
	"github.com/irqfuzz/irqscope/analysis/filters"
	"github.com/irqfuzz/irqscope/analysis/loader"
	"github.com/irqfuzz/irqscope/internal/funcutil"
)

// Groups splits paths into batches of at most size elements, preserving order.
func Groups(paths []string, size int) [][]string {
	if size <= 0 {
		size = len(paths)
	}
	var groups [][]string
	for len(paths) > 0 {
		n := size
		if n > len(paths) {
			n = len(paths)
		}
		groups = append(groups, paths[:n])
		paths = paths[n:]
	}
	return groups
}

type groupResult struct {
	records []*Record
	stats   filters.Stats
}

// RunParallel analyzes the handler names over disjoint module groups, one independent
// analyzer state per worker. A handler defined in several groups keeps its highest-confidence
// record; a handler defined in none yields a missing record. Workers check ctx between
// handlers, so cancellation finishes the handler in flight and returns what was produced.
func RunParallel(ctx context.Context, cfg *config.Config, logger *config.LogGroup,
	irPaths, handlers []string) ([]*Record, filters.Stats) {
	groups := Groups(irPaths, cfg.GroupSize)
	var progress int64

	worker := func(group []string) groupResult {
		modules, err := loader.Modules(group, 0, logger)
		if err != nil {
			logger.Warnf("skipping a module group: %v", err)
			return groupResult{}
		}
		state := analysis.NewState(cfg, logger, modules)
		a := New(state)
		var res groupResult
		for _, name := range handlers {
			if ctx.Err() != nil {
				break
			}
			if state.Symbols.LookupFunc(name, nil) == nil {
				continue
			}
			res.records = append(res.records, a.Analyze(name))
		}
		res.stats = state.Filters.Stats()
		logger.Infof("module group %d/%d done", atomic.AddInt64(&progress, 1), len(groups))
		return res
	}
	results := funcutil.MapParallel(groups, worker, cfg.NumThreads)

	var stats filters.Stats
	byName := map[string]*Record{}
	for _, r := range results {
		addStats(&stats, r.stats)
		for _, rec := range r.records {
			if prev, ok := byName[rec.HandlerName]; !ok || rec.Confidence > prev.Confidence {
				byName[rec.HandlerName] = rec
			}
		}
	}

	merged := make([]*Record, 0, len(handlers))
	for _, name := range handlers {
		rec, ok := byName[name]
		if !ok {
			rec = missingRecord(name)
		}
		merged = append(merged, rec)
	}
	return merged, stats
}

func addStats(into *filters.Stats, s filters.Stats) {
	into.Total += s.Total
	into.Kept += s.Kept
	into.CompilerSymbols += s.CompilerSymbols
	into.LowConfidence += s.LowConfidence
	into.Blacklisted += s.Blacklisted
	into.LevelPolicy += s.LevelPolicy
}
