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

// Package report assembles the top-level result document and writes it as JSON.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/irqfuzz/irqscope/analysis"
	"github.com/irqfuzz/irqscope/analysis/filters"
	"github.com/irqfuzz/irqscope/analysis/handler"
)

// Statistics are the aggregate counters over all handler records.
type Statistics struct {
	AnalyzedHandlers      int `json:"analyzed_handlers"`
	MissingHandlers       int `json:"missing_handlers"`
	DuplicateHandlers     int `json:"duplicate_handler_names"`
	TotalAccesses         int `json:"total_memory_accesses"`
	TotalWrites           int `json:"total_consolidated_writes"`
	IndirectCallSites     int `json:"indirect_call_sites"`
	ResolvedIndirectCalls int `json:"resolved_indirect_calls"`
	RegisterAccesses      int `json:"register_accesses"`
}

// Filtering summarizes the filter configuration and its per-reason drop counts.
type Filtering struct {
	Level      string        `json:"filter_level"`
	Threshold  int           `json:"confidence_threshold"`
	Statistics filters.Stats `json:"statistics"`
}

// Document is the top-level JSON result.
type Document struct {
	InterruptHandlers []*handler.Record `json:"interrupt_handlers"`
	TotalHandlers     int               `json:"total_handlers"`
	AnalysisTimestamp int64             `json:"analysis_timestamp"`
	AnalyzerVersion   string            `json:"analyzer_version"`
	EnhancedStats     Statistics        `json:"enhanced_statistics"`
	FilteringApplied  Filtering         `json:"filtering_applied"`
}

// New assembles the document. duplicates is the number of handler names dropped by input
// deduplication; level, threshold and stats describe the filter engine that was applied.
func New(records []*handler.Record, duplicates int, level string, threshold int, stats filters.Stats) *Document {
	doc := &Document{
		InterruptHandlers: records,
		TotalHandlers:     len(records),
		AnalysisTimestamp: time.Now().Unix(),
		AnalyzerVersion:   analysis.Version,
		FilteringApplied: Filtering{
			Level:      level,
			Threshold:  threshold,
			Statistics: stats,
		},
	}
	doc.EnhancedStats.DuplicateHandlers = duplicates
	for _, rec := range records {
		if !rec.AnalysisComplete {
			doc.EnhancedStats.MissingHandlers++
			continue
		}
		doc.EnhancedStats.AnalyzedHandlers++
		doc.EnhancedStats.TotalAccesses += len(rec.TotalAccesses)
		doc.EnhancedStats.TotalWrites += len(rec.Writes)
		doc.EnhancedStats.IndirectCallSites += len(rec.IndirectCalls)
		for _, ic := range rec.IndirectCalls {
			if len(ic.Candidates) > 0 {
				doc.EnhancedStats.ResolvedIndirectCalls++
			}
		}
		doc.EnhancedStats.RegisterAccesses += len(rec.RegisterAccesses)
	}
	return doc
}

// WriteJSON writes the document to path, indented for human consumption.
func (d *Document) WriteJSON(path string) error {
	b, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("could not serialize the result document: %w", err)
	}
	if err := os.WriteFile(path, b, 0644); err != nil {
		return fmt.Errorf("could not write %s: %w", path, err)
	}
	return nil
}
