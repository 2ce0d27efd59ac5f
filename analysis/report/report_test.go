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

package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/irqfuzz/irqscope/analysis/filters"
	"github.com/irqfuzz/irqscope/analysis/handler"
)

func sampleRecords() []*handler.Record {
	analyzed := &handler.Record{
		HandlerName:      "e1000_intr",
		AnalysisComplete: true,
		Confidence:       75,
		TotalAccesses:    []handler.AccessRecord{{Kind: "global_variable", Symbol: "irq_count"}},
		Writes:           []handler.WriteRecord{{TargetName: "irq_count", Confidence: 95}},
		IndirectCalls: []handler.IndirectCallRecord{
			{Site: "line 12 (in e1000_intr)", Candidates: []handler.CandidateRecord{{Name: "cb", Confidence: 85}}},
			{Site: "line 20 (in e1000_intr)"},
		},
	}
	missing := &handler.Record{HandlerName: "ghost_intr", AnalysisComplete: false}
	return []*handler.Record{analyzed, missing}
}

func TestNewDocumentStatistics(t *testing.T) {
	doc := New(sampleRecords(), 1, "moderate", 50, filters.Stats{Total: 4, Kept: 3, LowConfidence: 1})

	if doc.TotalHandlers != 2 || doc.AnalyzerVersion == "" || doc.AnalysisTimestamp == 0 {
		t.Errorf("document header = %+v", doc)
	}
	s := doc.EnhancedStats
	if s.AnalyzedHandlers != 1 || s.MissingHandlers != 1 || s.DuplicateHandlers != 1 {
		t.Errorf("handler counters = %+v", s)
	}
	if s.TotalAccesses != 1 || s.TotalWrites != 1 {
		t.Errorf("access counters = %+v", s)
	}
	if s.IndirectCallSites != 2 || s.ResolvedIndirectCalls != 1 {
		t.Errorf("indirect counters = %+v", s)
	}
	if doc.FilteringApplied.Level != "moderate" || doc.FilteringApplied.Statistics.LowConfidence != 1 {
		t.Errorf("filtering summary = %+v", doc.FilteringApplied)
	}
}

func TestWriteJSONRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	doc := New(sampleRecords(), 0, "none", 0, filters.Stats{})
	if err := doc.WriteJSON(path); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back failed: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	for _, key := range []string{"interrupt_handlers", "total_handlers", "analysis_timestamp",
		"analyzer_version", "enhanced_statistics", "filtering_applied"} {
		if _, ok := decoded[key]; !ok {
			t.Errorf("output document is missing %q", key)
		}
	}
}

func TestWriteJSONUnwritablePath(t *testing.T) {
	doc := New(nil, 0, "none", 0, filters.Stats{})
	if err := doc.WriteJSON(filepath.Join(t.TempDir(), "missing", "out.json")); err == nil {
		t.Errorf("expected an error for an unwritable path")
	}
}
