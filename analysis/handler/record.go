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

// Package handler orchestrates the per-handler analysis phases and assembles the result
// records that go into the final document.
package handler

import (
	"github.com/irqfuzz/irqscope/analysis/asmregs"
	"github.com/irqfuzz/irqscope/analysis/funcptr"
	"github.com/irqfuzz/irqscope/analysis/irutil"
	"github.com/irqfuzz/irqscope/analysis/memory"
)

// AccessRecord is the serialized form of one memory access.
type AccessRecord struct {
	Kind          string `json:"kind"`
	Symbol        string `json:"symbol_name"`
	StructName    string `json:"struct_type_name,omitempty"`
	FieldName     string `json:"field_name,omitempty"`
	FieldIndex    int64  `json:"field_index,omitempty"`
	Offset        int64  `json:"offset"`
	PreciseOffset int64  `json:"precise_offset"`
	Size          int64  `json:"access_size"`
	IsWrite       bool   `json:"is_write"`
	IsAtomic      bool   `json:"is_atomic"`
	Confidence    int    `json:"confidence"`
	Location      string `json:"source_location,omitempty"`
	Chain         string `json:"chain_description,omitempty"`

	// Reason is set on accesses contributed through resolved indirect calls.
	Reason string `json:"reason,omitempty"`
}

// WriteRecord is the serialized form of one consolidated write.
type WriteRecord struct {
	TargetName string   `json:"target_name"`
	TargetKind string   `json:"target_kind"`
	Scope      string   `json:"scope"`
	Count      int      `json:"write_count"`
	Locations  []string `json:"source_locations"`
	IsCritical bool     `json:"is_critical"`
	Confidence int      `json:"confidence"`
	StructName string   `json:"struct_name,omitempty"`
	FieldName  string   `json:"field_name,omitempty"`
	FieldIndex int64    `json:"field_index,omitempty"`
	Offset     int64    `json:"offset"`
	Size       int64    `json:"size"`
	Path       string   `json:"path,omitempty"`
}

// CallRecord groups the call sites of one directly reached callee.
type CallRecord struct {
	Callee string   `json:"callee"`
	Count  int      `json:"call_count"`
	Sites  []string `json:"call_sites"`
}

// CandidateRecord is the serialized form of one indirect-call candidate.
type CandidateRecord struct {
	Name                   string   `json:"target_name"`
	Confidence             int      `json:"confidence"`
	Reasons                []string `json:"reasons"`
	Scope                  string   `json:"scope"`
	Module                 string   `json:"module,omitempty"`
	RequiresDeeperAnalysis bool     `json:"requires_deeper_analysis"`
}

// IndirectCallRecord attaches the resolved candidate list to an indirect call site.
type IndirectCallRecord struct {
	Site       string            `json:"call_site"`
	Candidates []CandidateRecord `json:"candidates"`
}

// FuzzingSummary condenses a handler record into the counts a fuzzer prioritizes on.
type FuzzingSummary struct {
	DevIDAccesses        int    `json:"dev_id_accesses"`
	GlobalAccesses       int    `json:"global_accesses"`
	HighConfidenceWrites int    `json:"high_confidence_writes"`
	MeaningfulCalls      int    `json:"meaningful_calls"`
	Priority             string `json:"priority"`
}

// Record is the full analysis result for one handler name.
type Record struct {
	HandlerName      string `json:"handler_name"`
	SourceFile       string `json:"source_file,omitempty"`
	AnalysisComplete bool   `json:"analysis_complete"`

	BasicBlockCount  int `json:"basic_block_count"`
	BranchCount      int `json:"branch_count"`
	InstructionCount int `json:"instruction_count"`

	DirectAccesses []AccessRecord `json:"direct_memory_accesses"`
	TotalAccesses  []AccessRecord `json:"total_memory_accesses"`
	Writes         []WriteRecord  `json:"consolidated_writes"`

	ModifiedGlobals []string `json:"modified_global_vars"`
	ModifiedStatics []string `json:"modified_static_vars"`
	Structs         []string `json:"accessed_structs"`

	DirectCalls        []CallRecord           `json:"direct_calls"`
	IndirectCalls      []IndirectCallRecord   `json:"indirect_calls"`
	FilteredIntrinsics int                    `json:"filtered_intrinsic_calls"`
	RegisterAccesses   []asmregs.RegisterAccess `json:"register_accesses,omitempty"`

	HasDeviceAccess   bool `json:"has_device_access"`
	HasInterruptOps   bool `json:"has_interrupt_ops"`
	UsesWorkqueue     bool `json:"uses_workqueue"`
	HasRecursiveCalls bool `json:"has_recursive_calls"`

	Confidence     int             `json:"confidence"`
	FuzzingSummary *FuzzingSummary `json:"fuzzing_summary,omitempty"`
}

// missingRecord is the result for a handler name absent from every loaded module.
func missingRecord(name string) *Record {
	return &Record{
		HandlerName:      name,
		AnalysisComplete: false,
		Confidence:       0,
		DirectAccesses:   []AccessRecord{},
		TotalAccesses:    []AccessRecord{},
		Writes:           []WriteRecord{},
		ModifiedGlobals:  []string{},
		ModifiedStatics:  []string{},
		Structs:          []string{},
	}
}

func accessRecord(a memory.Access) AccessRecord {
	return AccessRecord{
		Kind:          string(a.Kind),
		Symbol:        a.Symbol,
		StructName:    a.StructName,
		FieldName:     a.FieldName,
		FieldIndex:    a.FieldIndex,
		Offset:        a.Offset,
		PreciseOffset: a.PreciseOffset,
		Size:          a.Size,
		IsWrite:       a.IsWrite,
		IsAtomic:      a.IsAtomic,
		Confidence:    a.Confidence,
		Location:      a.Location,
		Chain:         a.Chain.Description(),
	}
}

func writeRecord(w *memory.Write) WriteRecord {
	return WriteRecord{
		TargetName: w.TargetName,
		TargetKind: w.TargetKind,
		Scope:      string(w.Scope),
		Count:      w.Count,
		Locations:  w.Locations,
		IsCritical: w.IsCritical,
		Confidence: w.Confidence,
		StructName: w.StructName,
		FieldName:  w.FieldName,
		FieldIndex: w.FieldIndex,
		Offset:     w.Offset,
		Size:       w.Size,
		Path:       w.Path,
	}
}

func candidateRecord(c funcptr.Candidate) CandidateRecord {
	moduleName := ""
	if c.Module != nil {
		moduleName = irutil.ModuleName(c.Module)
	}
	return CandidateRecord{
		Name:                   c.Name,
		Confidence:             c.Confidence,
		Reasons:                c.Reasons,
		Scope:                  string(c.Scope),
		Module:                 moduleName,
		RequiresDeeperAnalysis: c.RequiresDeeperAnalysis,
	}
}
