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
	"sort"
	"strings"

	"github.com/irqfuzz/irqscope/analysis"
	"github.com/irqfuzz/irqscope/analysis/asmregs"
	"github.com/irqfuzz/irqscope/analysis/callgraph"
	"github.com/irqfuzz/irqscope/analysis/irutil"
	"github.com/irqfuzz/irqscope/analysis/memory"
	"github.com/irqfuzz/irqscope/internal/funcutil"
	"github.com/llir/llvm/ir"
)

// interruptKeywords and deviceKeywords classify reached callees by name.
var interruptKeywords = []string{
	"irq", "interrupt", "disable", "enable", "mask", "unmask",
	"ack", "eoi", "handler", "isr", "softirq",
}

var deviceKeywords = []string{
	"pci", "device", "dev", "read", "write", "reg", "mmio",
	"ioread", "iowrite", "inb", "outb", "readl", "writel",
}

// Analyzer runs the analysis phases per handler over one shared state. Not safe for
// concurrent use; parallel runs build one analyzer per worker.
type Analyzer struct {
	state *analysis.State
}

// New returns an analyzer over the given state.
func New(state *analysis.State) *Analyzer {
	return &Analyzer{state: state}
}

// AnalyzeAll produces one record per handler name, in input order.
func (a *Analyzer) AnalyzeAll(names []string) []*Record {
	records := make([]*Record, 0, len(names))
	for _, name := range names {
		records = append(records, a.Analyze(name))
		a.state.Logger.Infof("analyzed handler %s (%d/%d)", name, len(records), len(names))
	}
	return records
}

// Analyze runs the full pipeline for one handler name. A name absent from every loaded
// module yields an incomplete record with confidence 0; analysis of the remaining handlers
// is unaffected.
func (a *Analyzer) Analyze(name string) *Record {
	entry := a.state.Symbols.LookupFunc(name, nil)
	if entry == nil || irutil.IsDeclaration(entry) {
		a.state.Logger.Warnf("handler %s is not defined in any loaded module", name)
		return missingRecord(name)
	}

	rec := &Record{HandlerName: name, AnalysisComplete: true}
	if m := a.state.Symbols.FuncModule[entry]; m != nil {
		rec.SourceFile = irutil.ModuleName(m)
	}
	countComplexity(entry, rec)

	info := a.state.Walker.Walk(entry)
	summary := a.state.Summarizer.Summarize(info.Reached)

	eng := a.state.Filters
	direct := eng.FilterAccesses(a.state.Classifier.FunctionAccesses(entry))
	total := eng.FilterAccesses(summary.Accesses)
	writes := eng.FilterWrites(summary.Writes)

	rec.DirectAccesses = funcutil.Map(direct, accessRecord)
	rec.TotalAccesses = funcutil.Map(total, accessRecord)
	rec.Writes = funcutil.Map(writes, writeRecord)
	rec.ModifiedGlobals = eng.FilterNames(summary.ModifiedGlobals)
	rec.ModifiedStatics = eng.FilterNames(summary.ModifiedStatics)
	rec.Structs = eng.FilterNames(summary.Structs)

	a.attachCalls(rec, info)
	a.attachIndirectImpact(rec, info)
	rec.RegisterAccesses = asmregs.Collect(entry)
	rec.HasRecursiveCalls = info.HasRecursiveCalls()
	a.detectFeatures(rec, info, total)

	rec.Confidence = overallConfidence(rec)
	rec.FuzzingSummary = fuzzingSummary(rec)
	normalize(rec)
	return rec
}

// countComplexity fills the entry-function size metrics. Conditional branches and switches
// count as branch points.
func countComplexity(f *ir.Func, rec *Record) {
	rec.BasicBlockCount = len(f.Blocks)
	for _, block := range f.Blocks {
		rec.InstructionCount += len(block.Insts)
		switch block.Term.(type) {
		case *ir.TermCondBr, *ir.TermSwitch:
			rec.BranchCount++
		}
	}
}

// attachCalls converts the walker output into call records and counts the intrinsic call
// sites the walker filtered out.
func (a *Analyzer) attachCalls(rec *Record, info *callgraph.Info) {
	names := make([]string, 0, len(info.CallSites))
	for name := range info.CallSites {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		sites := info.CallSites[name]
		rec.DirectCalls = append(rec.DirectCalls, CallRecord{
			Callee: name,
			Count:  len(sites),
			Sites:  sites,
		})
	}

	for _, f := range info.Reached {
		for _, block := range f.Blocks {
			for _, inst := range block.Insts {
				call, ok := inst.(*ir.InstCall)
				if !ok {
					continue
				}
				if callee, ok := irutil.DirectCallee(call); ok && callgraph.IsInternalFunc(callee.Name()) {
					rec.FilteredIntrinsics++
				}
			}
		}
	}
}

// attachIndirectImpact records each indirect site with its candidate list and merges the
// candidates' own accesses into the total set, downscaled by the candidate confidence and
// tagged with the resolution reason.
func (a *Analyzer) attachIndirectImpact(rec *Record, info *callgraph.Info) {
	for _, site := range info.IndirectSites {
		candidates := info.IndirectCandidates[site]
		rec.IndirectCalls = append(rec.IndirectCalls, IndirectCallRecord{
			Site:       site,
			Candidates: funcutil.Map(candidates, candidateRecord),
		})

		for _, c := range candidates {
			if c.Target == nil || irutil.IsDeclaration(c.Target) {
				continue
			}
			reason := "unresolved"
			if len(c.Reasons) > 0 {
				reason = c.Reasons[0]
			}
			scaled := a.state.Classifier.FunctionAccesses(c.Target)
			for i := range scaled {
				scaled[i].Confidence = scaled[i].Confidence * c.Confidence / 100
			}
			for _, access := range a.state.Filters.FilterAccesses(scaled) {
				r := accessRecord(access)
				r.Reason = "via_indirect_call:" + reason
				rec.TotalAccesses = append(rec.TotalAccesses, r)
			}
		}
	}
}

// detectFeatures derives the device, interrupt-op and workqueue flags from the reached
// callee names and from the access set.
func (a *Analyzer) detectFeatures(rec *Record, info *callgraph.Info, total []memory.Access) {
	for _, access := range total {
		if access.Chain.Head().Kind == memory.ChainParamDevID {
			rec.HasDeviceAccess = true
			break
		}
	}

	var callees []string
	for name := range info.CallSites {
		callees = append(callees, name)
	}
	for _, ic := range rec.IndirectCalls {
		for _, c := range ic.Candidates {
			callees = append(callees, c.Name)
		}
	}
	for _, name := range callees {
		lower := strings.ToLower(name)
		if containsAny(lower, deviceKeywords) {
			rec.HasDeviceAccess = true
		}
		if containsAny(lower, interruptKeywords) {
			rec.HasInterruptOps = true
		}
		if strings.Contains(lower, "queue_work") || strings.Contains(lower, "schedule_work") {
			rec.UsesWorkqueue = true
		}
	}
}

func containsAny(name string, keywords []string) bool {
	return funcutil.Exists(keywords, func(k string) bool { return strings.Contains(name, k) })
}

// overallConfidence is a bounded weighted sum over what the analysis managed to find.
func overallConfidence(rec *Record) int {
	score := 0
	if rec.AnalysisComplete {
		score += 10
	}
	hasWrites, hasReads, hasAtomic := false, false, false
	for _, a := range rec.TotalAccesses {
		if a.IsWrite {
			hasWrites = true
		} else {
			hasReads = true
		}
		if a.IsAtomic {
			hasAtomic = true
		}
	}
	if hasWrites {
		score += 15
	}
	if hasReads {
		score += 10
	}
	if len(rec.Structs) > 0 {
		score += 15
	}
	if len(rec.DirectCalls) > 0 {
		score += 10
	}
	for _, ic := range rec.IndirectCalls {
		if len(ic.Candidates) > 0 {
			score += 10
			break
		}
	}
	if len(rec.ModifiedGlobals) > 0 {
		score += 10
	}
	if rec.InstructionCount > 20 {
		score += 5
	}
	if rec.InstructionCount > 50 {
		score += 5
	}
	if hasAtomic || len(rec.RegisterAccesses) > 0 || rec.HasRecursiveCalls {
		score += 5
	}
	score += fieldNameBonus(rec.Writes)
	if score > 100 {
		score = 100
	}
	return score
}

// fieldNameBonus grants up to 10 points proportional to the share of struct-field writes
// whose field resolved to a real name rather than a positional fallback.
func fieldNameBonus(writes []WriteRecord) int {
	named, fields := 0, 0
	for _, w := range writes {
		if w.TargetKind != "struct_field" {
			continue
		}
		fields++
		if w.FieldName != "" && w.FieldName != "dynamic_field" && !strings.HasPrefix(w.FieldName, "field_") {
			named++
		}
	}
	if fields == 0 {
		return 0
	}
	return 10 * named / fields
}

// fuzzingSummary condenses the record into the counts downstream fuzzers rank handlers by.
func fuzzingSummary(rec *Record) *FuzzingSummary {
	s := &FuzzingSummary{}
	for _, a := range rec.TotalAccesses {
		if a.Kind == string(memory.AccessHandlerDevID) || strings.HasPrefix(a.Chain, "dev_id") {
			s.DevIDAccesses++
		}
		if a.Kind == string(memory.AccessGlobalVariable) {
			s.GlobalAccesses++
		}
	}
	for _, w := range rec.Writes {
		if w.Confidence >= 70 {
			s.HighConfidenceWrites++
		}
	}
	for _, c := range rec.DirectCalls {
		s.MeaningfulCalls += c.Count
	}
	s.MeaningfulCalls += len(rec.IndirectCalls)

	switch {
	case s.HighConfidenceWrites > 3 || s.DevIDAccesses > 5 || s.MeaningfulCalls > 10:
		s.Priority = "HIGH"
	case s.HighConfidenceWrites > 1 || s.DevIDAccesses > 2 || s.MeaningfulCalls > 5:
		s.Priority = "MEDIUM"
	default:
		s.Priority = "LOW"
	}
	return s
}

// normalize replaces nil slices so the serialized record carries empty arrays.
func normalize(rec *Record) {
	if rec.DirectAccesses == nil {
		rec.DirectAccesses = []AccessRecord{}
	}
	if rec.TotalAccesses == nil {
		rec.TotalAccesses = []AccessRecord{}
	}
	if rec.Writes == nil {
		rec.Writes = []WriteRecord{}
	}
	if rec.ModifiedGlobals == nil {
		rec.ModifiedGlobals = []string{}
	}
	if rec.ModifiedStatics == nil {
		rec.ModifiedStatics = []string{}
	}
	if rec.Structs == nil {
		rec.Structs = []string{}
	}
	if rec.DirectCalls == nil {
		rec.DirectCalls = []CallRecord{}
	}
	if rec.IndirectCalls == nil {
		rec.IndirectCalls = []IndirectCallRecord{}
	}
}
