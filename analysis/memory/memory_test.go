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

package memory

import (
	"testing"

	"github.com/irqfuzz/irqscope/analysis/dataflow"
	"github.com/irqfuzz/irqscope/analysis/symbols"
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
)

type fixture struct {
	module  *ir.Module
	handler *ir.Func
	entry   *ir.Block
}

func newFixture() *fixture {
	m := ir.NewModule()
	m.SourceFilename = "dev.ll"
	f := m.NewFunc("dev_irq_handler", types.I32,
		ir.NewParam("irq", types.I32),
		ir.NewParam("dev_id", types.NewPointer(types.I8)))
	entry := f.NewBlock("entry")
	return &fixture{module: m, handler: f, entry: entry}
}

func (fx *fixture) finish() (*symbols.Table, *Classifier, *Summarizer) {
	fx.entry.NewRet(constant.NewInt(types.I32, 1))
	table := symbols.NewTable([]*ir.Module{fx.module})
	classifier := NewClassifier(table, 10)
	resolver := dataflow.NewResolver(table, 10)
	return table, classifier, NewSummarizer(table, classifier, resolver)
}

func TestDirectGlobalStore(t *testing.T) {
	fx := newFixture()
	g := fx.module.NewGlobalDef("g", constant.NewInt(types.I32, 0))
	fx.entry.NewStore(constant.NewInt(types.I32, 1), g)
	_, classifier, summarizer := fx.finish()

	accesses := classifier.FunctionAccesses(fx.handler)
	if len(accesses) != 1 {
		t.Fatalf("expected one access, got %d", len(accesses))
	}
	a := accesses[0]
	if a.Kind != AccessGlobalVariable || a.Symbol != "g" {
		t.Errorf("access = %v %q, want global_variable g", a.Kind, a.Symbol)
	}
	if !a.IsWrite || a.Confidence != 95 || a.Size != 4 {
		t.Errorf("write=%v confidence=%d size=%d, want true 95 4", a.IsWrite, a.Confidence, a.Size)
	}

	summary := summarizer.Summarize([]*ir.Func{fx.handler})
	if len(summary.Writes) != 1 {
		t.Fatalf("expected one consolidated write, got %d", len(summary.Writes))
	}
	w := summary.Writes[0]
	if w.TargetName != "g" || w.TargetKind != "global_variable" || w.Count != 1 {
		t.Errorf("write = %q %q count %d", w.TargetName, w.TargetKind, w.Count)
	}
	if !w.IsCritical || len(w.Locations) != 1 {
		t.Errorf("critical=%v locations=%v", w.IsCritical, w.Locations)
	}
	if len(summary.ModifiedGlobals) != 1 || summary.ModifiedGlobals[0] != "g" {
		t.Errorf("modified globals = %v", summary.ModifiedGlobals)
	}
}

func TestDevIDChain(t *testing.T) {
	fx := newFixture()
	st := types.NewStruct(types.I32, types.I32, types.I32)
	fx.module.NewTypeDef("struct.S", st)
	gep := fx.entry.NewGetElementPtr(st, fx.handler.Params[1],
		constant.NewInt(types.I32, 0), constant.NewInt(types.I32, 2))
	fx.entry.NewLoad(types.I32, gep)
	_, classifier, _ := fx.finish()

	accesses := classifier.FunctionAccesses(fx.handler)
	if len(accesses) != 1 {
		t.Fatalf("expected one access, got %d", len(accesses))
	}
	a := accesses[0]
	if a.Kind != AccessPointerChain {
		t.Errorf("kind = %v, want pointer_chain", a.Kind)
	}
	if a.Symbol != "dev_id->S_offset_2" {
		t.Errorf("symbol = %q, want dev_id->S_offset_2", a.Symbol)
	}
	if a.StructName != "S" || a.FieldIndex != 2 {
		t.Errorf("struct info = %q %d", a.StructName, a.FieldIndex)
	}
	// Two i32 fields with 8-byte alignment rounding in between; packed layout is 8.
	if a.Offset != 12 || a.PreciseOffset != 8 {
		t.Errorf("offset = %d precise %d, want 12 and 8", a.Offset, a.PreciseOffset)
	}
	if a.IsWrite || a.Confidence < 80 {
		t.Errorf("write=%v confidence=%d", a.IsWrite, a.Confidence)
	}
	if last := a.Chain.Tail(); last.Value != gep {
		t.Errorf("chain leaf should be the traced operand")
	}
}

func TestDevIDDirectAccess(t *testing.T) {
	fx := newFixture()
	fx.entry.NewStore(constant.NewInt(types.I8, 0), fx.handler.Params[1])
	_, classifier, _ := fx.finish()

	accesses := classifier.FunctionAccesses(fx.handler)
	if len(accesses) != 1 {
		t.Fatalf("expected one access, got %d", len(accesses))
	}
	a := accesses[0]
	if a.Kind != AccessHandlerDevID || a.Symbol != "dev_id" {
		t.Errorf("access = %v %q, want handler_dev_id dev_id", a.Kind, a.Symbol)
	}
	if a.Confidence != 100 {
		t.Errorf("boosted confidence = %d, want 100", a.Confidence)
	}
}

func TestGlobalStructFieldAccess(t *testing.T) {
	fx := newFixture()
	st := types.NewStruct(types.I32, types.I32)
	fx.module.NewTypeDef("struct.device_regs", st)
	g := fx.module.NewGlobalDef("regs", constant.NewStruct(st,
		constant.NewInt(types.I32, 0), constant.NewInt(types.I32, 0)))
	gep := fx.entry.NewGetElementPtr(st, g,
		constant.NewInt(types.I32, 0), constant.NewInt(types.I32, 1))
	fx.entry.NewStore(constant.NewInt(types.I32, 7), gep)
	_, classifier, summarizer := fx.finish()

	accesses := classifier.FunctionAccesses(fx.handler)
	a := accesses[0]
	if a.Kind != AccessStructField || a.Symbol != "regs" {
		t.Errorf("access = %v %q, want struct_field regs", a.Kind, a.Symbol)
	}
	if a.FieldName != "status" {
		t.Errorf("field name = %q, want status from the dictionary", a.FieldName)
	}

	summary := summarizer.Summarize([]*ir.Func{fx.handler})
	if len(summary.Writes) != 1 {
		t.Fatalf("expected one write, got %d", len(summary.Writes))
	}
	w := summary.Writes[0]
	if w.TargetKind != "struct_field" || w.Path != "regs.device_regs::status" {
		t.Errorf("write detail = %q %q", w.TargetKind, w.Path)
	}
	if len(summary.Structs) != 1 || summary.Structs[0] != "device_regs" {
		t.Errorf("structs = %v", summary.Structs)
	}
}

func TestAtomicWriteNaming(t *testing.T) {
	fx := newFixture()
	g := fx.module.NewGlobalDef("irq_count", constant.NewInt(types.I64, 0))
	fx.entry.NewAtomicRMW(enum.AtomicOpAdd, g, constant.NewInt(types.I64, 1),
		enum.AtomicOrderingSeqCst)
	_, classifier, summarizer := fx.finish()

	accesses := classifier.FunctionAccesses(fx.handler)
	if len(accesses) != 1 || !accesses[0].IsAtomic || !accesses[0].IsWrite {
		t.Fatalf("atomic access not classified: %+v", accesses)
	}

	summary := summarizer.Summarize([]*ir.Func{fx.handler})
	if len(summary.Writes) != 1 || summary.Writes[0].TargetName != "irq_count_atomic" {
		t.Errorf("atomic write name = %v", summary.Writes)
	}
	if !summary.Writes[0].IsCritical {
		t.Errorf("atomic writes should latch the critical flag")
	}
}

func TestWriteConsolidationCounts(t *testing.T) {
	fx := newFixture()
	g := fx.module.NewGlobalDef("state", constant.NewInt(types.I32, 0))
	fx.entry.NewStore(constant.NewInt(types.I32, 1), g)
	fx.entry.NewStore(constant.NewInt(types.I32, 2), g)
	_, _, summarizer := fx.finish()

	summary := summarizer.Summarize([]*ir.Func{fx.handler})
	if len(summary.Writes) != 1 {
		t.Fatalf("stores to one target should consolidate, got %d records", len(summary.Writes))
	}
	w := summary.Writes[0]
	if w.Count != 2 || len(w.Locations) != 2 {
		t.Errorf("count=%d locations=%d, want 2 and 2", w.Count, len(w.Locations))
	}
}

func TestUnknownOperandIsLowConfidenceIndirect(t *testing.T) {
	fx := newFixture()
	p := fx.entry.NewAlloca(types.I32)
	fx.entry.NewLoad(types.I32, p)
	_, classifier, _ := fx.finish()

	accesses := classifier.FunctionAccesses(fx.handler)
	if len(accesses) != 1 {
		t.Fatalf("expected one access, got %d", len(accesses))
	}
	a := accesses[0]
	if a.Kind != AccessIndirect || a.Symbol != "unknown" {
		t.Errorf("access = %v %q, want indirect unknown", a.Kind, a.Symbol)
	}
	if a.Confidence > 30 {
		t.Errorf("anonymous access must stay at low confidence, got %d", a.Confidence)
	}
}

func TestConstantAddress(t *testing.T) {
	fx := newFixture()
	_, classifier, _ := fx.finish()
	a := classifier.Classify(fx.handler, constant.NewInt(types.I64, 0xfee00000), 4, true, false)
	if a.Kind != AccessConstantAddress || a.Confidence != 100 {
		t.Errorf("access = %v %d, want constant_address 100", a.Kind, a.Confidence)
	}
	if a.Symbol != "address_0xfee00000" {
		t.Errorf("symbol = %q", a.Symbol)
	}
}

func TestNonHandlerArgChainIsIncomplete(t *testing.T) {
	fx := newFixture()
	helper := fx.module.NewFunc("helper", types.Void, ir.NewParam("p", types.NewPointer(types.I32)))
	body := helper.NewBlock("entry")
	body.NewStore(constant.NewInt(types.I32, 1), helper.Params[0])
	body.NewRet(nil)
	_, classifier, _ := fx.finish()

	accesses := classifier.FunctionAccesses(helper)
	if len(accesses) != 1 {
		t.Fatalf("expected one access, got %d", len(accesses))
	}
	a := accesses[0]
	if a.Symbol != "func_arg_0" || a.Confidence != 40 {
		t.Errorf("access = %q %d, want func_arg_0 40", a.Symbol, a.Confidence)
	}
	if a.Chain.Complete {
		t.Errorf("a chain rooted at a non-handler argument is incomplete")
	}
}
