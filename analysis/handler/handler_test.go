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
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/irqfuzz/irqscope/analysis"
	"github.com/irqfuzz/irqscope/analysis/config"
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/types"
)

func quietSetup() (*config.Config, *config.LogGroup) {
	cfg := config.NewDefault()
	cfg.LogLevel = int(config.ErrLevel)
	return cfg, config.NewLogGroup(cfg)
}

func newAnalyzer(modules ...*ir.Module) *Analyzer {
	cfg, logger := quietSetup()
	return New(analysis.NewState(cfg, logger, modules))
}

func defineHandler(m *ir.Module, name string) *ir.Func {
	return m.NewFunc(name, types.I32,
		ir.NewParam("irq", types.I32),
		ir.NewParam("dev", types.NewPointer(types.I8)))
}

// globalStoreModule defines a handler that writes the constant 1 to an external global.
func globalStoreModule(handlerName, globalName string) *ir.Module {
	m := ir.NewModule()
	g := m.NewGlobalDef(globalName, constant.NewInt(types.I32, 0))
	h := defineHandler(m, handlerName)
	entry := h.NewBlock("entry")
	entry.NewStore(constant.NewInt(types.I32, 1), g)
	entry.NewRet(constant.NewInt(types.I32, 1))
	return m
}

func TestMissingHandlerRecord(t *testing.T) {
	a := newAnalyzer(globalStoreModule("real_handler", "g"))
	records := a.AnalyzeAll([]string{"nonexistent_fn", "real_handler"})
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}

	missing := records[0]
	if missing.AnalysisComplete || missing.Confidence != 0 {
		t.Errorf("missing handler record: complete=%v confidence=%d", missing.AnalysisComplete, missing.Confidence)
	}
	if len(missing.TotalAccesses) != 0 || len(missing.Writes) != 0 {
		t.Errorf("missing handler record should carry empty result lists")
	}

	real := records[1]
	if !real.AnalysisComplete || real.Confidence == 0 {
		t.Errorf("real handler record: complete=%v confidence=%d", real.AnalysisComplete, real.Confidence)
	}
}

func TestGlobalStoreRecord(t *testing.T) {
	a := newAnalyzer(globalStoreModule("dev_irq_handler", "irq_count"))
	rec := a.Analyze("dev_irq_handler")

	if len(rec.ModifiedGlobals) != 1 || rec.ModifiedGlobals[0] != "irq_count" {
		t.Errorf("modified globals = %v, want [irq_count]", rec.ModifiedGlobals)
	}
	found := false
	for _, acc := range rec.TotalAccesses {
		if acc.Kind == "global_variable" && acc.Symbol == "irq_count" && acc.IsWrite && acc.Confidence == 95 {
			found = true
		}
	}
	if !found {
		t.Errorf("no high-confidence global write in total accesses: %+v", rec.TotalAccesses)
	}
	if len(rec.Writes) != 1 || !rec.Writes[0].IsCritical {
		t.Errorf("writes = %+v, want one critical record", rec.Writes)
	}
	if rec.FuzzingSummary == nil {
		t.Fatalf("no fuzzing summary on an analyzed record")
	}
	if rec.BasicBlockCount != 1 || rec.InstructionCount == 0 {
		t.Errorf("complexity counts: blocks=%d insts=%d", rec.BasicBlockCount, rec.InstructionCount)
	}
}

// indirectModule wires a handler whose only call goes through a function pointer stored into
// a global by an installer function. The pointed-to callback writes a global counter.
func indirectModule() *ir.Module {
	m := ir.NewModule()
	cbTy := types.NewFunc(types.I32, types.I32)
	cb := m.NewGlobalDef("cb", constant.NewNull(types.NewPointer(cbTy)))
	hits := m.NewGlobalDef("hits", constant.NewInt(types.I32, 0))

	target := m.NewFunc("event_callback", types.I32, ir.NewParam("x", types.I32))
	tb := target.NewBlock("entry")
	tb.NewStore(constant.NewInt(types.I32, 1), hits)
	tb.NewRet(constant.NewInt(types.I32, 0))

	install := m.NewFunc("install_cb", types.Void)
	ib := install.NewBlock("entry")
	ib.NewStore(target, cb)
	ib.NewRet(nil)

	h := defineHandler(m, "card_interrupt")
	hb := h.NewBlock("entry")
	fp := hb.NewLoad(types.NewPointer(cbTy), cb)
	hb.NewCall(fp, constant.NewInt(types.I32, 7))
	hb.NewRet(constant.NewInt(types.I32, 1))
	return m
}

func TestIndirectCallImpact(t *testing.T) {
	a := newAnalyzer(indirectModule())
	rec := a.Analyze("card_interrupt")

	if len(rec.IndirectCalls) != 1 {
		t.Fatalf("indirect calls = %+v, want one site", rec.IndirectCalls)
	}
	candidates := rec.IndirectCalls[0].Candidates
	if len(candidates) == 0 {
		t.Fatalf("no candidates resolved for the indirect site")
	}
	if candidates[0].Name != "event_callback" || candidates[0].Confidence < 85 {
		t.Errorf("top candidate = %+v", candidates[0])
	}
	for i := 1; i < len(candidates); i++ {
		if candidates[i].Confidence > candidates[i-1].Confidence {
			t.Errorf("candidates not sorted by confidence: %+v", candidates)
		}
	}

	tagged := false
	for _, acc := range rec.TotalAccesses {
		if strings.Contains(acc.Reason, "via_indirect_call") && acc.Symbol == "hits" {
			tagged = true
			if acc.Confidence > 95 {
				t.Errorf("indirect impact confidence %d was not downscaled", acc.Confidence)
			}
		}
	}
	if !tagged {
		t.Errorf("no via_indirect_call access for the callback's global write: %+v", rec.TotalAccesses)
	}
}

func TestConfidenceBounds(t *testing.T) {
	a := newAnalyzer(globalStoreModule("bounded_handler", "g"), indirectModule())
	for _, name := range []string{"bounded_handler", "card_interrupt", "no_such_handler"} {
		rec := a.Analyze(name)
		if rec.Confidence < 0 || rec.Confidence > 100 {
			t.Errorf("%s: confidence %d out of range", name, rec.Confidence)
		}
	}
}

func TestFuzzingSummaryPriority(t *testing.T) {
	high := &Record{Writes: []WriteRecord{
		{Confidence: 90}, {Confidence: 90}, {Confidence: 90}, {Confidence: 90},
	}}
	if s := fuzzingSummary(high); s.Priority != "HIGH" {
		t.Errorf("4 high-confidence writes: priority %s, want HIGH", s.Priority)
	}

	medium := &Record{Writes: []WriteRecord{{Confidence: 90}, {Confidence: 90}}}
	if s := fuzzingSummary(medium); s.Priority != "MEDIUM" {
		t.Errorf("2 high-confidence writes: priority %s, want MEDIUM", s.Priority)
	}

	if s := fuzzingSummary(&Record{}); s.Priority != "LOW" {
		t.Errorf("empty record: priority %s, want LOW", s.Priority)
	}
}

func TestGroups(t *testing.T) {
	groups := Groups([]string{"a", "b", "c", "d", "e"}, 2)
	if len(groups) != 3 || len(groups[0]) != 2 || len(groups[2]) != 1 {
		t.Errorf("groups = %v", groups)
	}
	if groups := Groups([]string{"a", "b"}, 0); len(groups) != 1 {
		t.Errorf("size 0 should produce a single group, got %v", groups)
	}
	if groups := Groups(nil, 4); groups != nil {
		t.Errorf("no paths should produce no groups, got %v", groups)
	}
}

const parallelIRTemplate = `@NAME_count = global i32 0

define i32 @NAME(i32 %irq, i8* %dev) {
entry:
	store i32 1, i32* @NAME_count
	ret i32 1
}
`

func TestRunParallel(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for _, name := range []string{"h1", "h2"} {
		content := strings.ReplaceAll(parallelIRTemplate, "NAME", name)
		path := filepath.Join(dir, name+".ll")
		if err := os.WriteFile(path, []byte(content), 0600); err != nil {
			t.Fatalf("failed to write %s: %v", path, err)
		}
		paths = append(paths, path)
	}

	cfg, logger := quietSetup()
	cfg.GroupSize = 1
	cfg.NumThreads = 2
	records, stats := RunParallel(context.Background(), cfg, logger, paths, []string{"h1", "h2", "ghost"})
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3", len(records))
	}
	if records[0].HandlerName != "h1" || !records[0].AnalysisComplete {
		t.Errorf("record 0 = %+v", records[0])
	}
	if records[1].HandlerName != "h2" || !records[1].AnalysisComplete {
		t.Errorf("record 1 = %+v", records[1])
	}
	if records[2].HandlerName != "ghost" || records[2].AnalysisComplete {
		t.Errorf("record 2 = %+v", records[2])
	}
	if stats.Total == 0 {
		t.Errorf("no accesses counted by the worker filter engines")
	}
}
