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

package pointsto

import (
	"errors"
	"testing"
	"time"

	"github.com/irqfuzz/irqscope/analysis/symbols"
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/types"
)

var (
	devPtr    = types.NewPointer(types.I8)
	handlerTy = types.NewFunc(types.I32, types.I32, devPtr)
)

func defineHandler(m *ir.Module, name string) *ir.Func {
	f := m.NewFunc(name, types.I32,
		ir.NewParam("irq", types.I32),
		ir.NewParam("dev", devPtr))
	f.NewBlock("entry").NewRet(constant.NewInt(types.I32, 1))
	return f
}

func solve(t *testing.T, modules ...*ir.Module) *Engine {
	t.Helper()
	e := New(symbols.NewTable(modules), 0)
	if err := e.Solve(); err != nil {
		t.Fatalf("solve failed: %v", err)
	}
	return e
}

func TestStoreLoadResolvesFunction(t *testing.T) {
	m := ir.NewModule()
	target := defineHandler(m, "real_handler")
	slot := m.NewGlobalDef("cb", constant.NewNull(types.NewPointer(handlerTy)))
	reg := m.NewFunc("register_cb", types.Void)
	regEntry := reg.NewBlock("entry")
	regEntry.NewStore(target, slot)
	regEntry.NewRet(nil)
	caller := m.NewFunc("caller", types.Void)
	entry := caller.NewBlock("entry")
	fp := entry.NewLoad(types.NewPointer(handlerTy), slot)
	entry.NewRet(nil)

	e := solve(t, m)
	targets := e.FuncTargets(fp)
	if len(targets) != 1 || targets[0] != target {
		t.Errorf("targets = %v, want [real_handler]", targets)
	}
}

func TestGlobalTableInitializer(t *testing.T) {
	m := ir.NewModule()
	a := defineHandler(m, "entry_a")
	b := defineHandler(m, "entry_b")
	arrTy := types.NewArray(2, types.NewPointer(handlerTy))
	table := m.NewGlobalDef("handler_table", constant.NewArray(arrTy, a, b))
	caller := m.NewFunc("caller", types.Void)
	entry := caller.NewBlock("entry")
	gep := entry.NewGetElementPtr(arrTy, table,
		constant.NewInt(types.I32, 0), constant.NewInt(types.I32, 0))
	fp := entry.NewLoad(types.NewPointer(handlerTy), gep)
	entry.NewRet(nil)

	e := solve(t, m)
	got := map[string]bool{}
	for _, f := range e.FuncTargets(fp) {
		got[f.Name()] = true
	}
	// Field-insensitive: both table entries flow to the loaded pointer.
	if !got["entry_a"] || !got["entry_b"] {
		t.Errorf("targets = %v, want both table entries", got)
	}
}

func TestInteriorPointersAlias(t *testing.T) {
	m := ir.NewModule()
	st := types.NewStruct(types.I32, types.I32)
	g := m.NewGlobalDef("regs", constant.NewStruct(st,
		constant.NewInt(types.I32, 0), constant.NewInt(types.I32, 0)))
	f := m.NewFunc("f", types.Void)
	entry := f.NewBlock("entry")
	p := entry.NewGetElementPtr(st, g, constant.NewInt(types.I32, 0), constant.NewInt(types.I32, 0))
	q := entry.NewGetElementPtr(st, g, constant.NewInt(types.I32, 0), constant.NewInt(types.I32, 1))
	other := entry.NewAlloca(types.I32)
	entry.NewRet(nil)

	e := solve(t, m)
	if !e.MayAlias(p, q) {
		t.Errorf("interior pointers of one object should alias")
	}
	if e.MayAlias(p, other) {
		t.Errorf("distinct objects should not alias")
	}
}

func TestArgumentFlowsToParameter(t *testing.T) {
	m := ir.NewModule()
	target := defineHandler(m, "cb_impl")
	sink := m.NewFunc("sink", types.Void,
		ir.NewParam("fp", types.NewPointer(handlerTy)))
	sink.NewBlock("entry").NewRet(nil)
	caller := m.NewFunc("caller", types.Void)
	entry := caller.NewBlock("entry")
	entry.NewCall(sink, target)
	entry.NewRet(nil)

	e := solve(t, m)
	targets := e.FuncTargets(sink.Params[0])
	if len(targets) != 1 || targets[0] != target {
		t.Errorf("parameter targets = %v, want [cb_impl]", targets)
	}
}

func TestBudgetExpiry(t *testing.T) {
	m := ir.NewModule()
	target := defineHandler(m, "real_handler")
	slot := m.NewGlobalDef("cb", constant.NewNull(types.NewPointer(handlerTy)))
	reg := m.NewFunc("register_cb", types.Void)
	regEntry := reg.NewBlock("entry")
	regEntry.NewStore(target, slot)
	regEntry.NewRet(nil)

	e := New(symbols.NewTable([]*ir.Module{m}), time.Nanosecond)
	err := e.Solve()
	if !errors.Is(err, ErrBudget) {
		t.Fatalf("expected the budget error, got %v", err)
	}
	if e.FuncTargets(slot) != nil {
		t.Errorf("a failed solve should answer nil so callers fall back")
	}
}
