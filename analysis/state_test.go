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

package analysis

import (
	"testing"

	"github.com/irqfuzz/irqscope/analysis/config"
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/types"
)

func sampleModule() *ir.Module {
	m := ir.NewModule()
	g := m.NewGlobalDef("irq_count", constant.NewInt(types.I32, 0))
	h := m.NewFunc("dev_irq_handler", types.I32,
		ir.NewParam("irq", types.I32),
		ir.NewParam("dev", types.NewPointer(types.I8)))
	entry := h.NewBlock("entry")
	entry.NewStore(constant.NewInt(types.I32, 1), g)
	entry.NewRet(constant.NewInt(types.I32, 1))
	return m
}

func TestNewStateWiresComponents(t *testing.T) {
	cfg := config.NewDefault()
	cfg.LogLevel = int(config.ErrLevel)
	state := NewState(cfg, config.NewLogGroup(cfg), []*ir.Module{sampleModule()})

	if state.Symbols == nil || state.Origins == nil || state.Classifier == nil ||
		state.Summarizer == nil || state.FuncPtrs == nil || state.Walker == nil || state.Filters == nil {
		t.Fatalf("state has unwired components: %+v", state)
	}
	if state.PointsTo != nil {
		t.Errorf("points-to engine should be nil when disabled")
	}
	if f := state.Symbols.LookupFunc("dev_irq_handler", nil); f == nil {
		t.Errorf("symbol table does not index the handler")
	}
}

func TestNewStateSolvesPointsTo(t *testing.T) {
	cfg := config.NewDefault()
	cfg.LogLevel = int(config.ErrLevel)
	cfg.UsePointsTo = true
	state := NewState(cfg, config.NewLogGroup(cfg), []*ir.Module{sampleModule()})

	if state.PointsTo == nil {
		t.Fatalf("points-to engine was not solved on a trivial module")
	}
}
