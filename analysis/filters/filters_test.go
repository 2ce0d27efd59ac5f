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

package filters

import (
	"testing"

	"github.com/irqfuzz/irqscope/analysis/config"
	"github.com/irqfuzz/irqscope/analysis/memory"
)

func engineFor(level string, tweak func(*config.Config)) *Engine {
	cfg := config.NewDefault()
	cfg.FilterLevel = level
	if tweak != nil {
		tweak(cfg)
	}
	return NewEngine(cfg)
}

func globalAccess(symbol string, confidence int, write bool) memory.Access {
	return memory.Access{
		Kind:       memory.AccessGlobalVariable,
		Symbol:     symbol,
		Confidence: confidence,
		IsWrite:    write,
		Chain: memory.Chain{
			Elems:      []memory.ChainElem{{Kind: memory.ChainGlobalBase, Symbol: symbol}},
			Confidence: confidence,
			Complete:   true,
		},
	}
}

func TestModerateDropsCompilerSymbols(t *testing.T) {
	e := engineFor("moderate", nil)
	kept := e.FilterAccesses([]memory.Access{
		globalAccess("__llvm_gcov_ctr.3", 95, true),
		globalAccess("irq_count", 95, true),
	})
	if len(kept) != 1 || kept[0].Symbol != "irq_count" {
		t.Fatalf("kept = %v", kept)
	}
	if e.Stats().CompilerSymbols < 1 {
		t.Errorf("compiler-symbol drop not counted: %+v", e.Stats())
	}
}

func TestModerateDropsLowConfidence(t *testing.T) {
	e := engineFor("moderate", nil)
	kept := e.FilterAccesses([]memory.Access{
		globalAccess("irq_count", 95, false),
		{Kind: memory.AccessIndirect, Symbol: "deref_ptr", Confidence: 20},
	})
	if len(kept) != 1 {
		t.Fatalf("kept = %v", kept)
	}
	if e.Stats().LowConfidence != 1 {
		t.Errorf("low-confidence drop not counted: %+v", e.Stats())
	}
}

func TestNoneKeepsEverything(t *testing.T) {
	e := engineFor("none", nil)
	in := []memory.Access{
		globalAccess("__llvm_gcov_ctr.3", 95, true),
		{Kind: memory.AccessIndirect, Symbol: "unknown", Confidence: 20},
	}
	if kept := e.FilterAccesses(in); len(kept) != 2 {
		t.Errorf("level none should keep all, kept %d", len(kept))
	}
}

func TestStrictKeepsOnlyAllowedKinds(t *testing.T) {
	e := engineFor("strict", nil)
	devChain := memory.Access{
		Kind:       memory.AccessPointerChain,
		Symbol:     "dev_id->test_device_offset_7",
		Confidence: 85,
		Chain: memory.Chain{
			Elems: []memory.ChainElem{
				{Kind: memory.ChainParamDevID, Symbol: "dev_id"},
				{Kind: memory.ChainStructField, Struct: "test_device", Index: 7},
			},
			Confidence: 85,
		},
	}
	kept := e.FilterAccesses([]memory.Access{
		globalAccess("irq_count", 95, true),
		devChain,
		{Kind: memory.AccessHandlerIRQ, Symbol: "irq", Confidence: 90},
	})
	if len(kept) != 2 {
		t.Fatalf("kept = %v", kept)
	}
	for _, a := range kept {
		if a.Kind == memory.AccessHandlerIRQ {
			t.Errorf("strict level should drop handler-irq accesses")
		}
	}
}

func TestFuzzingKeepsDeviceAndGlobalWrites(t *testing.T) {
	e := engineFor("fuzzing", nil)
	kept := e.FilterAccesses([]memory.Access{
		globalAccess("irq_count", 95, true),
		globalAccess("irq_count", 95, false), // read of a global is not fuzzing-relevant
		{Kind: memory.AccessHandlerDevID, Symbol: "dev_id", Confidence: 100},
	})
	if len(kept) != 2 {
		t.Fatalf("kept %d records: %v", len(kept), kept)
	}
}

func TestWhitelistOverridesBlacklist(t *testing.T) {
	e := engineFor("moderate", func(cfg *config.Config) {
		cfg.FilterWhitelist = []string{"tmp_buffer"}
	})
	kept := e.FilterAccesses([]memory.Access{
		globalAccess("tmp_buffer", 95, true), // blacklisted by prefix tmp, whitelisted by name
		globalAccess("tmp_scratch", 95, true),
	})
	if len(kept) != 1 || kept[0].Symbol != "tmp_buffer" {
		t.Fatalf("whitelist should win over the deny list: %v", kept)
	}
}

func TestFilterIdempotent(t *testing.T) {
	in := []memory.Access{
		globalAccess("irq_count", 95, true),
		globalAccess("__asan_shadow", 95, true),
		{Kind: memory.AccessIndirect, Symbol: "unknown", Confidence: 20},
	}
	first := engineFor("moderate", nil).FilterAccesses(in)
	second := engineFor("moderate", nil).FilterAccesses(first)
	if len(first) != len(second) {
		t.Errorf("filtering is not idempotent: %d then %d", len(first), len(second))
	}
}

func TestFilterWrites(t *testing.T) {
	e := engineFor("moderate", nil)
	kept := e.FilterWrites([]*memory.Write{
		{TargetName: "irq_count", TargetKind: "global_variable"},
		{TargetName: "__llvm_gcov_ctr.3", TargetKind: "global_variable"},
	})
	if len(kept) != 1 || kept[0].TargetName != "irq_count" {
		t.Errorf("kept = %v", kept)
	}
}

func TestFilterNames(t *testing.T) {
	e := engineFor("moderate", nil)
	kept := e.FilterNames([]string{"irq_count", "__llvm_prf_data", "tmp123"})
	if len(kept) != 1 || kept[0] != "irq_count" {
		t.Errorf("kept = %v", kept)
	}
}

func TestMinConfidenceOverride(t *testing.T) {
	e := engineFor("moderate", func(cfg *config.Config) {
		cfg.MinConfidence = 96
	})
	kept := e.FilterAccesses([]memory.Access{globalAccess("irq_count", 95, true)})
	if len(kept) != 0 {
		t.Errorf("the configured threshold should override the level default")
	}
}
