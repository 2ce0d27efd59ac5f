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

// Package filters prunes analysis results after the fact: compiler-generated symbols,
// low-confidence records and user-listed names, according to a configurable level policy.
// Allow-lists override deny-lists; deny-lists override level policy.
package filters

import (
	"strings"

	"github.com/irqfuzz/irqscope/analysis/config"
	"github.com/irqfuzz/irqscope/analysis/memory"
)

// compilerPrefixes mark symbols emitted by instrumentation and the compiler itself.
var compilerPrefixes = []string{
	"__llvm_gcov_ctr",
	"__llvm_gcda_",
	"__llvm_gcno_",
	"__llvm_prf_",
	"__sanitizer_cov_",
	"__sancov_",
	"__asan_",
	"__msan_",
	"__tsan_",
	"__ubsan_",
	"__stack_chk_",
	"__profile_",
	"__cfi_",
	".L",
	".str",
	"local_computation",
	"tmp",
}

// levelBlacklists extend the user deny-list per level.
var levelBlacklists = map[string][]string{
	"moderate": {"unknown", "local_computation", "tmp"},
	"strict":   {"unknown", "local_computation", "tmp", "func_arg_", "complex_computation"},
	"fuzzing":  {"arithmetic_offset", "dynamic_address"},
}

// fuzzingWhitelist names kernel structures worth fuzzing against.
var fuzzingWhitelist = []string{
	"pci_dev", "net_device", "irq_desc", "tasklet_struct",
	"work_struct", "timer_list", "sk_buff", "device",
}

// levelThresholds are the default minimum confidences per level.
var levelThresholds = map[string]int{
	"moderate": 50,
	"strict":   60,
	"fuzzing":  70,
}

// IsCompilerGenerated reports whether a symbol name belongs to compiler machinery.
func IsCompilerGenerated(name string) bool {
	for _, prefix := range compilerPrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// Stats counts dropped records by reason.
type Stats struct {
	Total           int `json:"total_accesses"`
	Kept            int `json:"kept_accesses"`
	CompilerSymbols int `json:"filtered_compiler_symbols"`
	LowConfidence   int `json:"filtered_low_confidence"`
	Blacklisted     int `json:"filtered_blacklisted"`
	LevelPolicy     int `json:"filtered_by_level_policy"`
}

// Engine applies one level policy plus user lists. Not safe for concurrent use; statistics
// accumulate across calls.
type Engine struct {
	level                    string
	threshold                int
	whitelist                []string
	blacklist                []string
	includeConstantAddresses bool
	includeDevIDChains       bool
	stats                    Stats
}

// NewEngine builds an engine from the loaded config.
func NewEngine(cfg *config.Config) *Engine {
	threshold := levelThresholds[cfg.FilterLevel]
	if cfg.MinConfidence > 0 {
		threshold = cfg.MinConfidence
	}
	whitelist := append([]string(nil), cfg.FilterWhitelist...)
	if cfg.FilterLevel == "fuzzing" {
		whitelist = append(whitelist, fuzzingWhitelist...)
	}
	blacklist := append([]string(nil), cfg.FilterBlacklist...)
	blacklist = append(blacklist, levelBlacklists[cfg.FilterLevel]...)
	return &Engine{
		level:                    cfg.FilterLevel,
		threshold:                threshold,
		whitelist:                whitelist,
		blacklist:                blacklist,
		includeConstantAddresses: cfg.IncludeConstantAddresses,
		includeDevIDChains:       cfg.IncludeDevIDChains,
	}
}

// Level returns the configured level name.
func (e *Engine) Level() string { return e.level }

// Threshold returns the effective confidence threshold.
func (e *Engine) Threshold() int { return e.threshold }

// Stats returns a copy of the accumulated drop statistics.
func (e *Engine) Stats() Stats { return e.stats }

// FilterAccesses returns the surviving access records.
func (e *Engine) FilterAccesses(accesses []memory.Access) []memory.Access {
	if e.level == "none" {
		e.stats.Total += len(accesses)
		e.stats.Kept += len(accesses)
		return accesses
	}
	kept := make([]memory.Access, 0, len(accesses))
	for _, a := range accesses {
		e.stats.Total++
		if e.keepAccess(a) {
			e.stats.Kept++
			kept = append(kept, a)
		}
	}
	return kept
}

func (e *Engine) keepAccess(a memory.Access) bool {
	if e.whitelisted(a.Symbol) || e.whitelisted(a.StructName) {
		return true
	}
	if e.blacklisted(a.Symbol) {
		e.stats.Blacklisted++
		return false
	}
	if IsCompilerGenerated(a.Symbol) {
		e.stats.CompilerSymbols++
		return false
	}

	switch e.level {
	case "basic":
		return true
	case "moderate":
		if a.Confidence < e.threshold {
			e.stats.LowConfidence++
			return false
		}
		return true
	case "strict":
		return e.keepStrict(a)
	case "fuzzing":
		return e.keepFuzzing(a)
	}
	return true
}

func (e *Engine) keepStrict(a memory.Access) bool {
	if a.Confidence < e.threshold {
		e.stats.LowConfidence++
		return false
	}
	switch a.Kind {
	case memory.AccessGlobalVariable, memory.AccessStructField, memory.AccessArrayElement:
		return true
	case memory.AccessHandlerDevID:
		if e.includeDevIDChains {
			return true
		}
	case memory.AccessConstantAddress:
		if e.includeConstantAddresses {
			return true
		}
	case memory.AccessPointerChain:
		head := a.Chain.Head()
		if head.Kind == memory.ChainParamDevID && e.includeDevIDChains {
			return true
		}
		if head.Kind == memory.ChainGlobalBase && !IsCompilerGenerated(head.Symbol) {
			return true
		}
	}
	e.stats.LevelPolicy++
	return false
}

func (e *Engine) keepFuzzing(a memory.Access) bool {
	if a.Confidence < e.threshold {
		e.stats.LowConfidence++
		return false
	}
	switch {
	case a.Kind == memory.AccessHandlerDevID,
		a.Kind == memory.AccessPointerChain && a.Chain.Head().Kind == memory.ChainParamDevID:
		return true
	case a.IsWrite && a.Kind == memory.AccessGlobalVariable && !IsCompilerGenerated(a.Symbol):
		return true
	case a.IsWrite && a.Kind == memory.AccessStructField:
		return true
	case a.Kind == memory.AccessConstantAddress && e.includeConstantAddresses:
		return true
	}
	e.stats.LevelPolicy++
	return false
}

// FilterWrites drops consolidated writes whose targets are compiler symbols or deny-listed.
func (e *Engine) FilterWrites(writes []*memory.Write) []*memory.Write {
	if e.level == "none" {
		return writes
	}
	kept := make([]*memory.Write, 0, len(writes))
	for _, w := range writes {
		if e.whitelisted(w.TargetName) || e.whitelisted(w.StructName) {
			kept = append(kept, w)
			continue
		}
		if e.blacklisted(w.TargetName) {
			e.stats.Blacklisted++
			continue
		}
		if IsCompilerGenerated(w.TargetName) {
			e.stats.CompilerSymbols++
			continue
		}
		kept = append(kept, w)
	}
	return kept
}

// FilterNames drops compiler-generated and deny-listed entries from a name list, used to
// rebuild the touched-global and struct sets after access filtering.
func (e *Engine) FilterNames(names []string) []string {
	if e.level == "none" {
		return names
	}
	kept := make([]string, 0, len(names))
	for _, name := range names {
		if e.whitelisted(name) {
			kept = append(kept, name)
			continue
		}
		if e.blacklisted(name) || IsCompilerGenerated(name) {
			continue
		}
		kept = append(kept, name)
	}
	return kept
}

func (e *Engine) whitelisted(name string) bool {
	if name == "" {
		return false
	}
	for _, term := range e.whitelist {
		if strings.Contains(name, term) {
			return true
		}
	}
	return false
}

func (e *Engine) blacklisted(name string) bool {
	for _, term := range e.blacklist {
		if strings.HasPrefix(name, term) {
			return true
		}
	}
	return false
}
