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

// Package callgraph walks the call graph from a handler root, bounded by depth, resolving
// indirect call sites through the function-pointer resolver as it goes.
package callgraph

import (
	"strings"

	"github.com/irqfuzz/irqscope/analysis/funcptr"
	"github.com/irqfuzz/irqscope/analysis/irutil"
	"github.com/irqfuzz/irqscope/analysis/symbols"
	"github.com/irqfuzz/irqscope/internal/graphutil"
	"github.com/llir/llvm/ir"
)

// internalPrefixes name compiler and instrumentation machinery the walker never enters.
var internalPrefixes = []string{
	"llvm.",
	"__sanitizer_cov_",
	"__asan_",
	"__msan_",
	"__tsan_",
	"__ubsan_",
	"__gcov_",
	"__llvm_gcov_",
	"__llvm_gcda_",
	"__llvm_gcno_",
	"__coverage_",
	"__profile_",
	"__stack_chk_",
}

// IsInternalFunc returns true for intrinsics and instrumentation helpers.
func IsInternalFunc(name string) bool {
	for _, prefix := range internalPrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// Info is the result of one traversal.
type Info struct {
	// Root is the handler entry the walk started from.
	Root *ir.Func
	// Direct lists directly called functions in first-visit order.
	Direct []*ir.Func
	// Indirect lists functions reached through resolved function pointers.
	Indirect []*ir.Func
	// Reached lists every visited definition including the root.
	Reached []*ir.Func
	// CallSites groups call-site locations by callee name.
	CallSites map[string][]string
	// IndirectSites lists the locations of indirect call instructions.
	IndirectSites []string
	// IndirectCandidates maps each indirect site location to its candidate list.
	IndirectCandidates map[string][]funcptr.Candidate
	// Adjacency holds caller-to-callee name edges for cycle detection.
	Adjacency map[string][]string
}

// HasRecursiveCalls reports whether the reached subgraph contains a call cycle.
func (info *Info) HasRecursiveCalls() bool {
	if len(info.Adjacency) == 0 {
		return false
	}
	cg := graphutil.NewDigraph(info.Adjacency)
	return len(graphutil.FindAllElementaryCycles(cg)) > 0
}

// Walker performs depth-bounded traversals. Not safe for concurrent use.
type Walker struct {
	symbols  *symbols.Table
	resolver *funcptr.Resolver
	maxDepth int
}

// NewWalker wires a walker over shared analyzer components.
func NewWalker(table *symbols.Table, resolver *funcptr.Resolver, maxDepth int) *Walker {
	return &Walker{symbols: table, resolver: resolver, maxDepth: maxDepth}
}

// Walk traverses the call graph from root.
func (w *Walker) Walk(root *ir.Func) *Info {
	info := &Info{
		Root:               root,
		CallSites:          map[string][]string{},
		IndirectCandidates: map[string][]funcptr.Candidate{},
		Adjacency:          map[string][]string{},
	}
	visited := map[*ir.Func]bool{}
	w.walk(root, 0, info, visited)
	return info
}

func (w *Walker) walk(f *ir.Func, depth int, info *Info, visited map[*ir.Func]bool) {
	if depth > w.maxDepth || visited[f] || irutil.IsDeclaration(f) {
		return
	}
	visited[f] = true
	info.Reached = append(info.Reached, f)

	for _, block := range f.Blocks {
		for _, inst := range block.Insts {
			call, ok := inst.(*ir.InstCall)
			if !ok {
				continue
			}
			if irutil.IsInlineAsmCall(call) {
				continue
			}
			if callee, ok := irutil.DirectCallee(call); ok {
				w.walkDirect(f, call, callee, depth, info, visited)
				continue
			}
			if funcptr.IsIndirect(call) {
				w.walkIndirect(f, call, depth, info, visited)
			}
		}
	}
}

func (w *Walker) walkDirect(caller *ir.Func, call *ir.InstCall, callee *ir.Func,
	depth int, info *Info, visited map[*ir.Func]bool) {
	name := callee.Name()
	if IsInternalFunc(name) {
		return
	}
	info.CallSites[name] = append(info.CallSites[name], irutil.Location(call.Metadata, caller))
	info.Adjacency[caller.Name()] = append(info.Adjacency[caller.Name()], name)
	if !visited[callee] {
		info.Direct = append(info.Direct, callee)
	}
	w.walk(callee, depth+1, info, visited)
}

func (w *Walker) walkIndirect(caller *ir.Func, call *ir.InstCall,
	depth int, info *Info, visited map[*ir.Func]bool) {
	site := irutil.Location(call.Metadata, caller)
	info.IndirectSites = append(info.IndirectSites, site)

	candidates := w.resolver.Resolve(call, w.symbols.FuncModule[caller])
	info.IndirectCandidates[site] = candidates
	for _, c := range candidates {
		target := c.Target
		if target == nil || IsInternalFunc(c.Name) {
			continue
		}
		info.Adjacency[caller.Name()] = append(info.Adjacency[caller.Name()], c.Name)
		if !visited[target] {
			info.Indirect = append(info.Indirect, target)
		}
		w.walk(target, depth+1, info, visited)
	}
}
