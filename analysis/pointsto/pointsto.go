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

// Package pointsto implements a whole-program, field-insensitive inclusion-based points-to
// analysis. It is the optional precise engine behind indirect call resolution: soundness over
// precision, with a soft time budget after which callers fall back to the heuristic resolver.
package pointsto

import (
	"errors"
	"time"

	"github.com/irqfuzz/irqscope/analysis/symbols"
	"github.com/irqfuzz/irqscope/internal/graphutil"
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/value"
)

// ErrBudget is returned by Solve when the soft time budget expires before the fixpoint.
var ErrBudget = errors.New("points-to solving exceeded its time budget")

// Engine holds the constraint system and, once solved, the points-to sets. Not safe for
// concurrent use.
type Engine struct {
	symbols *symbols.Table
	budget  time.Duration

	rep    map[value.Value]value.Value
	pts    map[value.Value]map[value.Value]bool
	mem    map[value.Value]map[value.Value]bool
	copies map[value.Value][]value.Value
	loads  map[value.Value][]value.Value
	stores map[value.Value][]value.Value

	solved bool
	failed bool
}

// New generates constraints for every module in the table. budget <= 0 means unbounded.
func New(table *symbols.Table, budget time.Duration) *Engine {
	e := &Engine{
		symbols: table,
		budget:  budget,
		rep:     map[value.Value]value.Value{},
		pts:     map[value.Value]map[value.Value]bool{},
		mem:     map[value.Value]map[value.Value]bool{},
		copies:  map[value.Value][]value.Value{},
		loads:   map[value.Value][]value.Value{},
		stores:  map[value.Value][]value.Value{},
	}
	for _, m := range table.Modules {
		e.generateModule(m)
	}
	e.collapseCycles()
	return e
}

func (e *Engine) generateModule(m *ir.Module) {
	for _, g := range m.Globals {
		e.addPts(g, g)
		if g.Init != nil {
			for _, ref := range initializerRefs(g.Init) {
				e.addPts(ref, ref)
				e.stores[g] = append(e.stores[g], ref)
			}
		}
	}
	for _, f := range m.Funcs {
		e.addPts(f, f)
		e.generateFunc(f)
	}
}

func (e *Engine) generateFunc(f *ir.Func) {
	for _, block := range f.Blocks {
		for _, inst := range block.Insts {
			switch inst := inst.(type) {
			case *ir.InstAlloca:
				e.addPts(inst, inst)
			case *ir.InstBitCast:
				e.copy(inst.From, inst)
			case *ir.InstGetElementPtr:
				// Field-insensitive: an interior pointer aliases its base object.
				e.copy(inst.Src, inst)
			case *ir.InstLoad:
				e.loads[inst.Src] = append(e.loads[inst.Src], inst)
			case *ir.InstStore:
				e.registerBase(inst.Src)
				e.stores[inst.Dst] = append(e.stores[inst.Dst], inst.Src)
			case *ir.InstPhi:
				for _, inc := range inst.Incs {
					e.registerBase(inc.X)
					e.copy(inc.X, inst)
				}
			case *ir.InstSelect:
				e.registerBase(inst.ValueTrue)
				e.registerBase(inst.ValueFalse)
				e.copy(inst.ValueTrue, inst)
				e.copy(inst.ValueFalse, inst)
			case *ir.InstCall:
				e.generateCall(inst)
			}
		}
		if ret, ok := block.Term.(*ir.TermRet); ok && ret.X != nil {
			e.registerBase(ret.X)
		}
	}
}

// generateCall wires arguments to parameters and returns to the call result for direct calls.
// Indirect calls contribute nothing; resolving them is exactly what the engine is for.
func (e *Engine) generateCall(call *ir.InstCall) {
	callee, ok := call.Callee.(*ir.Func)
	if !ok {
		return
	}
	for i, arg := range call.Args {
		if i >= len(callee.Params) {
			break
		}
		e.registerBase(arg)
		e.copy(arg, callee.Params[i])
	}
	for _, block := range callee.Blocks {
		if ret, ok := block.Term.(*ir.TermRet); ok && ret.X != nil {
			e.copy(ret.X, call)
		}
	}
}

// registerBase seeds address-taken functions and globals appearing as operands.
func (e *Engine) registerBase(v value.Value) {
	switch v := v.(type) {
	case *ir.Func, *ir.Global:
		e.addPts(v, v)
	case *constant.ExprBitCast:
		if f, ok := v.From.(*ir.Func); ok {
			e.addPts(f, f)
			e.copy(f, v)
		}
	}
}

// initializerRefs collects functions and globals referenced by an initializer, through
// nested aggregates and bit-casts.
func initializerRefs(c constant.Constant) []value.Value {
	switch c := c.(type) {
	case *ir.Func, *ir.Global:
		return []value.Value{c.(value.Value)}
	case *constant.ExprBitCast:
		return initializerRefs(c.From.(constant.Constant))
	case *constant.Array:
		var out []value.Value
		for _, elem := range c.Elems {
			out = append(out, initializerRefs(elem)...)
		}
		return out
	case *constant.Struct:
		var out []value.Value
		for _, field := range c.Fields {
			out = append(out, initializerRefs(field)...)
		}
		return out
	}
	return nil
}

func (e *Engine) addPts(v, obj value.Value) {
	set := e.pts[v]
	if set == nil {
		set = map[value.Value]bool{}
		e.pts[v] = set
	}
	set[obj] = true
}

func (e *Engine) copy(from, to value.Value) {
	e.copies[from] = append(e.copies[from], to)
}

// collapseCycles merges copy-edge cycles so the solver converges on mutually recursive
// assignments. Every node in a strongly connected component shares one representative.
func (e *Engine) collapseCycles() {
	nodeSet := map[value.Value]bool{}
	for from, tos := range e.copies {
		nodeSet[from] = true
		for _, to := range tos {
			nodeSet[to] = true
		}
	}
	nodes := make([]value.Value, 0, len(nodeSet))
	for n := range nodeSet {
		nodes = append(nodes, n)
	}
	components := graphutil.StronglyConnectedComponents(nodes, func(n value.Value) []value.Value {
		return e.copies[n]
	})
	for _, component := range components {
		if len(component) < 2 {
			continue
		}
		head := component[0]
		for _, member := range component[1:] {
			e.rep[member] = head
		}
	}
	e.rewriteThroughReps()
}

func (e *Engine) find(v value.Value) value.Value {
	for {
		r, ok := e.rep[v]
		if !ok {
			return v
		}
		v = r
	}
}

func (e *Engine) rewriteThroughReps() {
	if len(e.rep) == 0 {
		return
	}
	copies := map[value.Value][]value.Value{}
	for from, tos := range e.copies {
		rf := e.find(from)
		for _, to := range tos {
			rt := e.find(to)
			if rf != rt {
				copies[rf] = append(copies[rf], rt)
			}
		}
	}
	e.copies = copies

	loads := map[value.Value][]value.Value{}
	for p, dsts := range e.loads {
		rp := e.find(p)
		for _, d := range dsts {
			loads[rp] = append(loads[rp], e.find(d))
		}
	}
	e.loads = loads

	stores := map[value.Value][]value.Value{}
	for p, srcs := range e.stores {
		rp := e.find(p)
		for _, s := range srcs {
			stores[rp] = append(stores[rp], e.find(s))
		}
	}
	e.stores = stores

	pts := map[value.Value]map[value.Value]bool{}
	for v, set := range e.pts {
		rv := e.find(v)
		merged := pts[rv]
		if merged == nil {
			merged = map[value.Value]bool{}
			pts[rv] = merged
		}
		for obj := range set {
			merged[obj] = true
		}
	}
	e.pts = pts
}

// Solve iterates the inclusion constraints to a fixpoint. It returns ErrBudget when the time
// budget expires; the partial solution is discarded in that case.
func (e *Engine) Solve() error {
	if e.solved {
		return nil
	}
	if e.failed {
		return ErrBudget
	}
	start := time.Now()
	for e.round() {
		if e.budget > 0 && time.Since(start) > e.budget {
			e.failed = true
			return ErrBudget
		}
	}
	e.solved = true
	return nil
}

// round propagates every constraint once, reporting whether anything changed.
func (e *Engine) round() bool {
	changed := false

	for from, tos := range e.copies {
		src := e.pts[e.find(from)]
		for _, to := range tos {
			if e.union(e.find(to), src) {
				changed = true
			}
		}
	}
	for p, dsts := range e.loads {
		for obj := range e.pts[e.find(p)] {
			contents := e.mem[e.find(obj)]
			for _, d := range dsts {
				if e.union(e.find(d), contents) {
					changed = true
				}
			}
		}
	}
	for p, srcs := range e.stores {
		for obj := range e.pts[e.find(p)] {
			ro := e.find(obj)
			for _, s := range srcs {
				if e.unionMem(ro, e.pts[e.find(s)]) {
					changed = true
				}
			}
		}
	}
	return changed
}

func (e *Engine) union(v value.Value, src map[value.Value]bool) bool {
	if len(src) == 0 {
		return false
	}
	set := e.pts[v]
	if set == nil {
		set = map[value.Value]bool{}
		e.pts[v] = set
	}
	changed := false
	for obj := range src {
		if !set[obj] {
			set[obj] = true
			changed = true
		}
	}
	return changed
}

func (e *Engine) unionMem(obj value.Value, src map[value.Value]bool) bool {
	if len(src) == 0 {
		return false
	}
	set := e.mem[obj]
	if set == nil {
		set = map[value.Value]bool{}
		e.mem[obj] = set
	}
	changed := false
	for o := range src {
		if !set[o] {
			set[o] = true
			changed = true
		}
	}
	return changed
}

// PointsTo returns the objects v may point to. Solve must have succeeded.
func (e *Engine) PointsTo(v value.Value) []value.Value {
	if !e.solved {
		return nil
	}
	set := e.pts[e.find(v)]
	out := make([]value.Value, 0, len(set))
	for obj := range set {
		out = append(out, obj)
	}
	return out
}

// FuncTargets returns the functions v may point to, implementing the precise call-site
// resolver interface. It returns nil before a successful Solve, which makes callers fall
// back to the heuristic sources.
func (e *Engine) FuncTargets(v value.Value) []*ir.Func {
	if !e.solved {
		return nil
	}
	var out []*ir.Func
	for obj := range e.pts[e.find(v)] {
		if f, ok := obj.(*ir.Func); ok {
			out = append(out, f)
		}
	}
	return out
}

// MayAlias reports whether two pointers may reference a common object.
func (e *Engine) MayAlias(a, b value.Value) bool {
	if !e.solved {
		return true
	}
	setA := e.pts[e.find(a)]
	for obj := range e.pts[e.find(b)] {
		if setA[obj] {
			return true
		}
	}
	return false
}
