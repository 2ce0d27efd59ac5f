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

// Package funcptr resolves indirect call sites to candidate target functions. Candidates come
// from type-signature matching, function-pointer store sites, structure-field assignments and
// global function tables, each with its own confidence baseline; a sound points-to engine,
// when present, replaces the signature source with precise targets.
package funcptr

import (
	"fmt"
	"sort"
	"strings"

	"github.com/irqfuzz/irqscope/analysis/dataflow"
	"github.com/irqfuzz/irqscope/analysis/irutil"
	"github.com/irqfuzz/irqscope/analysis/symbols"
	"github.com/irqfuzz/irqscope/internal/funcutil"
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"
)

// Candidate is one possible target of an indirect call.
type Candidate struct {
	Target                 *ir.Func
	Name                   string
	Confidence             int
	Reasons                []string
	Module                 *ir.Module
	Scope                  symbols.Scope
	RequiresDeeperAnalysis bool
}

// PointsTo is the optional precise engine consulted per call site.
type PointsTo interface {
	// FuncTargets returns the functions the operand may point to, or nil when the engine has
	// no answer for this value.
	FuncTargets(v value.Value) []*ir.Func
}

// nameBonusKeywords raise signature-match confidence for handler-flavored names.
var nameBonusKeywords = []string{"callback", "handler", "interrupt", "irq"}

// denied returns true for names that match by type but are semantically implausible targets.
func denied(name string) bool {
	return name == "dummy_handler" ||
		strings.HasPrefix(name, "syscall_") ||
		strings.HasPrefix(name, "trap_")
}

type storeSite struct {
	target *ir.Func
	node   dataflow.Node
}

// Resolver produces candidate lists for indirect call sites. The store-site and field
// assignment indexes are built once over all modules at construction.
type Resolver struct {
	symbols *symbols.Table
	origins *dataflow.Resolver
	pts     PointsTo

	storeSites  []storeSite
	fieldAssign map[string]map[int64][]*ir.Func
}

// NewResolver indexes all modules of the table. pts may be nil.
func NewResolver(table *symbols.Table, origins *dataflow.Resolver, pts PointsTo) *Resolver {
	r := &Resolver{
		symbols:     table,
		origins:     origins,
		pts:         pts,
		fieldAssign: map[string]map[int64][]*ir.Func{},
	}
	for _, m := range table.Modules {
		for _, f := range m.Funcs {
			r.indexStores(f)
		}
	}
	return r
}

// indexStores records every store of a function value: plain stores to global or static
// storage, and stores into structure fields.
func (r *Resolver) indexStores(f *ir.Func) {
	for _, block := range f.Blocks {
		for _, inst := range block.Insts {
			store, ok := inst.(*ir.InstStore)
			if !ok {
				continue
			}
			stored := storedFunc(store.Src)
			if stored == nil {
				continue
			}
			if structName, index, ok := fieldAccess(store.Dst); ok {
				byIndex := r.fieldAssign[structName]
				if byIndex == nil {
					byIndex = map[int64][]*ir.Func{}
					r.fieldAssign[structName] = byIndex
				}
				byIndex[index] = append(byIndex[index], stored)
				continue
			}
			node := r.origins.Resolve(store.Dst)
			if node.IsGlobal() || node.IsStatic() {
				r.storeSites = append(r.storeSites, storeSite{target: stored, node: node})
			}
		}
	}
}

// storedFunc unwraps a stored function value, looking through a constant bitcast.
func storedFunc(v value.Value) *ir.Func {
	switch v := v.(type) {
	case *ir.Func:
		return v
	case *constant.ExprBitCast:
		if f, ok := v.From.(*ir.Func); ok {
			return f
		}
	}
	return nil
}

// fieldAccess recognizes a pointer into a named structure field with a constant index.
func fieldAccess(v value.Value) (string, int64, bool) {
	switch v := v.(type) {
	case *ir.InstLoad:
		return fieldAccess(v.Src)
	case *ir.InstGetElementPtr:
		st, ok := v.ElemType.(*types.StructType)
		if !ok || len(v.Indices) < 2 {
			return "", 0, false
		}
		index, ok := irutil.ConstantIndex(v.Indices[len(v.Indices)-1])
		if !ok {
			return "", 0, false
		}
		return irutil.StructName(st), index, true
	case *constant.ExprGetElementPtr:
		st, ok := v.ElemType.(*types.StructType)
		if !ok || len(v.Indices) < 2 {
			return "", 0, false
		}
		index, ok := irutil.ConstantExprIndex(v.Indices[len(v.Indices)-1])
		if !ok {
			return "", 0, false
		}
		return irutil.StructName(st), index, true
	}
	return "", 0, false
}

// IsIndirect returns true when the call goes through a function pointer rather than a direct
// reference, a constant expression over one, or inline assembly.
func IsIndirect(call *ir.InstCall) bool {
	switch callee := call.Callee.(type) {
	case *ir.Func, *ir.InlineAsm:
		return false
	case *constant.ExprBitCast:
		_, isFunc := callee.From.(*ir.Func)
		return !isFunc
	case constant.Constant:
		return false
	}
	return true
}

// Resolve produces the consolidated candidate list for an indirect call located in site.
// Direct and inline-assembly calls get an empty list.
func (r *Resolver) Resolve(call *ir.InstCall, site *ir.Module) []Candidate {
	if !IsIndirect(call) {
		return nil
	}

	var raw []Candidate
	raw = append(raw, r.typeCandidates(call)...)
	raw = append(raw, r.storeCandidates()...)
	raw = append(raw, r.fieldCandidates(call)...)
	raw = append(raw, r.tableCandidates(call)...)
	return r.consolidate(raw, site)
}

// typeCandidates matches the call-site signature against every known function, unless the
// points-to engine returns a precise non-empty set for the operand.
func (r *Resolver) typeCandidates(call *ir.InstCall) []Candidate {
	if r.pts != nil {
		if targets := r.pts.FuncTargets(call.Callee); len(targets) > 0 {
			precise := make([]Candidate, 0, len(targets))
			for _, f := range targets {
				precise = append(precise, Candidate{
					Target:     f,
					Confidence: 85,
					Reasons:    []string{"points_to_precise"},
				})
			}
			return precise
		}
	}

	sig := callSig(call)
	if sig == nil {
		return nil
	}
	var out []Candidate
	for _, f := range r.symbols.SameSignature(sig) {
		name := f.Name()
		confidence := 50
		lowered := strings.ToLower(name)
		for _, kw := range nameBonusKeywords {
			if strings.Contains(lowered, kw) {
				confidence += 20
				break
			}
		}
		if strings.HasSuffix(name, "_fn") || strings.HasSuffix(name, "_func") {
			confidence += 10
		}
		if irutil.IsDeclaration(f) {
			confidence -= 10
		}
		if denied(name) {
			confidence -= 30
		}
		if confidence < 30 {
			continue
		}
		out = append(out, Candidate{
			Target:     f,
			Confidence: confidence,
			Reasons:    []string{"signature_match"},
		})
	}
	return out
}

func (r *Resolver) storeCandidates() []Candidate {
	out := make([]Candidate, 0, len(r.storeSites))
	for _, site := range r.storeSites {
		confidence := 75
		if site.node.IsGlobal() {
			confidence += 10
		} else {
			confidence += 5
		}
		out = append(out, Candidate{
			Target:     site.target,
			Confidence: confidence,
			Reasons:    []string{"function_pointer_store:" + site.node.Source},
		})
	}
	return out
}

// fieldCandidates matches a callee loaded from struct field (S, f) against every module's
// assignments to the same field.
func (r *Resolver) fieldCandidates(call *ir.InstCall) []Candidate {
	structName, index, ok := fieldAccess(call.Callee)
	if !ok {
		return nil
	}
	var out []Candidate
	for _, f := range r.fieldAssign[structName][index] {
		out = append(out, Candidate{
			Target:     f,
			Confidence: 80,
			Reasons:    []string{"struct_field_assignment:" + structName},
		})
	}
	return out
}

// tableCandidates resolves a callee loaded out of a global whose initializer is an array or
// structure of function references.
func (r *Resolver) tableCandidates(call *ir.InstCall) []Candidate {
	g := tableGlobal(call.Callee)
	if g == nil || g.Init == nil {
		return nil
	}
	var out []Candidate
	reason := "global_function_table:" + g.Name()
	switch init := g.Init.(type) {
	case *constant.Array:
		for _, elem := range init.Elems {
			if f, confidence := tableEntry(elem, 85); f != nil {
				out = append(out, Candidate{Target: f, Confidence: confidence, Reasons: []string{reason}})
			}
		}
	case *constant.Struct:
		for _, field := range init.Fields {
			if f, confidence := tableEntry(field, 83); f != nil {
				out = append(out, Candidate{Target: f, Confidence: confidence, Reasons: []string{reason}})
			}
		}
	}
	return out
}

// tableEntry unwraps one initializer element; a bit-cast entry costs confidence.
func tableEntry(c constant.Constant, baseline int) (*ir.Func, int) {
	switch c := c.(type) {
	case *ir.Func:
		return c, baseline
	case *constant.ExprBitCast:
		if f, ok := c.From.(*ir.Func); ok {
			return f, 80
		}
	}
	return nil, 0
}

// tableGlobal finds the global a callee operand loads from, through geps and bitcasts.
func tableGlobal(v value.Value) *ir.Global {
	switch v := v.(type) {
	case *ir.InstLoad:
		return tableGlobal(v.Src)
	case *ir.InstGetElementPtr:
		return tableGlobal(v.Src)
	case *ir.InstBitCast:
		return tableGlobal(v.From)
	case *constant.ExprGetElementPtr:
		return tableGlobal(v.Src)
	case *constant.ExprBitCast:
		return tableGlobal(v.From)
	case *ir.Global:
		return v
	}
	return nil
}

// consolidate applies the same-module boost, deduplicates by target keeping the highest
// confidence, unions reasons and sorts by descending confidence.
func (r *Resolver) consolidate(raw []Candidate, site *ir.Module) []Candidate {
	byTarget := map[*ir.Func]*Candidate{}
	var order []*ir.Func
	for _, c := range raw {
		c.Name = c.Target.Name()
		c.Module = r.symbols.FuncModule[c.Target]
		c.Scope = r.symbols.FuncScope(c.Target)
		if site != nil && c.Module == site {
			c.Confidence += 15
			if c.Confidence > 100 {
				c.Confidence = 100
			}
		}
		existing, seen := byTarget[c.Target]
		if !seen {
			copied := c
			byTarget[c.Target] = &copied
			order = append(order, c.Target)
			continue
		}
		if c.Confidence > existing.Confidence {
			existing.Confidence = c.Confidence
		}
		for _, reason := range c.Reasons {
			if !funcutil.Contains(existing.Reasons, reason) {
				existing.Reasons = append(existing.Reasons, reason)
			}
		}
	}

	out := make([]Candidate, 0, len(order))
	for _, target := range order {
		c := *byTarget[target]
		c.RequiresDeeperAnalysis = c.Confidence >= 60
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// callSig extracts the function type of an indirect call operand.
func callSig(call *ir.InstCall) *types.FuncType {
	switch t := call.Callee.Type().(type) {
	case *types.FuncType:
		return t
	case *types.PointerType:
		if sig, ok := t.ElemType.(*types.FuncType); ok {
			return sig
		}
	}
	return nil
}

// Describe renders a candidate for call-target listings.
func (c Candidate) Describe() string {
	return fmt.Sprintf("%s (%d%%, %s)", c.Name, c.Confidence, strings.Join(c.Reasons, "+"))
}
