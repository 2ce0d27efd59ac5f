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

// Package dataflow classifies the origin of IR values: whether a value ultimately comes from
// a global, a static, a function parameter, a constant or purely local computation, with a
// confidence score attached. Results are memoized per resolver instance.
package dataflow

import (
	"fmt"

	"github.com/irqfuzz/irqscope/analysis/symbols"
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/value"
)

// Kind classifies the origin of a value.
type Kind string

const (
	KindGlobal         Kind = "global"
	KindStatic         Kind = "static"
	KindParameter      Kind = "parameter"
	KindConstant       Kind = "constant"
	KindLocal          Kind = "local"
	KindRecursiveLimit Kind = "recursive_limit"
)

// Node is the resolved origin of one IR value.
type Node struct {
	Kind       Kind
	Source     string
	Confidence int
	Module     *ir.Module
}

// IsGlobal returns true for externally visible global origins.
func (n Node) IsGlobal() bool { return n.Kind == KindGlobal }

// IsStatic returns true for module-private global origins.
func (n Node) IsStatic() bool { return n.Kind == KindStatic }

// Resolver resolves value origins over a symbol table. Not safe for concurrent use; the
// memoization cache is analyzer-scoped.
type Resolver struct {
	symbols  *symbols.Table
	maxDepth int
	cache    map[value.Value]Node
}

// NewResolver returns a resolver bounded to maxDepth recursion steps.
func NewResolver(table *symbols.Table, maxDepth int) *Resolver {
	return &Resolver{
		symbols:  table,
		maxDepth: maxDepth,
		cache:    map[value.Value]Node{},
	}
}

// Resolve classifies the origin of v.
func (r *Resolver) Resolve(v value.Value) Node {
	return r.resolve(v, 0)
}

func (r *Resolver) resolve(v value.Value, depth int) Node {
	if n, ok := r.cache[v]; ok {
		return n
	}
	if depth > r.maxDepth {
		return Node{Kind: KindRecursiveLimit, Source: "recursive_limit", Confidence: 10}
	}

	var n Node
	// Globals and parameters are constants/values in the IR object model, so the structural
	// cases must run before the generic constant case.
	switch v := v.(type) {
	case *ir.Global:
		if symbols.ScopeOfLinkage(v.Linkage) == symbols.ScopeStatic {
			n = Node{Kind: KindStatic, Source: "global_variable:" + v.Name(), Confidence: 90}
		} else {
			n = Node{Kind: KindGlobal, Source: "global_variable:" + v.Name(), Confidence: 95}
		}
		n.Module = r.symbols.VarModule[v]
	case *ir.Param:
		n = Node{Kind: KindParameter, Confidence: 85}
		if f, index, ok := r.symbols.ParamOf(v); ok {
			n.Source = fmt.Sprintf("function_parameter:%d", index)
			n.Module = r.symbols.FuncModule[f]
		} else {
			n.Source = "function_parameter:" + v.Name()
		}
	case *ir.InstLoad:
		n = r.resolve(v.Src, depth+1)
		n.Confidence = lower(n.Confidence, 10, 30)
	case *ir.InstGetElementPtr:
		n = r.resolve(v.Src, depth+1)
		n.Confidence = lower(n.Confidence, 5, 40)
		n.Source += "_gep_access"
	case *constant.ExprGetElementPtr:
		n = r.resolve(v.Src, depth+1)
		n.Confidence = lower(n.Confidence, 5, 40)
		n.Source += "_gep_access"
	case *ir.InstBitCast:
		n = r.resolve(v.From, depth+1)
	case *constant.ExprBitCast:
		n = r.resolve(v.From, depth+1)
	case *ir.InstPhi:
		n = r.resolvePhi(v, depth)
	case constant.Constant:
		n = Node{Kind: KindConstant, Source: "constant", Confidence: 100}
	default:
		n = Node{Kind: KindLocal, Source: "local_computation", Confidence: 50}
	}

	// Depth-limited results are not cached so a later shallow query gets the full answer.
	if n.Kind != KindRecursiveLimit {
		r.cache[v] = n
	}
	return n
}

// resolvePhi votes among the incoming origins by summing confidence per kind, then scales the
// winning kind's share of the vote.
func (r *Resolver) resolvePhi(phi *ir.InstPhi, depth int) Node {
	if len(phi.Incs) == 0 {
		return Node{Kind: KindLocal, Source: "local_computation", Confidence: 50}
	}

	votes := map[Kind]int{}
	var order []Kind
	best := map[Kind]Node{}
	total := 0
	var module *ir.Module
	for _, inc := range phi.Incs {
		in := r.resolve(inc.X, depth+1)
		if _, seen := votes[in.Kind]; !seen {
			order = append(order, in.Kind)
		}
		votes[in.Kind] += in.Confidence
		total += in.Confidence
		if in.Confidence > best[in.Kind].Confidence {
			best[in.Kind] = in
		}
		if module == nil {
			module = in.Module
		}
	}

	winner := order[0]
	for _, k := range order[1:] {
		if votes[k] > votes[winner] {
			winner = k
		}
	}

	n := best[winner]
	if total > 0 {
		n.Confidence = votes[winner] * 100 / total
	}
	n.Confidence = lower(n.Confidence, 15, 25)
	n.Module = module
	return n
}

// lower subtracts penalty from confidence without going below floor.
func lower(confidence, penalty, floor int) int {
	confidence -= penalty
	if confidence < floor {
		return floor
	}
	return confidence
}

// IsGlobalValue reports whether v is an externally visible global variable.
func IsGlobalValue(v value.Value) bool {
	g, ok := v.(*ir.Global)
	return ok && symbols.ScopeOfLinkage(g.Linkage) != symbols.ScopeStatic
}

// IsStaticValue reports whether v is a module-private global variable.
func IsStaticValue(v value.Value) bool {
	g, ok := v.(*ir.Global)
	return ok && symbols.ScopeOfLinkage(g.Linkage) == symbols.ScopeStatic
}
