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

// Package memory classifies the memory accesses of IR functions: every load, store and atomic
// operation is traced back through pointer chains to its root (a global, a handler parameter,
// a constant address) and summarized into consolidated write records.
package memory

import (
	"fmt"
	"strings"

	"github.com/irqfuzz/irqscope/analysis/irutil"
	"github.com/irqfuzz/irqscope/analysis/symbols"
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"
)

// ChainKind tags one element of a pointer chain.
type ChainKind string

const (
	ChainGlobalBase     ChainKind = "global_base"
	ChainParamIRQ       ChainKind = "parameter_0"
	ChainParamDevID     ChainKind = "parameter_1"
	ChainStructField    ChainKind = "struct_field_dereference"
	ChainArrayElement   ChainKind = "array_element_dereference"
	ChainDirectLoad     ChainKind = "direct_load"
	ChainConstantOffset ChainKind = "constant_offset"
)

// ChainElem is one step of a pointer chain. Offset is the byte offset for field and array
// dereferences; Index is the raw field or element index, -1 when dynamic.
type ChainElem struct {
	Kind   ChainKind
	Symbol string
	Struct string
	Index  int64
	Offset int64
	Value  value.Value
}

// Chain is a pointer chain ordered from root to leaf; the leaf element's value is the traced
// pointer operand itself.
type Chain struct {
	Elems      []ChainElem
	Confidence int
	Complete   bool
}

// Head returns the root element.
func (c Chain) Head() ChainElem {
	if len(c.Elems) == 0 {
		return ChainElem{}
	}
	return c.Elems[0]
}

// Tail returns the leaf element.
func (c Chain) Tail() ChainElem {
	if len(c.Elems) == 0 {
		return ChainElem{}
	}
	return c.Elems[len(c.Elems)-1]
}

// Description renders the chain as a compact arrow-joined path, e.g.
// "dev_id->test_device_offset_2".
func (c Chain) Description() string {
	parts := make([]string, 0, len(c.Elems))
	for _, e := range c.Elems {
		parts = append(parts, e.describe())
	}
	return strings.Join(parts, "->")
}

func (e ChainElem) describe() string {
	switch e.Kind {
	case ChainGlobalBase:
		return e.Symbol
	case ChainParamIRQ:
		return "irq"
	case ChainParamDevID:
		return "dev_id"
	case ChainStructField:
		if e.Index < 0 {
			return e.Struct + "_offset_dynamic"
		}
		return fmt.Sprintf("%s_offset_%d", e.Struct, e.Index)
	case ChainArrayElement:
		if e.Index < 0 {
			return "array_dynamic"
		}
		return fmt.Sprintf("array_%d", e.Index)
	case ChainConstantOffset:
		return "CONSTANT_OFFSET"
	default:
		if e.Symbol != "" {
			return e.Symbol
		}
		return "deref"
	}
}

// Tracer builds pointer chains. The cache is analyzer-scoped; the tracer is not safe for
// concurrent use.
type Tracer struct {
	symbols  *symbols.Table
	maxDepth int
	cache    map[value.Value]Chain
}

// NewTracer returns a tracer bounded to maxDepth steps.
func NewTracer(table *symbols.Table, maxDepth int) *Tracer {
	return &Tracer{symbols: table, maxDepth: maxDepth, cache: map[value.Value]Chain{}}
}

// Trace follows the pointer operand v back to its root.
func (tr *Tracer) Trace(v value.Value) Chain {
	return tr.trace(v, 0)
}

func (tr *Tracer) trace(v value.Value, depth int) Chain {
	if c, ok := tr.cache[v]; ok {
		return c
	}
	if depth > tr.maxDepth {
		return Chain{
			Elems:      []ChainElem{{Kind: ChainDirectLoad, Symbol: "depth_limit", Value: v}},
			Confidence: 10,
		}
	}

	var c Chain
	cacheable := true
	switch v := v.(type) {
	case *ir.Global:
		c = Chain{
			Elems:      []ChainElem{{Kind: ChainGlobalBase, Symbol: v.Name(), Value: v}},
			Confidence: 95,
			Complete:   true,
		}
	case *ir.Param:
		c = tr.traceParam(v)
	case *ir.InstGetElementPtr:
		c = tr.traceGEP(v, depth)
	case *ir.InstLoad:
		base := tr.trace(v.Src, depth+1)
		c = extend(base, ChainElem{Kind: ChainDirectLoad, Value: v})
		c.Confidence = lower(base.Confidence, 10, 30)
	case *ir.InstBitCast:
		c = tr.trace(v.From, depth+1)
		c = retarget(c, v)
	case *constant.Int:
		c = Chain{
			Elems: []ChainElem{{
				Kind:   ChainConstantOffset,
				Symbol: "CONSTANT_OFFSET",
				Offset: v.X.Int64(),
				Value:  v,
			}},
			Confidence: 100,
			Complete:   true,
		}
	case *constant.ExprGetElementPtr:
		c = tr.traceConstGEP(v)
	case *constant.ExprBitCast:
		c = tr.trace(v.From, depth+1)
		c = retarget(c, v)
	case *ir.InstPhi:
		c = tr.tracePhi(v, depth)
		cacheable = false
	default:
		c = Chain{
			Elems:      []ChainElem{{Kind: ChainDirectLoad, Symbol: "unknown", Value: v}},
			Confidence: 20,
		}
	}

	if cacheable && c.Confidence > 10 {
		tr.cache[v] = c
	}
	return c
}

func (tr *Tracer) traceParam(p *ir.Param) Chain {
	owner, index, ok := tr.symbols.ParamOf(p)
	if ok && irutil.IsIRQHandlerSig(owner) {
		kind := ChainParamIRQ
		symbol := "irq"
		if index == 1 {
			kind = ChainParamDevID
			symbol = "dev_id"
		}
		return Chain{
			Elems:      []ChainElem{{Kind: kind, Symbol: symbol, Value: p}},
			Confidence: 90,
			Complete:   true,
		}
	}
	return Chain{
		Elems: []ChainElem{{
			Kind:   ChainDirectLoad,
			Symbol: fmt.Sprintf("func_arg_%d", index),
			Value:  p,
		}},
		Confidence: 40,
	}
}

func (tr *Tracer) traceGEP(gep *ir.InstGetElementPtr, depth int) Chain {
	base := tr.trace(gep.Src, depth+1)
	elem := ChainElem{Value: gep, Index: -1}
	switch t := gep.ElemType.(type) {
	case *types.StructType:
		elem.Kind = ChainStructField
		elem.Struct = irutil.StructName(t)
		// The field index is the last operand of a two-index struct access.
		if len(gep.Indices) >= 2 {
			if index, ok := irutil.ConstantIndex(gep.Indices[len(gep.Indices)-1]); ok {
				elem.Index = index
				elem.Offset = irutil.FieldOffset(t, int(index))
			}
		}
	case *types.ArrayType:
		elem.Kind = ChainArrayElement
		if len(gep.Indices) >= 2 {
			if index, ok := irutil.ConstantIndex(gep.Indices[len(gep.Indices)-1]); ok {
				elem.Index = index
				elem.Offset = index * irutil.TypeSize(t.ElemType)
			}
		}
	default:
		elem.Kind = ChainArrayElement
		if len(gep.Indices) >= 1 {
			if index, ok := irutil.ConstantIndex(gep.Indices[0]); ok {
				elem.Index = index
				elem.Offset = index * irutil.TypeSize(t)
			}
		}
	}
	c := extend(base, elem)
	c.Confidence = lower(base.Confidence, 5, 40)
	return c
}

// traceConstGEP handles constant indexing expressions rooted at a global, which appear as
// initializer-style operands of loads and stores.
func (tr *Tracer) traceConstGEP(gep *constant.ExprGetElementPtr) Chain {
	g, ok := gep.Src.(*ir.Global)
	if !ok {
		return Chain{
			Elems:      []ChainElem{{Kind: ChainDirectLoad, Symbol: "unknown", Value: gep}},
			Confidence: 20,
		}
	}
	c := Chain{
		Elems:      []ChainElem{{Kind: ChainGlobalBase, Symbol: g.Name(), Value: g}},
		Confidence: 90,
		Complete:   true,
	}
	if st, ok := gep.ElemType.(*types.StructType); ok && len(gep.Indices) >= 2 {
		elem := ChainElem{
			Kind:   ChainStructField,
			Struct: irutil.StructName(st),
			Index:  -1,
			Value:  gep,
		}
		if index, ok := irutil.ConstantExprIndex(gep.Indices[len(gep.Indices)-1]); ok {
			elem.Index = index
			elem.Offset = irutil.FieldOffset(st, int(index))
		}
		c.Elems = append(c.Elems, elem)
	} else {
		c = retarget(c, gep)
	}
	return c
}

// tracePhi merges the incoming chains: the first chain is the skeleton, the confidence is the
// scaled mean and the merge is never considered complete.
func (tr *Tracer) tracePhi(phi *ir.InstPhi, depth int) Chain {
	if len(phi.Incs) == 0 {
		return Chain{
			Elems:      []ChainElem{{Kind: ChainDirectLoad, Symbol: "unknown", Value: phi}},
			Confidence: 20,
		}
	}
	var sum int
	var skeleton Chain
	for i, inc := range phi.Incs {
		in := tr.trace(inc.X, depth+1)
		if i == 0 {
			skeleton = in
		}
		sum += in.Confidence
	}
	c := Chain{
		Elems:      append([]ChainElem(nil), skeleton.Elems...),
		Confidence: sum * 8 / (10 * len(phi.Incs)),
		Complete:   false,
	}
	c = retarget(c, phi)
	return c
}

// extend copies base and appends elem on the leaf side.
func extend(base Chain, elem ChainElem) Chain {
	elems := make([]ChainElem, 0, len(base.Elems)+1)
	elems = append(elems, base.Elems...)
	elems = append(elems, elem)
	return Chain{Elems: elems, Confidence: base.Confidence, Complete: base.Complete}
}

// retarget points the leaf element at v, keeping the traced-operand invariant across
// pass-through instructions.
func retarget(c Chain, v value.Value) Chain {
	if len(c.Elems) == 0 {
		return c
	}
	elems := append([]ChainElem(nil), c.Elems...)
	elems[len(elems)-1].Value = v
	c.Elems = elems
	return c
}

func lower(confidence, penalty, floor int) int {
	confidence -= penalty
	if confidence < floor {
		return floor
	}
	return confidence
}
