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

package memory

import (
	"fmt"

	"github.com/irqfuzz/irqscope/analysis/irutil"
	"github.com/irqfuzz/irqscope/analysis/symbols"
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/value"
)

// AccessKind classifies a memory-access record.
type AccessKind string

const (
	AccessGlobalVariable  AccessKind = "global_variable"
	AccessStructField     AccessKind = "struct_field"
	AccessArrayElement    AccessKind = "array_element"
	AccessHandlerDevID    AccessKind = "handler_dev_id"
	AccessHandlerIRQ      AccessKind = "handler_irq"
	AccessConstantAddress AccessKind = "constant_address"
	AccessIndirect        AccessKind = "indirect"
	AccessPointerChain    AccessKind = "pointer_chain"
)

// Access is one classified memory access.
type Access struct {
	Kind          AccessKind
	Symbol        string
	StructName    string
	FieldName     string
	FieldIndex    int64
	Offset        int64
	PreciseOffset int64
	Size          int64
	IsWrite       bool
	IsAtomic      bool
	Confidence    int
	Location      string
	Chain         Chain
}

// Classifier produces access records for function bodies. Not safe for concurrent use.
type Classifier struct {
	symbols *symbols.Table
	tracer  *Tracer
	fields  *StructFields
}

// NewClassifier returns a classifier whose chain tracing is bounded to maxDepth.
func NewClassifier(table *symbols.Table, maxDepth int) *Classifier {
	return &Classifier{
		symbols: table,
		tracer:  NewTracer(table, maxDepth),
		fields:  NewStructFields(),
	}
}

// Tracer exposes the underlying chain tracer for callers that trace standalone operands.
func (c *Classifier) Tracer() *Tracer { return c.tracer }

// Fields exposes the struct-field resolver.
func (c *Classifier) Fields() *StructFields { return c.fields }

// FunctionAccesses classifies every load, store, atomic read-modify-write and atomic
// compare-exchange in f.
func (c *Classifier) FunctionAccesses(f *ir.Func) []Access {
	var accesses []Access
	for _, block := range f.Blocks {
		for _, inst := range block.Insts {
			switch inst := inst.(type) {
			case *ir.InstLoad:
				a := c.Classify(f, inst.Src, irutil.TypeSize(inst.ElemType), false, false)
				a.Location = location(inst.Metadata, f)
				accesses = append(accesses, a)
			case *ir.InstStore:
				a := c.Classify(f, inst.Dst, irutil.TypeSize(inst.Src.Type()), true, false)
				a.Location = location(inst.Metadata, f)
				accesses = append(accesses, a)
			case *ir.InstAtomicRMW:
				a := c.Classify(f, inst.Dst, irutil.TypeSize(inst.X.Type()), true, true)
				a.Location = location(inst.Metadata, f)
				accesses = append(accesses, a)
			case *ir.InstCmpXchg:
				a := c.Classify(f, inst.Ptr, irutil.TypeSize(inst.New.Type()), true, true)
				a.Location = location(inst.Metadata, f)
				accesses = append(accesses, a)
			}
		}
	}
	return accesses
}

// Classify traces addr and derives the access kind from the chain shape. The containing
// function decides whether handler-parameter confidence boosting applies.
func (c *Classifier) Classify(f *ir.Func, addr value.Value, size int64, isWrite, isAtomic bool) Access {
	chain := c.tracer.Trace(addr)
	a := Access{
		Size:       size,
		IsWrite:    isWrite,
		IsAtomic:   isAtomic,
		Confidence: chain.Confidence,
		Chain:      chain,
	}

	head := chain.Head()
	switch {
	case head.Kind == ChainGlobalBase && len(chain.Elems) == 1:
		a.Kind = AccessGlobalVariable
		a.Symbol = head.Symbol
	case head.Kind == ChainGlobalBase && len(chain.Elems) == 2 && chain.Tail().Kind == ChainStructField:
		a.Kind = AccessStructField
		a.Symbol = head.Symbol
		c.fillStructInfo(&a)
	case head.Kind == ChainGlobalBase && len(chain.Elems) == 2 && chain.Tail().Kind == ChainArrayElement:
		a.Kind = AccessArrayElement
		a.Symbol = head.Symbol
		a.FieldIndex = chain.Tail().Index
		a.Offset = chain.Tail().Offset
		a.PreciseOffset = chain.Tail().Offset
	case head.Kind == ChainParamDevID && len(chain.Elems) == 1:
		a.Kind = AccessHandlerDevID
		a.Symbol = "dev_id"
	case head.Kind == ChainParamDevID:
		a.Kind = AccessPointerChain
		a.Symbol = chain.Description()
		c.fillStructInfo(&a)
	case head.Kind == ChainParamIRQ:
		a.Kind = AccessHandlerIRQ
		a.Symbol = "irq"
	case head.Kind == ChainConstantOffset:
		a.Kind = AccessConstantAddress
		a.Symbol = fmt.Sprintf("address_0x%x", head.Offset)
	case len(chain.Elems) > 1:
		a.Kind = AccessPointerChain
		a.Symbol = chain.Description()
		c.fillStructInfo(&a)
	default:
		a.Kind = AccessIndirect
		a.Symbol = head.Symbol
		if a.Symbol == "" {
			a.Symbol = "unknown"
		}
	}

	if (head.Kind == ChainParamDevID || head.Kind == ChainParamIRQ) && irutil.IsIRQHandlerSig(f) {
		a.Confidence += 10
		if a.Confidence > 100 {
			a.Confidence = 100
		}
	}
	return a
}

// fillStructInfo copies the innermost struct dereference of the chain into the record.
func (c *Classifier) fillStructInfo(a *Access) {
	for i := len(a.Chain.Elems) - 1; i >= 0; i-- {
		e := a.Chain.Elems[i]
		if e.Kind != ChainStructField {
			continue
		}
		a.StructName = e.Struct
		a.FieldIndex = e.Index
		a.FieldName = c.fields.FieldName(e.Struct, e.Index)
		a.Offset = e.Offset
		if st, ok := c.symbols.Structs[e.Struct]; ok && e.Index >= 0 {
			a.PreciseOffset = irutil.PreciseFieldOffset(st, int(e.Index))
		} else {
			a.PreciseOffset = e.Offset
		}
		return
	}
}

func location(md ir.Metadata, f *ir.Func) string {
	return irutil.Location(md, f)
}
