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
	"sort"
	"strings"

	"github.com/irqfuzz/irqscope/analysis/dataflow"
	"github.com/irqfuzz/irqscope/analysis/irutil"
	"github.com/irqfuzz/irqscope/analysis/symbols"
	"github.com/irqfuzz/irqscope/internal/funcutil"
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"
)

// Write is a consolidated record of all writes to one target across the analyzed functions.
type Write struct {
	TargetName string
	TargetKind string
	Scope      symbols.Scope
	Count      int
	Locations  []string
	IsCritical bool
	Confidence int

	// Struct-field and array-element detail, zero-valued otherwise.
	StructName string
	FieldName  string
	FieldIndex int64
	Offset     int64
	Size       int64
	Path       string
}

// Summary aggregates the memory behavior of a set of functions.
type Summary struct {
	Accesses        []Access
	Writes          []*Write
	ModifiedGlobals []string
	ModifiedStatics []string
	Structs         []string
}

// Summarizer runs the classifier and the origin resolver over reachable functions and
// consolidates global and static writes. Not safe for concurrent use.
type Summarizer struct {
	symbols    *symbols.Table
	classifier *Classifier
	resolver   *dataflow.Resolver
}

// NewSummarizer wires a summarizer over shared analyzer components.
func NewSummarizer(table *symbols.Table, classifier *Classifier, resolver *dataflow.Resolver) *Summarizer {
	return &Summarizer{symbols: table, classifier: classifier, resolver: resolver}
}

// Summarize classifies every function and consolidates the writes, keyed by target name and
// kind. Write records come out sorted by criticality, then write count.
func (s *Summarizer) Summarize(funcs []*ir.Func) *Summary {
	summary := &Summary{}
	writes := map[string]*Write{}
	globals := map[string]bool{}
	statics := map[string]bool{}
	structs := map[string]bool{}

	for _, f := range funcs {
		accesses := s.classifier.FunctionAccesses(f)
		summary.Accesses = append(summary.Accesses, accesses...)
		for _, a := range accesses {
			if a.StructName != "" {
				structs[a.StructName] = true
			}
		}
		s.collectWrites(f, writes, globals, statics)
	}

	for _, w := range writes {
		summary.Writes = append(summary.Writes, w)
	}
	sort.Slice(summary.Writes, func(i, j int) bool {
		a, b := summary.Writes[i], summary.Writes[j]
		if a.IsCritical != b.IsCritical {
			return a.IsCritical
		}
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.TargetName < b.TargetName
	})

	summary.ModifiedGlobals = funcutil.SetToOrderedSlice(globals)
	summary.ModifiedStatics = funcutil.SetToOrderedSlice(statics)
	summary.Structs = funcutil.SetToOrderedSlice(structs)
	return summary
}

func (s *Summarizer) collectWrites(f *ir.Func, writes map[string]*Write, globals, statics map[string]bool) {
	for _, block := range f.Blocks {
		for _, inst := range block.Insts {
			var dst value.Value
			var size int64
			suffix := ""
			var md ir.Metadata
			switch inst := inst.(type) {
			case *ir.InstStore:
				dst, size, md = inst.Dst, irutil.TypeSize(inst.Src.Type()), inst.Metadata
			case *ir.InstAtomicRMW:
				dst, size, md = inst.Dst, irutil.TypeSize(inst.X.Type()), inst.Metadata
				suffix = "_atomic"
			case *ir.InstCmpXchg:
				dst, size, md = inst.Ptr, irutil.TypeSize(inst.New.Type()), inst.Metadata
				suffix = "_cmpxchg"
			default:
				continue
			}
			s.recordWrite(f, dst, size, suffix, md, writes, globals, statics)
		}
	}
}

func (s *Summarizer) recordWrite(f *ir.Func, dst value.Value, size int64, suffix string,
	md ir.Metadata, writes map[string]*Write, globals, statics map[string]bool) {
	node := s.resolver.Resolve(dst)
	if !node.IsGlobal() && !node.IsStatic() {
		return
	}

	baseName := originName(node.Source)
	if baseName == "" {
		return
	}
	// A store through a pointer loaded from a global is an indirect write to wherever that
	// pointer leads, not a write to the global itself.
	if _, viaLoad := dst.(*ir.InstLoad); viaLoad && suffix == "" {
		suffix = "_indirect"
	}

	scope := symbols.ScopeGlobal
	kind := "global_variable"
	if node.IsStatic() {
		scope = symbols.ScopeStatic
		kind = "static_variable"
	}

	w := &Write{
		TargetName: baseName + suffix,
		TargetKind: kind,
		Scope:      scope,
		Confidence: node.Confidence,
		Size:       size,
	}
	s.fillWriteDetail(w, dst, baseName)

	key := w.TargetName + "_" + w.TargetKind
	existing, ok := writes[key]
	if !ok {
		writes[key] = w
		existing = w
	}
	existing.Count++
	existing.Locations = append(existing.Locations, location(md, f))
	if node.IsGlobal() || suffix == "_atomic" || suffix == "_cmpxchg" {
		existing.IsCritical = true
	}
	if node.Confidence > existing.Confidence {
		existing.Confidence = node.Confidence
	}

	if scope == symbols.ScopeGlobal {
		globals[baseName] = true
	} else {
		statics[baseName] = true
	}
}

// fillWriteDetail attaches struct-field or array-element information when the destination
// goes through an indexing operation.
func (s *Summarizer) fillWriteDetail(w *Write, dst value.Value, baseName string) {
	gep, ok := dst.(*ir.InstGetElementPtr)
	if !ok {
		return
	}
	switch t := gep.ElemType.(type) {
	case *types.StructType:
		w.TargetKind = "struct_field"
		w.StructName = irutil.StructName(t)
		w.FieldIndex = -1
		if len(gep.Indices) >= 2 {
			if index, ok := irutil.ConstantIndex(gep.Indices[len(gep.Indices)-1]); ok {
				w.FieldIndex = index
				w.Offset = irutil.FieldOffset(t, int(index))
			}
		}
		w.FieldName = s.classifier.Fields().FieldName(w.StructName, w.FieldIndex)
		w.Path = fmt.Sprintf("%s.%s::%s", baseName, w.StructName, w.FieldName)
	case *types.ArrayType:
		w.TargetKind = "array_element"
		w.Size = irutil.TypeSize(t.ElemType)
		if len(gep.Indices) >= 2 {
			if index, ok := irutil.ConstantIndex(gep.Indices[len(gep.Indices)-1]); ok {
				w.FieldIndex = index
				w.Offset = index * w.Size
			}
		}
	}
}

// originName extracts the symbol name from an origin descriptor such as
// "global_variable:counter_gep_access".
func originName(source string) string {
	_, name, ok := strings.Cut(source, ":")
	if !ok {
		return ""
	}
	for strings.HasSuffix(name, "_gep_access") {
		name = strings.TrimSuffix(name, "_gep_access")
	}
	return name
}
