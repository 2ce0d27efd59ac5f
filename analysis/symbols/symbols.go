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

// Package symbols builds the whole-program symbol table over a set of LLVM IR modules.
// The table links functions, globals and named struct types across modules, resolving
// name collisions between static definitions by scope and defining-module hints.
package symbols

import (
	"github.com/irqfuzz/irqscope/analysis/irutil"
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/types"
)

// Table is the cross-module symbol table. It is built once after loading and treated as
// read-only afterwards, so it is safe to share between traversals of the same analyzer.
type Table struct {
	// Modules are the loaded IR modules, in load order.
	Modules []*ir.Module

	// GlobalFuncs maps an externally visible function name to its definition.
	GlobalFuncs map[string]*ir.Func
	// StaticFuncs maps a module-private function name to every module's definition of it.
	StaticFuncs map[string][]*ir.Func
	// Externals maps a declared-but-undefined function name to one representative declaration.
	Externals map[string]*ir.Func
	// BySignature groups every function, defined or declared, by its collapsed signature.
	BySignature map[string][]*ir.Func

	// GlobalVars maps an externally visible global name to its definition or declaration.
	GlobalVars map[string]*ir.Global
	// StaticVars maps a module-private global name to every module's definition of it.
	StaticVars map[string][]*ir.Global

	// Structs maps a canonical struct name to a representative named struct type, and
	// StructVariants to every per-module variant of it.
	Structs        map[string]*types.StructType
	StructVariants map[string][]*types.StructType

	// FuncModule and VarModule record the defining module of each symbol.
	FuncModule map[*ir.Func]*ir.Module
	VarModule  map[*ir.Global]*ir.Module

	// ParamIndex and ParamFunc recover a parameter's position and owning function, which the
	// IR representation does not carry on the parameter itself.
	ParamIndex map[*ir.Param]int
	ParamFunc  map[*ir.Param]*ir.Func
}

// NewTable indexes the given modules.
func NewTable(modules []*ir.Module) *Table {
	t := &Table{
		Modules:        modules,
		GlobalFuncs:    map[string]*ir.Func{},
		StaticFuncs:    map[string][]*ir.Func{},
		Externals:      map[string]*ir.Func{},
		BySignature:    map[string][]*ir.Func{},
		GlobalVars:     map[string]*ir.Global{},
		StaticVars:     map[string][]*ir.Global{},
		Structs:        map[string]*types.StructType{},
		StructVariants: map[string][]*types.StructType{},
		FuncModule:     map[*ir.Func]*ir.Module{},
		VarModule:      map[*ir.Global]*ir.Module{},
		ParamIndex:     map[*ir.Param]int{},
		ParamFunc:      map[*ir.Param]*ir.Func{},
	}
	for _, m := range modules {
		t.indexModule(m)
	}
	return t
}

func (t *Table) indexModule(m *ir.Module) {
	for _, f := range m.Funcs {
		t.FuncModule[f] = m
		for i, p := range f.Params {
			t.ParamIndex[p] = i
			t.ParamFunc[p] = f
		}
		t.BySignature[SignatureString(f.Sig)] = append(t.BySignature[SignatureString(f.Sig)], f)
		name := f.Name()
		if irutil.IsDeclaration(f) {
			if _, seen := t.Externals[name]; !seen {
				t.Externals[name] = f
			}
			continue
		}
		switch ScopeOfLinkage(f.Linkage) {
		case ScopeStatic:
			t.StaticFuncs[name] = append(t.StaticFuncs[name], f)
		default:
			// Weak definitions act as globals unless a strong definition wins.
			if _, seen := t.GlobalFuncs[name]; !seen || ScopeOfLinkage(f.Linkage) == ScopeGlobal {
				t.GlobalFuncs[name] = f
			}
		}
	}

	for _, g := range m.Globals {
		t.VarModule[g] = m
		name := g.Name()
		switch ScopeOfLinkage(g.Linkage) {
		case ScopeStatic:
			t.StaticVars[name] = append(t.StaticVars[name], g)
		default:
			prev, seen := t.GlobalVars[name]
			// A definition replaces a declaration of the same name.
			if !seen || (prev.Init == nil && g.Init != nil) {
				t.GlobalVars[name] = g
			}
		}
	}

	for _, def := range m.TypeDefs {
		st, ok := def.(*types.StructType)
		if !ok || st.Name() == "" {
			continue
		}
		canonical := irutil.CanonicalName(st.Name())
		if _, seen := t.Structs[canonical]; !seen {
			t.Structs[canonical] = st
		}
		t.StructVariants[canonical] = append(t.StructVariants[canonical], st)
	}
}

// LookupFunc resolves a function name to its definition. Global definitions win; a static
// definition is preferred from the hint module when one exists there, otherwise the first
// module that defines the name is used.
func (t *Table) LookupFunc(name string, hint *ir.Module) *ir.Func {
	if f, ok := t.GlobalFuncs[name]; ok {
		return f
	}
	statics := t.StaticFuncs[name]
	if len(statics) == 0 {
		return nil
	}
	if hint != nil {
		for _, f := range statics {
			if t.FuncModule[f] == hint {
				return f
			}
		}
	}
	return statics[0]
}

// LookupVar resolves a global variable name with the same rules as LookupFunc.
func (t *Table) LookupVar(name string, hint *ir.Module) *ir.Global {
	if g, ok := t.GlobalVars[name]; ok {
		return g
	}
	statics := t.StaticVars[name]
	if len(statics) == 0 {
		return nil
	}
	if hint != nil {
		for _, g := range statics {
			if t.VarModule[g] == hint {
				return g
			}
		}
	}
	return statics[0]
}

// FuncScope returns the scope of a function, ScopeGlobal for declarations.
func (t *Table) FuncScope(f *ir.Func) Scope {
	if irutil.IsDeclaration(f) {
		return ScopeGlobal
	}
	return ScopeOfLinkage(f.Linkage)
}

// VarScope returns the scope of a global variable.
func (t *Table) VarScope(g *ir.Global) Scope {
	return ScopeOfLinkage(g.Linkage)
}

// ParamOf returns the owning function and index of a parameter.
func (t *Table) ParamOf(p *ir.Param) (*ir.Func, int, bool) {
	f, ok := t.ParamFunc[p]
	if !ok {
		return nil, 0, false
	}
	return f, t.ParamIndex[p], true
}

// SameSignature returns every function sharing the collapsed signature of sig.
func (t *Table) SameSignature(sig *types.FuncType) []*ir.Func {
	return t.BySignature[SignatureString(sig)]
}

// DefinedFuncCount returns the number of function definitions across all modules.
func (t *Table) DefinedFuncCount() int {
	n := len(t.GlobalFuncs)
	for _, statics := range t.StaticFuncs {
		n += len(statics)
	}
	return n
}
