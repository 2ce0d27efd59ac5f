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

// Package irutil provides utilities to inspect the LLVM IR representation: type naming and
// sizing, structure canonicalization, handler signature detection and debug locations.
package irutil

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/metadata"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"
)

// ModuleName returns the identifier of a loaded module, which the loader sets to the path the
// module was parsed from.
func ModuleName(m *ir.Module) string {
	if m == nil {
		return ""
	}
	return m.SourceFilename
}

// IsDeclaration returns true when f has no body.
func IsDeclaration(f *ir.Func) bool {
	return len(f.Blocks) == 0
}

// IsIRQHandlerSig returns true when f has the shape of an interrupt handler entry point:
// an integer return and exactly two parameters, an i32 IRQ number and an opaque device pointer.
func IsIRQHandlerSig(f *ir.Func) bool {
	if f == nil || f.Sig == nil {
		return false
	}
	if _, ok := f.Sig.RetType.(*types.IntType); !ok {
		return false
	}
	if len(f.Params) != 2 {
		return false
	}
	first, ok := f.Params[0].Type().(*types.IntType)
	if !ok || first.BitSize != 32 {
		return false
	}
	_, ok = f.Params[1].Type().(*types.PointerType)
	return ok
}

// DirectCallee returns the function a call instruction targets directly, looking through a
// constant bitcast. The second return value is false for true indirect calls and inline asm.
func DirectCallee(call *ir.InstCall) (*ir.Func, bool) {
	switch callee := call.Callee.(type) {
	case *ir.Func:
		return callee, true
	case *constant.ExprBitCast:
		if f, ok := callee.From.(*ir.Func); ok {
			return f, true
		}
	}
	return nil, false
}

// IsInlineAsmCall returns true when the call invokes inline assembly.
func IsInlineAsmCall(call *ir.InstCall) bool {
	_, ok := call.Callee.(*ir.InlineAsm)
	return ok
}

// LineOf extracts the debug line attached to an instruction, if any.
func LineOf(md ir.Metadata) (int64, bool) {
	for _, attachment := range md {
		if attachment.Name != "dbg" {
			continue
		}
		if loc, ok := attachment.Node.(*metadata.DILocation); ok {
			return loc.Line, true
		}
	}
	return 0, false
}

// Location renders an instruction position as "line N (in F)", falling back to the bare
// function name when the module carries no debug info.
func Location(md ir.Metadata, f *ir.Func) string {
	if line, ok := LineOf(md); ok {
		return fmt.Sprintf("line %d (in %s)", line, f.Name())
	}
	return fmt.Sprintf("(in %s)", f.Name())
}

// StructName returns the canonical name of a struct type: the "struct." prefix and any
// compiler-appended numeric suffix (".19", ".15", ...) are stripped. Anonymous structs are
// reported as "anonymous_struct".
func StructName(st *types.StructType) string {
	if st == nil {
		return ""
	}
	name := st.Name()
	if name == "" {
		return "anonymous_struct"
	}
	return CanonicalName(name)
}

// CanonicalName strips the "struct." prefix and a trailing numeric variant suffix from a type name.
func CanonicalName(name string) string {
	name = strings.TrimPrefix(name, "struct.")
	if dot := strings.LastIndex(name, "."); dot >= 0 {
		suffix := name[dot+1:]
		if _, err := strconv.Atoi(suffix); err == nil && suffix != "" {
			name = name[:dot]
		}
	}
	return name
}

// TypeSize returns the byte size of a type. Pointer sizes assume a 64-bit target. Struct sizes
// are the packed sum of the field sizes; padding is accounted for separately where it matters.
func TypeSize(t types.Type) int64 {
	switch t := t.(type) {
	case *types.IntType:
		return int64(t.BitSize+7) / 8
	case *types.FloatType:
		switch t.Kind {
		case types.FloatKindHalf:
			return 2
		case types.FloatKindFloat:
			return 4
		case types.FloatKindDouble:
			return 8
		default:
			return 16
		}
	case *types.PointerType:
		return 8
	case *types.ArrayType:
		return int64(t.Len) * TypeSize(t.ElemType)
	case *types.StructType:
		var total int64
		for _, field := range t.Fields {
			total += TypeSize(field)
		}
		return total
	}
	return 8
}

// FieldOffset returns the byte offset of field index in st, rounding each field up to 8-byte
// alignment. This mirrors how the access reports have always computed offsets; see
// PreciseFieldOffset for the packed variant.
func FieldOffset(st *types.StructType, index int) int64 {
	var offset int64
	for i := 0; i < index && i < len(st.Fields); i++ {
		if offset%8 != 0 {
			offset = (offset + 7) &^ 7
		}
		offset += TypeSize(st.Fields[i])
	}
	return offset
}

// PreciseFieldOffset returns the packed byte offset of field index in st.
func PreciseFieldOffset(st *types.StructType, index int) int64 {
	var offset int64
	for i := 0; i < index && i < len(st.Fields); i++ {
		offset += TypeSize(st.Fields[i])
	}
	return offset
}

// TypeNames caches human-readable type names. The cache is analyzer-scoped and not safe for
// concurrent use.
type TypeNames struct {
	names map[types.Type]string
}

// NewTypeNames returns an empty type-name cache.
func NewTypeNames() *TypeNames {
	return &TypeNames{names: map[types.Type]string{}}
}

// Name returns a compact printable name for a type.
func (tn *TypeNames) Name(t types.Type) string {
	if name, ok := tn.names[t]; ok {
		return name
	}
	var name string
	switch t := t.(type) {
	case *types.IntType:
		name = fmt.Sprintf("i%d", t.BitSize)
	case *types.FloatType:
		switch t.Kind {
		case types.FloatKindFloat:
			name = "float"
		case types.FloatKindDouble:
			name = "double"
		default:
			name = "floating_point"
		}
	case *types.PointerType:
		// Not recursing on the element type avoids self-referential struct loops.
		name = "pointer"
	case *types.StructType:
		name = "struct." + StructName(t)
	case *types.ArrayType:
		name = fmt.Sprintf("[%d x %s]", t.Len, tn.Name(t.ElemType))
	case *types.VoidType:
		name = "void"
	case *types.FuncType:
		name = "function"
	default:
		name = "unknown_type"
	}
	tn.names[t] = name
	return name
}

// ConstantIndex returns the integer value of a constant index operand.
func ConstantIndex(v value.Value) (int64, bool) {
	if ci, ok := v.(*constant.Int); ok {
		return ci.X.Int64(), true
	}
	return 0, false
}

// ConstantExprIndex returns the integer value of a constant index inside a constant expression.
func ConstantExprIndex(c constant.Constant) (int64, bool) {
	if ci, ok := c.(*constant.Int); ok {
		return ci.X.Int64(), true
	}
	return 0, false
}
