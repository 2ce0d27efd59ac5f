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

package symbols

import (
	"fmt"
	"strings"

	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
)

// Scope classifies a symbol's visibility across modules.
type Scope string

const (
	// ScopeGlobal symbols are visible to every module and resolve to one definition
	ScopeGlobal Scope = "global"
	// ScopeStatic symbols are private to the defining module; several modules may define
	// the same static name
	ScopeStatic Scope = "static"
	// ScopeWeak symbols may be overridden by a strong definition at link time
	ScopeWeak Scope = "weak"
	// ScopeCommon symbols are tentative definitions merged by the linker
	ScopeCommon Scope = "common"
)

// ScopeOfLinkage maps an IR linkage to the symbol scope used for lookup.
func ScopeOfLinkage(linkage enum.Linkage) Scope {
	switch linkage {
	case enum.LinkageInternal, enum.LinkagePrivate:
		return ScopeStatic
	case enum.LinkageWeak, enum.LinkageWeakODR, enum.LinkageLinkOnce, enum.LinkageLinkOnceODR:
		return ScopeWeak
	case enum.LinkageCommon:
		return ScopeCommon
	default:
		return ScopeGlobal
	}
}

// kindID collapses a type to an identity that ignores integer widths, mirroring how LLVM's
// own type ids group types. Two function types with the same kindID sequence are considered
// signature-compatible for indirect call matching.
func kindID(t types.Type) int {
	switch t := t.(type) {
	case *types.VoidType:
		return 0
	case *types.FloatType:
		switch t.Kind {
		case types.FloatKindHalf:
			return 1
		case types.FloatKindFloat:
			return 2
		case types.FloatKindDouble:
			return 3
		default:
			return 4
		}
	case *types.IntType:
		return 10
	case *types.FuncType:
		return 11
	case *types.StructType:
		return 12
	case *types.ArrayType:
		return 13
	case *types.PointerType:
		return 14
	case *types.VectorType:
		return 15
	case *types.LabelType:
		return 16
	case *types.MetadataType:
		return 17
	}
	return 99
}

// SignatureString encodes a function type as "ret(param,param,...)" over kind ids. Integer
// widths collapse to one kind, so an i32-returning and an i64-returning handler candidate
// share a signature, and so do pointers regardless of pointee.
func SignatureString(sig *types.FuncType) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d(", kindID(sig.RetType))
	for i, p := range sig.Params {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%d", kindID(p))
	}
	if sig.Variadic {
		if len(sig.Params) > 0 {
			b.WriteByte(',')
		}
		b.WriteString("...")
	}
	b.WriteByte(')')
	return b.String()
}
