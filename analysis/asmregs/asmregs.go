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

// Package asmregs extracts register accesses from inline assembly. Registers are matched in
// the assembly text against a fixed x86-64 vocabulary with word-boundary guards; when the text
// names no register, the constraint string is parsed instead.
package asmregs

import (
	"strings"

	"github.com/irqfuzz/irqscope/analysis/irutil"
	"github.com/llir/llvm/ir"
)

// RegisterAccess is one register touched by an inline assembly statement.
type RegisterAccess struct {
	Register   string `json:"register_name"`
	IsWrite    bool   `json:"is_write"`
	Constraint string `json:"inline_asm_constraint"`
	Location   string `json:"source_location,omitempty"`
}

// commonRegisters is the match vocabulary; the boundary guards keep "ax" from matching
// inside "eax" or "rax".
var commonRegisters = []string{
	"rax", "rbx", "rcx", "rdx", "rsi", "rdi", "rbp", "rsp",
	"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15",
	"eax", "ebx", "ecx", "edx", "esi", "edi",
	"ax", "bx", "cx", "dx",
	"al", "bl", "cl", "dl",
}

type constraintMapping struct {
	letter      byte
	register    string
	description string
}

var constraintMappings = []constraintMapping{
	{'a', "rax", "rax register constraint"},
	{'b', "rbx", "rbx register constraint"},
	{'c', "rcx", "rcx register constraint"},
	{'d', "rdx", "rdx register constraint"},
	{'S', "rsi", "rsi register constraint"},
	{'D', "rdi", "rdi register constraint"},
	{'r', "general", "general register constraint"},
	{'m', "memory", "memory constraint"},
	{'q', "abcd", "a,b,c,d register constraint"},
}

// Analyze returns the register accesses of one inline assembly value.
func Analyze(asm *ir.InlineAsm) []RegisterAccess {
	constraint := asm.Constraint
	isWrite := isWriteConstraint(constraint)

	var accesses []RegisterAccess
	for _, reg := range extractRegisters(asm.Asm) {
		accesses = append(accesses, RegisterAccess{
			Register:   reg,
			IsWrite:    isWrite,
			Constraint: constraint,
		})
	}
	if len(accesses) == 0 {
		accesses = constraintAccesses(constraint)
	}
	return accesses
}

// Collect walks f and analyzes every inline assembly call, annotating each access with the
// call location.
func Collect(f *ir.Func) []RegisterAccess {
	var accesses []RegisterAccess
	for _, block := range f.Blocks {
		for _, inst := range block.Insts {
			call, ok := inst.(*ir.InstCall)
			if !ok {
				continue
			}
			asm, ok := call.Callee.(*ir.InlineAsm)
			if !ok {
				continue
			}
			for _, a := range Analyze(asm) {
				if a.Location == "" {
					a.Location = irutil.Location(call.Metadata, f)
				}
				accesses = append(accesses, a)
			}
		}
	}
	return accesses
}

// isWriteConstraint reports whether the constraint string declares an output ("=") or an
// in/out ("+") operand.
func isWriteConstraint(constraint string) bool {
	return strings.Contains(constraint, "=") || strings.Contains(constraint, "+")
}

// extractRegisters matches the vocabulary against the assembly text. A match must sit on word
// boundaries: the preceding character may not be alphanumeric, '_' or '%', the following one
// not alphanumeric or '_'. Each register is reported once.
func extractRegisters(text string) []string {
	var found []string
	for _, reg := range commonRegisters {
		pos := 0
		for {
			i := strings.Index(text[pos:], reg)
			if i < 0 {
				break
			}
			i += pos
			complete := true
			if i > 0 {
				prev := text[i-1]
				if isWordChar(prev) || prev == '%' {
					complete = false
				}
			}
			if end := i + len(reg); end < len(text) {
				if isWordChar(text[end]) {
					complete = false
				}
			}
			if complete && !contains(found, reg) {
				found = append(found, reg)
			}
			pos = i + len(reg)
		}
	}
	return found
}

func isWordChar(c byte) bool {
	return c == '_' ||
		('a' <= c && c <= 'z') ||
		('A' <= c && c <= 'Z') ||
		('0' <= c && c <= '9')
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

// constraintAccesses infers register use from the constraint string alone.
func constraintAccesses(constraint string) []RegisterAccess {
	isWrite := isWriteConstraint(constraint)
	var accesses []RegisterAccess
	for _, m := range constraintMappings {
		if strings.IndexByte(constraint, m.letter) >= 0 {
			accesses = append(accesses, RegisterAccess{
				Register:   m.register,
				IsWrite:    isWrite,
				Constraint: constraint,
				Location:   m.description,
			})
		}
	}
	if strings.Contains(constraint, "cc") {
		accesses = append(accesses, RegisterAccess{
			Register:   "flags",
			IsWrite:    true,
			Constraint: constraint,
			Location:   "condition codes modified",
		})
	}
	if strings.Contains(constraint, "memory") {
		accesses = append(accesses, RegisterAccess{
			Register:   "memory_barrier",
			IsWrite:    true,
			Constraint: constraint,
			Location:   "memory clobber",
		})
	}
	return accesses
}
