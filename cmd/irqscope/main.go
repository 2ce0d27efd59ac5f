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

package main

import (
	"fmt"
	"os"

	"github.com/irqfuzz/irqscope/analysis"
	"github.com/irqfuzz/irqscope/cmd/irqscope/analyze"
	"github.com/irqfuzz/irqscope/cmd/irqscope/parallel"
)

const usage = `Irqscope: interrupt-handler memory-footprint analyzer for LLVM IR
Usage:
  irqscope [tool] [options]
Tools:
  - analyze: analyzes the listed interrupt handlers over all IR modules in one pass
  - parallel: analyzes the handlers with independent workers over module groups
Examples:
  Run the analysis: irqscope analyze -compile-commands compile_commands.json -handlers handlers.json
  Run with 8 workers: irqscope parallel -threads 8 -compile-commands compile_commands.json -handlers handlers.json`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "error: expected subcommand\n%s\n", usage)
		os.Exit(1)
	}

	// hardcode help flag
	if snd := os.Args[1]; snd == "-help" || snd == "--help" || snd == "-h" {
		fmt.Println(usage)
		return
	}

	// hardcode version flag
	if snd := os.Args[1]; snd == "-version" || snd == "--version" {
		fmt.Println(analysis.Version)
		return
	}

	args := os.Args[2:]
	switch cmd := os.Args[1]; cmd {
	case "analyze":
		flags, err := analyze.NewFlags(args)
		if err != nil {
			errExit(err)
		}
		if err := analyze.Run(flags); err != nil {
			errExit(err)
		}
	case "parallel":
		flags, err := parallel.NewFlags(args)
		if err != nil {
			errExit(err)
		}
		if err := parallel.Run(flags); err != nil {
			errExit(err)
		}
	default:
		fmt.Fprintf(os.Stderr, "error: unexpected command: %v\n", cmd)
		fmt.Fprintf(os.Stderr, "usage:\n%s\n", usage)
		os.Exit(1)
	}
}

func errExit(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
