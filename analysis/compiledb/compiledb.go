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

// Package compiledb reads the two input documents of an analysis run: the clang compilation
// database, from which candidate IR file paths are derived, and the handler-list document
// naming the interrupt handlers to analyze.
package compiledb

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Entry is one compilation-database record. Only File drives the analysis; the other fields
// are retained for future use.
type Entry struct {
	Directory string   `json:"directory"`
	File      string   `json:"file"`
	Command   string   `json:"command,omitempty"`
	Arguments []string `json:"arguments,omitempty"`
}

// Load parses a compile_commands.json document.
func Load(path string) ([]Entry, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read compilation database: %w", err)
	}
	var entries []Entry
	if err := json.Unmarshal(b, &entries); err != nil {
		return nil, fmt.Errorf("could not parse compilation database %s: %w", path, err)
	}
	return entries, nil
}

// IRPaths derives the candidate IR file path of every entry by replacing the source file
// extension with extension, deduplicating while preserving order.
func IRPaths(entries []Entry, extension string) []string {
	seen := map[string]bool{}
	var paths []string
	for _, e := range entries {
		if e.File == "" {
			continue
		}
		path := replaceExtension(e.File, extension)
		if !seen[path] {
			seen[path] = true
			paths = append(paths, path)
		}
	}
	return paths
}

func replaceExtension(file, extension string) string {
	if dot := strings.LastIndex(file, "."); dot > strings.LastIndex(file, "/") {
		return file[:dot] + extension
	}
	return file + extension
}

// handlerList mirrors the handler-list document. Items carry at least a handler name;
// additional fields are ignored.
type handlerList struct {
	Combinations []struct {
		Handler string `json:"handler"`
	} `json:"combinations"`
}

// LoadHandlers parses the handler-list document and returns the handler names, deduplicated
// in first-seen order, together with the number of duplicate names that were dropped.
func LoadHandlers(path string) ([]string, int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("could not read handler list: %w", err)
	}
	var list handlerList
	if err := json.Unmarshal(b, &list); err != nil {
		return nil, 0, fmt.Errorf("could not parse handler list %s: %w", path, err)
	}
	seen := map[string]bool{}
	var handlers []string
	duplicates := 0
	for _, c := range list.Combinations {
		if c.Handler == "" {
			continue
		}
		if seen[c.Handler] {
			duplicates++
			continue
		}
		seen[c.Handler] = true
		handlers = append(handlers, c.Handler)
	}
	return handlers, duplicates, nil
}
