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

// Package loader reads IR modules from disk. A file that is missing or fails to parse is
// skipped with a log line; only loading nothing at all is an error.
package loader

import (
	"fmt"
	"os"

	"github.com/irqfuzz/irqscope/analysis/config"
	"github.com/llir/llvm/asm"
	"github.com/llir/llvm/ir"
)

// Modules parses the given IR files. maxModules caps the number loaded, 0 meaning unlimited.
// Each loaded module's source filename is set to the path it came from, which the rest of the
// analysis uses as the module identity.
func Modules(paths []string, maxModules int, logger *config.LogGroup) ([]*ir.Module, error) {
	var modules []*ir.Module
	for _, path := range paths {
		if maxModules > 0 && len(modules) >= maxModules {
			logger.Infof("module cap %d reached, skipping the remaining %d candidates",
				maxModules, len(paths)-len(modules))
			break
		}
		if _, err := os.Stat(path); err != nil {
			logger.Debugf("no IR file at %s, skipping", path)
			continue
		}
		m, err := asm.ParseFile(path)
		if err != nil {
			logger.Warnf("failed to parse %s: %v", path, err)
			continue
		}
		m.SourceFilename = path
		modules = append(modules, m)
		logger.Debugf("loaded %s (%d functions)", path, len(m.Funcs))
	}
	if len(modules) == 0 {
		return nil, fmt.Errorf("no IR modules could be loaded from %d candidate paths", len(paths))
	}
	logger.Infof("loaded %d IR modules", len(modules))
	return modules, nil
}
