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

package loader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/irqfuzz/irqscope/analysis/config"
)

const sampleIR = `@irq_count = global i32 0

define i32 @dev_irq_handler(i32 %irq, i8* %dev) {
entry:
	store i32 1, i32* @irq_count
	ret i32 1
}
`

func testLogger() *config.LogGroup {
	cfg := config.NewDefault()
	cfg.LogLevel = int(config.ErrLevel)
	return config.NewLogGroup(cfg)
}

func writeIR(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestModulesLoadsAndNamesModules(t *testing.T) {
	dir := t.TempDir()
	path := writeIR(t, dir, "dev.ll", sampleIR)
	modules, err := Modules([]string{path}, 0, testLogger())
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(modules) != 1 {
		t.Fatalf("loaded %d modules, want 1", len(modules))
	}
	if modules[0].SourceFilename != path {
		t.Errorf("module identity = %q, want the file path", modules[0].SourceFilename)
	}
	if len(modules[0].Funcs) != 1 || modules[0].Funcs[0].Name() != "dev_irq_handler" {
		t.Errorf("parsed functions = %v", modules[0].Funcs)
	}
}

func TestModulesSkipsMissingAndBroken(t *testing.T) {
	dir := t.TempDir()
	good := writeIR(t, dir, "good.ll", sampleIR)
	broken := writeIR(t, dir, "broken.ll", "define nonsense {{{")
	missing := filepath.Join(dir, "missing.ll")

	modules, err := Modules([]string{missing, broken, good}, 0, testLogger())
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(modules) != 1 {
		t.Errorf("loaded %d modules, want the good one only", len(modules))
	}
}

func TestModulesErrorsWhenNothingLoads(t *testing.T) {
	if _, err := Modules([]string{filepath.Join(t.TempDir(), "nope.ll")}, 0, testLogger()); err == nil {
		t.Errorf("expected an error when no module loads")
	}
}

func TestModulesCap(t *testing.T) {
	dir := t.TempDir()
	a := writeIR(t, dir, "a.ll", sampleIR)
	b := writeIR(t, dir, "b.ll", sampleIR)
	modules, err := Modules([]string{a, b}, 1, testLogger())
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(modules) != 1 {
		t.Errorf("loaded %d modules, want the capped 1", len(modules))
	}
}
