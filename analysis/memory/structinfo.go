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

import "fmt"

// wellKnownFields maps canonical struct names to field names for the device structures the
// reports most often surface. IR carries field indices only, so names come from this table.
var wellKnownFields = map[string][]string{
	"test_device": {
		"regs", "stats", "rx_buffers", "tx_buffers", "lock", "device_list",
		"state", "irq_number", "callback", "work", "name", "flags",
	},
	"buffer_info": {"data_ptr", "size", "used", "next", "ref_count"},
	"device_regs": {"control", "status", "data", "irq_mask", "dma_addr"},
	"irq_stats":   {"total_irqs", "error_irqs", "spurious_irqs", "last_error_code"},
}

// StructFields resolves field names with a per-analyzer cache.
type StructFields struct {
	cache map[string]string
}

// NewStructFields returns an empty field-name resolver.
func NewStructFields() *StructFields {
	return &StructFields{cache: map[string]string{}}
}

// FieldName returns the name of field index in structName. Dynamic indices (index < 0) map
// to "dynamic_field"; unknown structures fall back to positional names.
func (sf *StructFields) FieldName(structName string, index int64) string {
	if index < 0 {
		return "dynamic_field"
	}
	key := fmt.Sprintf("%s#%d", structName, index)
	if name, ok := sf.cache[key]; ok {
		return name
	}
	name := fmt.Sprintf("field_%d", index)
	if fields, ok := wellKnownFields[structName]; ok && int(index) < len(fields) {
		name = fields[index]
	}
	sf.cache[key] = name
	return name
}

// Known reports whether FieldName would produce a real name rather than a positional fallback.
func (sf *StructFields) Known(structName string, index int64) bool {
	if index < 0 {
		return false
	}
	fields, ok := wellKnownFields[structName]
	return ok && int(index) < len(fields)
}
