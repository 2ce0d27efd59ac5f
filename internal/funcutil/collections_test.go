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

package funcutil

import "testing"

func TestMapParallelPreservesOrder(t *testing.T) {
	in := make([]int, 100)
	for i := range in {
		in[i] = i
	}
	out := MapParallel(in, func(x int) int { return x * x }, 8)
	if len(out) != len(in) {
		t.Fatalf("len(out) = %d, want %d", len(out), len(in))
	}
	for i, x := range out {
		if x != i*i {
			t.Errorf("out[%d] = %d, want %d", i, x, i*i)
		}
	}
}

func TestMapParallelZeroRoutines(t *testing.T) {
	out := MapParallel([]int{1, 2, 3}, func(x int) int { return x + 1 }, 0)
	if len(out) != 3 || out[0] != 2 || out[2] != 4 {
		t.Errorf("out = %v", out)
	}
}

func TestUnion(t *testing.T) {
	a := map[string]bool{"x": true, "y": false}
	b := map[string]bool{"y": true, "z": true}
	u := Union(a, b)
	if !u["x"] || !u["y"] || !u["z"] {
		t.Errorf("union = %v", u)
	}
}

func TestSetToOrderedSlice(t *testing.T) {
	s := SetToOrderedSlice(map[string]bool{"b": true, "a": true, "c": false})
	if len(s) != 2 || s[0] != "a" || s[1] != "b" {
		t.Errorf("slice = %v", s)
	}
}

func TestContains(t *testing.T) {
	if !Contains([]string{"p", "q"}, "q") || Contains([]string{"p"}, "r") {
		t.Errorf("Contains misbehaves")
	}
}
