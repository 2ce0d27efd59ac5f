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

package config

const (
	// DefaultMaxCallDepth is the default bound on the call-graph traversal from a handler root
	DefaultMaxCallDepth = 15

	// DefaultMaxDataFlowDepth is the default recursion bound of the value-origin resolver
	DefaultMaxDataFlowDepth = 10

	// DefaultIRExtension is the extension substituted for the source extension when mapping
	// compilation-database entries to IR files
	DefaultIRExtension = ".ll"

	// DefaultNumThreads is the default number of workers in parallel mode
	DefaultNumThreads = 4

	// DefaultGroupSize is the default number of IR modules per worker group in parallel mode
	DefaultGroupSize = 500

	// DefaultPointsToBudgetSeconds is the default soft time budget of the points-to engine
	DefaultPointsToBudgetSeconds = 120
)
