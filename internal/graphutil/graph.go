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

// Package graphutil adapts directed graphs built by the analyses to existing graph libraries.
package graphutil

import (
	"sort"

	"gonum.org/v1/gonum/graph"
)

// CGraph is an abstraction over a labelled directed graph to work with existing graph libraries.
// It implements the methods to satisfy yourbasic's graph.Iterator and Gonum's graph.Graph
type CGraph struct {
	// The order of the graph
	order int

	// Labels maps from node IDs to the label the node was constructed with
	Labels map[int64]string

	// Ids maps labels back to node IDs
	Ids map[string]int64

	// Keys are all the node IDs, sorted
	Keys []int64

	// Edges is an adjacency matrix: Edges[x][y] means there is a directed edge between Labels[x] and Labels[y]
	Edges map[int64]map[int64]bool
}

// NewDigraph returns a graph built from labelled adjacency lists. Node ids are dense in [0, order)
// and assigned in lexicographic label order so that results are deterministic.
func NewDigraph(adjacency map[string][]string) CGraph {
	labelSet := map[string]bool{}
	for from, tos := range adjacency {
		labelSet[from] = true
		for _, to := range tos {
			labelSet[to] = true
		}
	}

	sorted := make([]string, 0, len(labelSet))
	for l := range labelSet {
		sorted = append(sorted, l)
	}
	sort.Strings(sorted)

	n := len(sorted)
	labels := make(map[int64]string, n)
	ids := make(map[string]int64, n)
	keys := make([]int64, n)
	for i, l := range sorted {
		labels[int64(i)] = l
		ids[l] = int64(i)
		keys[i] = int64(i)
	}

	edges := make(map[int64]map[int64]bool, n)
	for _, k := range keys {
		edges[k] = map[int64]bool{}
	}
	for from, tos := range adjacency {
		for _, to := range tos {
			edges[ids[from]][ids[to]] = true
		}
	}

	return CGraph{
		order:  n,
		Labels: labels,
		Ids:    ids,
		Edges:  edges,
		Keys:   keys,
	}
}

// Subgraph returns a new graph that is the original graph with only the nodes in include. Only the edges that have
// both the origin and destination nodes in the include nodes are kept in the resulting graph.
// The subgraph's order, Labels and Ids are the same as in the original, meaning that node indices stay consistent
// across subgraphs.
func Subgraph(original CGraph, include []int64) CGraph {
	included := make(map[int64]bool, len(include))
	edges := make(map[int64]map[int64]bool, len(include))
	keys := make([]int64, len(include))

	for j, i := range include {
		keys[j] = i
		included[i] = true
	}

	for _, i := range include {
		edges[i] = map[int64]bool{}
		for e := range original.Edges[i] {
			if included[e] {
				edges[i][e] = true
			}
		}
	}

	return CGraph{
		order:  original.Order(),
		Labels: original.Labels,
		Ids:    original.Ids,
		Edges:  edges,
		Keys:   keys,
	}
}

// Order implements the order of the graph.Iterator interface for the CGraph
func (c CGraph) Order() int {
	return c.order
}

// Visit implements the graph.Iterator interface for the CGraph
func (c CGraph) Visit(v int, do func(w int, c int64) (skip bool)) (aborted bool) {
	if _, ok := c.Labels[int64(v)]; !ok {
		return false
	}
	for w := range c.Edges[int64(v)] {
		if do(int(w), 1) {
			return true
		}
	}
	return false
}

// *************** Graph interface implementation **********************

// Node implements the Graph interface
func (c CGraph) Node(v int) graph.Node {
	return CNode{id: int64(v), label: c.Labels[int64(v)]}
}

// Nodes returns the set of nodes in the graph
func (c CGraph) Nodes() graph.Nodes {
	nodes := make(map[int64]CNode, len(c.Labels))
	keys := make([]int64, 0, len(c.Labels))
	for k, l := range c.Labels {
		nodes[k] = CNode{id: k, label: l}
		keys = append(keys, k)
	}
	return &NodeSet{
		nodes: nodes,
		ids:   keys,
		cur:   0,
	}
}

// From returns the set of nodes reachable from the id
func (c CGraph) From(id int64) graph.Nodes {
	nodes := map[int64]CNode{}
	var keys []int64
	for out := range c.Edges[id] {
		nodes[out] = CNode{id: out, label: c.Labels[out]}
		keys = append(keys, out)
	}
	return &NodeSet{
		nodes: nodes,
		ids:   keys,
		cur:   0,
	}
}

// HasEdgeBetween returns a boolean indicating whether an edge exists between the two node identifiers
func (c CGraph) HasEdgeBetween(xid, yid int64) bool {
	xe := c.Edges[xid]
	ye := c.Edges[yid]
	return xe[yid] || ye[xid]
}

// Edge returns the edge between the two identifiers (nil if none exists)
func (c CGraph) Edge(uid, vid int64) graph.Edge {
	ue := c.Edges[uid]
	if ue != nil && ue[vid] {
		return CEdge{
			from: CNode{id: uid, label: c.Labels[uid]},
			to:   CNode{id: vid, label: c.Labels[vid]},
		}
	}
	return nil
}

// *************** Nodes implementation **********************

// CNode is a labelled node that implements the graph.Node interface
type CNode struct {
	id    int64
	label string
}

// ID returns the id of the node
func (n CNode) ID() int64 {
	return n.id
}

func (n CNode) String() string {
	return n.label
}

// NodeSet implements the graph.Nodes interface, an iterator over a set of nodes
type NodeSet struct {
	// nodes is the set of nodes in the iterator
	nodes map[int64]CNode

	// ids is the set of node ids in the iterator
	// invariant: len(ids) = len(nodes)
	ids []int64

	// cur is the current index of the iterator. The current node is nodes[ids[cur]]
	// invariant: 0 <= cur < len(nodes)
	cur int
}

// Next moves the current node to the next, and returns true if such a node exists. Otherwise, returns false
// and the current node has not changed.
func (ns *NodeSet) Next() bool {
	if ns.cur < len(ns.ids)-1 {
		ns.cur++
		return true
	}
	return false
}

// Len returns the length of the node set
func (ns *NodeSet) Len() int {
	return len(ns.ids)
}

// Reset resets the id of the current node in the set
func (ns *NodeSet) Reset() {
	ns.cur = 0
}

// Node return the current node in the set
func (ns *NodeSet) Node() graph.Node {
	return ns.nodes[ns.ids[ns.cur]]
}

// *************** Edge implementation **********************

// CEdge implements the graph.Edge interface
type CEdge struct {
	from CNode
	to   CNode
}

// From returns the origin of the edge
func (e CEdge) From() graph.Node {
	return e.from
}

// To returns the destination of the edge
func (e CEdge) To() graph.Node {
	return e.to
}

// ReversedEdge returns a new value representing the reversed edge
func (e CEdge) ReversedEdge() graph.Edge {
	return CEdge{from: e.to, to: e.from}
}
