/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package matching

import "sort"

// forbiddenCost fills cells with no edge. Real edges cost -priority, so
// within a row a real edge is always preferred; assignments that land on a
// forbidden cell are dropped after solving.
const forbiddenCost = 0.0

type cell struct {
	member   int
	priority float64
}

// WeightedGraph is a reservation/slot incidence solved with the Hungarian
// algorithm to maximize total matched priority.
type WeightedGraph[V comparable] struct {
	rep      map[int]int
	members  map[int][]int
	edges    map[int]map[V]float64
	cols     []V
	colIndex map[V]int
}

// NewWeightedGraph returns an empty graph.
func NewWeightedGraph[V comparable]() *WeightedGraph[V] {
	return &WeightedGraph[V]{
		rep:      make(map[int]int),
		members:  make(map[int][]int),
		edges:    make(map[int]map[V]float64),
		colIndex: make(map[V]int),
	}
}

// AddEdge connects reservation id to slot v with the reservation's priority.
func (g *WeightedGraph[V]) AddEdge(id int, v V, priority float64) {
	g.ensure(id)
	if _, ok := g.colIndex[v]; !ok {
		g.colIndex[v] = len(g.cols)
		g.cols = append(g.cols, v)
	}
	g.edges[id][v] = priority
}

// AddVertex registers a reservation without edges.
func (g *WeightedGraph[V]) AddVertex(id int) {
	g.ensure(id)
}

// MergeConstraints folds id2's row into id1's row so at most one of them can
// be selected.
func (g *WeightedGraph[V]) MergeConstraints(id1, id2 int) {
	g.ensure(id1)
	g.ensure(id2)
	r1, r2 := g.rep[id1], g.rep[id2]
	if r1 == r2 {
		return
	}
	for _, m := range g.members[r2] {
		g.rep[m] = r1
	}
	g.members[r1] = append(g.members[r1], g.members[r2]...)
	delete(g.members, r2)
}

// Solve returns the priority-maximizing assignment as slot → reservation id.
func (g *WeightedGraph[V]) Solve() map[V]int {
	out := make(map[V]int)
	if len(g.cols) == 0 {
		return out
	}

	reps := make([]int, 0, len(g.members))
	for r := range g.members {
		reps = append(reps, r)
	}
	sort.Ints(reps)

	best := make([][]cell, len(reps))
	costs := make([][]float64, len(reps))
	for i, r := range reps {
		best[i] = make([]cell, len(g.cols))
		costs[i] = make([]float64, len(g.cols))
		for j := range costs[i] {
			costs[i][j] = forbiddenCost
			best[i][j] = cell{member: -1}
		}
		members := append([]int(nil), g.members[r]...)
		sort.Ints(members)
		for _, m := range members {
			for v, p := range g.edges[m] {
				j := g.colIndex[v]
				if best[i][j].member == -1 || p > best[i][j].priority {
					best[i][j] = cell{member: m, priority: p}
					costs[i][j] = -p
				}
			}
		}
	}

	for i, j := range Hungarian(costs) {
		if j < 0 || best[i][j].member == -1 {
			continue
		}
		out[g.cols[j]] = best[i][j].member
	}
	return out
}

func (g *WeightedGraph[V]) ensure(id int) {
	if _, ok := g.rep[id]; ok {
		return
	}
	g.rep[id] = id
	g.members[id] = []int{id}
	g.edges[id] = make(map[V]float64)
}
