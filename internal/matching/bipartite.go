/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package matching holds the combinatorial solvers behind contention
// resolution: maximum-cardinality bipartite matching, the Hungarian
// assignment, and weighted interval scheduling.
package matching

import (
	"cmp"
	"slices"
)

const deadVertex = -2

// Bipartite returns a maximum-cardinality matching of graph, whose keys form
// the U side and whose adjacency values form the V side. The result maps each
// matched V vertex to its U vertex.
//
// A greedy pass seeds the matching, then BFS layering from the free U
// vertices and DFS augmentation repeat until no augmenting path remains.
// U vertices and their adjacency are visited in ascending U order, so the
// result is deterministic for a given graph; only its cardinality is
// guaranteed to be maximal.
func Bipartite[U cmp.Ordered, V comparable](graph map[U][]V) map[V]U {
	us := make([]U, 0, len(graph))
	for u := range graph {
		us = append(us, u)
	}
	slices.Sort(us)

	matchU := make(map[U]V, len(us))
	matchV := make(map[V]U, len(us))

	for _, u := range us {
		for _, v := range graph[u] {
			if _, taken := matchV[v]; !taken {
				matchV[v] = u
				matchU[u] = v
				break
			}
		}
	}

	for {
		dist := make(map[U]int, len(us))
		queue := make([]U, 0, len(us))
		for _, u := range us {
			if _, matched := matchU[u]; !matched {
				dist[u] = 0
				queue = append(queue, u)
			}
		}

		found := false
		for len(queue) > 0 {
			u := queue[0]
			queue = queue[1:]
			for _, v := range graph[u] {
				w, matched := matchV[v]
				if !matched {
					found = true
					continue
				}
				if _, seen := dist[w]; !seen {
					dist[w] = dist[u] + 1
					queue = append(queue, w)
				}
			}
		}
		if !found {
			break
		}

		var augment func(u U) bool
		augment = func(u U) bool {
			for _, v := range graph[u] {
				w, matched := matchV[v]
				if !matched || (dist[w] == dist[u]+1 && augment(w)) {
					matchV[v] = u
					matchU[u] = v
					return true
				}
			}
			dist[u] = deadVertex
			return false
		}

		augmented := false
		for _, u := range us {
			if _, matched := matchU[u]; matched {
				continue
			}
			if d, ok := dist[u]; !ok || d != 0 {
				continue
			}
			if augment(u) {
				augmented = true
			}
		}
		if !augmented {
			break
		}
	}

	return matchV
}
