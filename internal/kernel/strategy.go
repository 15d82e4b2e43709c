/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package kernel

import (
	"sort"

	"github.com/friendsincode/adaptive_scheduler/internal/interval"
	"github.com/friendsincode/adaptive_scheduler/internal/matching"
	"github.com/friendsincode/adaptive_scheduler/internal/quantum"
	"github.com/friendsincode/adaptive_scheduler/internal/reservation"
)

// Pass is the input to one contended matching pass. Reservations are views of
// the candidates whose Windows already exclude busy time; IDs match the run's
// reservation set.
type Pass struct {
	Order        int
	Reservations []*reservation.Reservation
	// Quanta is the matching granularity per resource.
	Quanta map[string]float64
	// OneOf lists candidate IDs sharing a oneof group. Empty when oneof is
	// resolved after matching.
	OneOf [][]int
}

// Assignment is a proposed placement returned by a strategy.
type Assignment struct {
	ReservationID int
	Resource      string
	Start         float64
}

// MatchingStrategy resolves contention among the candidates of a pass.
type MatchingStrategy interface {
	Name() string
	Allocate(p *Pass) []Assignment
}

// BuildConstraintGraph lists, per candidate, the quantum-aligned starts on
// every resource at which the whole duration fits inside a free window.
func BuildConstraintGraph(p *Pass) map[int][]quantum.Key {
	graph := make(map[int][]quantum.Key, len(p.Reservations))
	for _, r := range p.Reservations {
		keys := []quantum.Key{}
		for _, res := range r.Resources() {
			q := p.Quanta[res]
			if q <= 0 {
				continue
			}
			w := r.Windows[res]
			for _, k := range quantum.QuantizeWindows(r, q, res) {
				if w.Covers(k.Start, k.Start+r.Duration) {
					keys = append(keys, k)
				}
			}
		}
		graph[r.ID] = keys
	}
	return graph
}

func newPass(order int, candidates []*reservation.Reservation, busy map[string]*interval.Intervals) *Pass {
	p := &Pass{Order: order, Quanta: make(map[string]float64)}
	byResource := make(map[string][]*reservation.Reservation)
	for _, r := range candidates {
		view := *r
		view.Windows = make(map[string]*interval.Intervals, len(r.Windows))
		for res, w := range r.Windows {
			free := w.Subtract(busy[res])
			if free.IsEmpty() {
				continue
			}
			view.Windows[res] = free
			byResource[res] = append(byResource[res], r)
		}
		p.Reservations = append(p.Reservations, &view)
	}
	for res, rs := range byResource {
		p.Quanta[res] = quantum.MaxDuration(rs)
	}
	return p
}

func (p *Pass) priorities() map[int]*reservation.Reservation {
	out := make(map[int]*reservation.Reservation, len(p.Reservations))
	for _, r := range p.Reservations {
		out[r.ID] = r
	}
	return out
}

// Unweighted maximizes the number of matched candidates with the
// augmenting-path matcher.
type Unweighted struct{}

func (Unweighted) Name() string { return "unweighted matching" }

func (Unweighted) Allocate(p *Pass) []Assignment {
	graph := BuildConstraintGraph(p)
	byID := p.priorities()

	// A merged oneof group becomes one vertex keyed by its smallest ID; each
	// slot goes to the best member able to use it.
	owner := make(map[int]map[quantum.Key]int)
	for _, group := range p.OneOf {
		ids := append([]int(nil), group...)
		sort.Ints(ids)
		rep := ids[0]
		owner[rep] = make(map[quantum.Key]int)
		var keys []quantum.Key
		for _, id := range ids {
			for _, k := range graph[id] {
				cur, seen := owner[rep][k]
				if !seen {
					keys = append(keys, k)
					owner[rep][k] = id
					continue
				}
				if byID[id].Priority > byID[cur].Priority {
					owner[rep][k] = id
				}
			}
			if id != rep {
				delete(graph, id)
			}
		}
		graph[rep] = keys
	}

	matches := matching.Bipartite(graph)
	out := make([]Assignment, 0, len(matches))
	for k, id := range matches {
		if o, ok := owner[id]; ok {
			id = o[k]
		}
		res, start, _ := quantum.Unhash(k)
		out = append(out, Assignment{ReservationID: id, Resource: res, Start: start})
	}
	sortAssignments(out)
	return out
}

// Weighted maximizes total matched priority with the Hungarian solver.
type Weighted struct{}

func (Weighted) Name() string { return "weighted matching" }

func (Weighted) Allocate(p *Pass) []Assignment {
	graph := BuildConstraintGraph(p)
	g := matching.NewWeightedGraph[quantum.Key]()
	for _, r := range p.Reservations {
		g.AddVertex(r.ID)
		for _, k := range graph[r.ID] {
			g.AddEdge(r.ID, k, r.Priority)
		}
	}
	for _, group := range p.OneOf {
		for _, id := range group[1:] {
			g.MergeConstraints(group[0], id)
		}
	}

	matches := g.Solve()
	out := make([]Assignment, 0, len(matches))
	for k, id := range matches {
		res, start, _ := quantum.Unhash(k)
		out = append(out, Assignment{ReservationID: id, Resource: res, Start: start})
	}
	sortAssignments(out)
	return out
}

// Sequential runs the weighted interval DP resource by resource. Each free
// window a candidate has becomes one job; a reservation placed on an
// earlier resource is not offered again.
type Sequential struct{}

func (Sequential) Name() string { return "sequential dp" }

func (Sequential) Allocate(p *Pass) []Assignment {
	groupOf := make(map[int]int)
	for gi, group := range p.OneOf {
		for _, id := range group {
			groupOf[id] = gi
		}
	}
	taken := make(map[int]bool)
	groupTaken := make(map[int]bool)
	blocked := func(id int) bool {
		if taken[id] {
			return true
		}
		gi, ok := groupOf[id]
		return ok && groupTaken[gi]
	}

	resources := make([]string, 0, len(p.Quanta))
	for res := range p.Quanta {
		resources = append(resources, res)
	}
	sort.Strings(resources)

	var out []Assignment
	for _, res := range resources {
		var jobs []matching.Job
		owner := make(map[int]int)
		for _, r := range p.Reservations {
			if blocked(r.ID) {
				continue
			}
			for _, w := range r.Windows[res].Pairs() {
				if w[1]-w[0] < r.Duration {
					continue
				}
				owner[len(jobs)] = r.ID
				jobs = append(jobs, matching.Job{
					ID:            len(jobs),
					Priority:      r.Priority,
					EarliestStart: w[0],
					LatestStart:   w[1] - r.Duration,
					Duration:      r.Duration,
				})
			}
		}
		for _, placed := range matching.ScheduleIntervals(jobs) {
			id := owner[placed.Job.ID]
			if blocked(id) {
				continue
			}
			taken[id] = true
			if gi, ok := groupOf[id]; ok {
				groupTaken[gi] = true
			}
			out = append(out, Assignment{ReservationID: id, Resource: res, Start: placed.Start})
		}
	}
	return out
}

func sortAssignments(as []Assignment) {
	sort.Slice(as, func(i, j int) bool {
		if as[i].Resource != as[j].Resource {
			return as[i].Resource < as[j].Resource
		}
		if as[i].Start != as[j].Start {
			return as[i].Start < as[j].Start
		}
		return as[i].ReservationID < as[j].ReservationID
	})
}
