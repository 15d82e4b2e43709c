/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package ilp

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/friendsincode/adaptive_scheduler/internal/interval"
	"github.com/friendsincode/adaptive_scheduler/internal/reservation"
)

func compound(t *testing.T, op reservation.Operator, rs ...*reservation.Reservation) *reservation.CompoundReservation {
	t.Helper()
	cr, err := reservation.NewCompound(op, rs...)
	if err != nil {
		t.Fatalf("NewCompound: %v", err)
	}
	return cr
}

func single(t *testing.T, priority, duration float64, resource string, pairs ...[2]float64) *reservation.CompoundReservation {
	t.Helper()
	r := reservation.New(priority, duration, map[string]*interval.Intervals{
		resource: interval.FromPairs(interval.TagFree, pairs...),
	})
	return compound(t, reservation.OperatorSingle, r)
}

func mustSet(t *testing.T, compounds ...*reservation.CompoundReservation) *reservation.Set {
	t.Helper()
	set, err := reservation.NewSet(compounds)
	if err != nil {
		t.Fatalf("NewSet: %v", err)
	}
	return set
}

func solve(t *testing.T, m *Model, opts Options) *Solution {
	t.Helper()
	sol, err := NewBranchAndBound().Solve(context.Background(), m, opts)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	return sol
}

func selectedReservations(m *Model, sol *Solution) map[int]Var {
	out := make(map[int]Var)
	for _, i := range sol.Selected() {
		v := m.Vars[i]
		if v.ReservationID >= 0 {
			out[v.ReservationID] = v
		}
	}
	return out
}

func TestBuildCreatesVariablePerWindowStart(t *testing.T) {
	set := mustSet(t, single(t, 1, 10, "foo", [2]float64{0, 30}))
	m := Build(set, nil)

	if len(m.Vars) != 3 {
		t.Fatalf("expected 3 start variables, got %d", len(m.Vars))
	}
	for i, want := range []float64{0, 10, 20} {
		if m.Vars[i].Start != want {
			t.Fatalf("var %d starts at %g, want %g", i, m.Vars[i].Start, want)
		}
	}
	if m.Vars[0].Objective <= m.Vars[2].Objective {
		t.Fatal("earlier windows should carry a larger tie-break bonus")
	}
}

func TestBuildSkipsStartsThatOverrunWindow(t *testing.T) {
	set := mustSet(t,
		single(t, 1, 5, "foo", [2]float64{0, 20}),
		single(t, 1, 10, "foo", [2]float64{0, 12}),
	)
	m := Build(set, nil)

	for _, v := range m.Vars {
		if v.ReservationID == 1 && v.Start != 0 {
			t.Fatalf("reservation 1 offered start %g that cannot fit", v.Start)
		}
	}
}

func TestSolveSimpleContentionPicksHigherPriority(t *testing.T) {
	set := mustSet(t,
		single(t, 1, 10, "foo", [2]float64{0, 10}),
		single(t, 2, 10, "foo", [2]float64{0, 10}),
	)
	m := Build(set, nil)
	sol := solve(t, m, DefaultOptions())

	chosen := selectedReservations(m, sol)
	if len(chosen) != 1 {
		t.Fatalf("expected one reservation, got %v", chosen)
	}
	if _, ok := chosen[1]; !ok {
		t.Fatalf("expected priority 2 reservation, got %v", chosen)
	}
}

func TestSolveAndGroupAllOrNothing(t *testing.T) {
	a := reservation.New(5, 10, map[string]*interval.Intervals{"foo": interval.FromPairs(interval.TagFree, [2]float64{0, 10})})
	b := reservation.New(5, 10, map[string]*interval.Intervals{"bar": interval.Empty(interval.TagFree)})
	set := mustSet(t, compound(t, reservation.OperatorAnd, a, b))

	m := Build(set, nil)
	sol := solve(t, m, DefaultOptions())
	if chosen := selectedReservations(m, sol); len(chosen) != 0 {
		t.Fatalf("and-group with an infeasible child must be empty, got %v", chosen)
	}
}

func TestSolveOneOfSelectsAtMostOne(t *testing.T) {
	a := reservation.New(3, 10, map[string]*interval.Intervals{"foo": interval.FromPairs(interval.TagFree, [2]float64{0, 10})})
	b := reservation.New(3, 10, map[string]*interval.Intervals{"bar": interval.FromPairs(interval.TagFree, [2]float64{0, 10})})
	set := mustSet(t, compound(t, reservation.OperatorOneOf, a, b))

	m := Build(set, nil)
	sol := solve(t, m, DefaultOptions())
	if chosen := selectedReservations(m, sol); len(chosen) != 1 {
		t.Fatalf("expected exactly one of the group, got %v", chosen)
	}
}

func TestSolveNoDoubleBooking(t *testing.T) {
	set := mustSet(t,
		single(t, 1, 10, "foo", [2]float64{0, 40}),
		single(t, 2, 20, "foo", [2]float64{0, 40}),
		single(t, 3, 10, "foo", [2]float64{10, 30}),
	)
	m := Build(set, nil)

	for _, alg := range []Algorithm{AlgorithmDefault, AlgorithmAlt1, AlgorithmAlt2} {
		t.Run(string(alg), func(t *testing.T) {
			opts := DefaultOptions()
			opts.Algorithm = alg
			opts.MIPGap = 0
			sol := solve(t, m, opts)

			chosen := selectedReservations(m, sol)
			if len(chosen) != 3 {
				t.Fatalf("all three fit on [0,40), got %v", chosen)
			}
			durations := map[int]float64{0: 10, 1: 20, 2: 10}
			for i, a := range chosen {
				for j, b := range chosen {
					if i >= j {
						continue
					}
					if a.Start < b.Start+durations[j] && b.Start < a.Start+durations[i] {
						t.Fatalf("reservations %d and %d overlap: %v %v", i, j, a, b)
					}
				}
			}
		})
	}
}

func TestSolveUnknownAlgorithm(t *testing.T) {
	set := mustSet(t, single(t, 1, 10, "foo", [2]float64{0, 10}))
	_, err := NewBranchAndBound().Solve(context.Background(), Build(set, nil), Options{Algorithm: "simplex"})
	if !errors.Is(err, ErrUnknownAlgorithm) {
		t.Fatalf("expected ErrUnknownAlgorithm, got %v", err)
	}
}

func TestSolveRespectsCancelledContext(t *testing.T) {
	var compounds []*reservation.CompoundReservation
	for i := 0; i < 14; i++ {
		compounds = append(compounds, single(t, float64(1+i%3), 10, "foo", [2]float64{0, 100}))
	}
	set := mustSet(t, compounds...)
	m := Build(set, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	opts := DefaultOptions()
	opts.MIPGap = 0
	opts.TimeLimit = time.Millisecond

	sol, err := NewBranchAndBound().Solve(ctx, m, opts)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if len(sol.Values) != len(m.Vars) {
		t.Fatalf("incumbent has %d values, want %d", len(sol.Values), len(m.Vars))
	}
}

// bestByEnumeration tries every choice of at most one variable per
// reservation. It only handles models without and-groups.
func bestByEnumeration(m *Model) float64 {
	groups := map[int][]int{}
	var ids []int
	for i, v := range m.Vars {
		if _, ok := groups[v.ReservationID]; !ok {
			ids = append(ids, v.ReservationID)
		}
		groups[v.ReservationID] = append(groups[v.ReservationID], i)
	}
	values := make([]bool, len(m.Vars))
	best := 0.0
	var walk func(k int)
	walk = func(k int) {
		if k == len(ids) {
			if m.Feasible(values) {
				best = math.Max(best, m.Objective(values))
			}
			return
		}
		walk(k + 1)
		for _, v := range groups[ids[k]] {
			values[v] = true
			walk(k + 1)
			values[v] = false
		}
	}
	walk(0)
	return best
}

func randomSet(t *testing.T, rng *rand.Rand, n int, horizon float64) *reservation.Set {
	t.Helper()
	resources := []string{"foo", "bar"}
	var compounds []*reservation.CompoundReservation
	for i := 0; i < n; i++ {
		duration := float64(5 + 5*rng.Intn(3))
		start := float64(5 * rng.Intn(int(horizon/5)))
		end := math.Min(start+duration+float64(5*rng.Intn(4)), horizon)
		if end-start < duration {
			start = end - duration
		}
		compounds = append(compounds, single(t, float64(1+rng.Intn(5)), duration,
			resources[rng.Intn(len(resources))], [2]float64{start, end}))
	}
	return mustSet(t, compounds...)
}

func TestSolveMatchesEnumeration(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for seed := 0; seed < 10; seed++ {
		m := Build(randomSet(t, rng, 6, 40), map[string]float64{"foo": 5, "bar": 5})
		want := bestByEnumeration(m)
		for _, alg := range []Algorithm{AlgorithmDefault, AlgorithmAlt1, AlgorithmAlt2} {
			opts := DefaultOptions()
			opts.Algorithm = alg
			opts.MIPGap = 0
			sol := solve(t, m, opts)
			if sol.Status != StatusOptimal {
				t.Fatalf("seed %d %s: status %s", seed, alg, sol.Status)
			}
			if math.Abs(sol.Objective-want) > 1e-6 {
				t.Fatalf("seed %d %s: objective %g, enumeration found %g", seed, alg, sol.Objective, want)
			}
			if !m.Feasible(sol.Values) {
				t.Fatalf("seed %d %s: infeasible solution", seed, alg)
			}
		}
	}
}

func TestSolveCompletesContendedInstances(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	for seed := 0; seed < 5; seed++ {
		m := Build(randomSet(t, rng, 30, 60), nil)
		opts := DefaultOptions()
		opts.MIPGap = 0
		opts.TimeLimit = 20 * time.Second
		sol := solve(t, m, opts)
		if sol.Status != StatusOptimal {
			t.Fatalf("seed %d: %d vars, status %s after %d nodes", seed, len(m.Vars), sol.Status, sol.Nodes)
		}
		if !m.Feasible(sol.Values) {
			t.Fatalf("seed %d: infeasible solution", seed)
		}
	}
}

func TestSolveAndGroupTakesBothWhenTheyFit(t *testing.T) {
	a := reservation.New(5, 10, map[string]*interval.Intervals{"foo": interval.FromPairs(interval.TagFree, [2]float64{0, 20})})
	b := reservation.New(5, 10, map[string]*interval.Intervals{"bar": interval.FromPairs(interval.TagFree, [2]float64{0, 20})})
	other := reservation.New(6, 10, map[string]*interval.Intervals{"foo": interval.FromPairs(interval.TagFree, [2]float64{0, 10})})
	set := mustSet(t,
		compound(t, reservation.OperatorAnd, a, b),
		compound(t, reservation.OperatorSingle, other),
	)

	m := Build(set, nil)
	opts := DefaultOptions()
	opts.MIPGap = 0
	sol := solve(t, m, opts)
	chosen := selectedReservations(m, sol)
	if len(chosen) != 3 {
		t.Fatalf("expected the and-group plus the single, got %v", chosen)
	}
	if chosen[0].Start != 10 || chosen[2].Start != 0 {
		t.Fatalf("and member should yield [0,10) on foo: %v", chosen)
	}
}

func TestParseAlgorithm(t *testing.T) {
	tests := []struct {
		in   string
		want Algorithm
		err  bool
	}{
		{"", AlgorithmDefault, false},
		{"default", AlgorithmDefault, false},
		{"alt1", AlgorithmAlt1, false},
		{"alt2", AlgorithmAlt2, false},
		{"gurobi", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAlgorithm(tt.in)
			if (err != nil) != tt.err {
				t.Fatalf("err = %v, want error %v", err, tt.err)
			}
			if got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}
