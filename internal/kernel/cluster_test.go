/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package kernel

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/friendsincode/adaptive_scheduler/internal/interval"
	"github.com/friendsincode/adaptive_scheduler/internal/reservation"
)

func TestClusterAndOrder(t *testing.T) {
	tests := []struct {
		name       string
		priorities []float64
		n          int
		want       []int
	}{
		{"three bands", []float64{1, 5, 10, 7, 3}, 3, []int{3, 2, 1, 2, 3}},
		{"single band", []float64{4, 9, 2}, 1, []int{1, 1, 1}},
		{"equal priorities", []float64{2, 2, 2}, 3, []int{1, 1, 1}},
		{"lowest priority clamps to last band", []float64{0, 10}, 2, []int{2, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rs := make([]*reservation.Reservation, len(tt.priorities))
			for i, p := range tt.priorities {
				rs[i] = reservation.New(p, 1, nil)
				rs[i].Order = 99
			}
			n, err := ClusterAndOrder(rs, tt.n)
			if err != nil {
				t.Fatalf("ClusterAndOrder: %v", err)
			}
			if n != tt.n {
				t.Fatalf("returned %d classes, want %d", n, tt.n)
			}
			for i, r := range rs {
				if r.Order != tt.want[i] {
					t.Fatalf("priority %g got order %d, want %d", r.Priority, r.Order, tt.want[i])
				}
			}
		})
	}
}

func TestClusterAndOrderRejectsBadCount(t *testing.T) {
	rs := []*reservation.Reservation{reservation.New(1, 1, nil), reservation.New(2, 1, nil)}
	for _, n := range []int{0, -1, 3} {
		rs[0].Order, rs[1].Order = 5, 5
		got, err := ClusterAndOrder(rs, n)
		if !errors.Is(err, ErrTooManyClusters) {
			t.Fatalf("n=%d: expected ErrTooManyClusters, got %v", n, err)
		}
		if got != 1 || rs[0].Order != 1 || rs[1].Order != 1 {
			t.Fatalf("n=%d: expected a single class fallback", n)
		}
	}
}

func TestScheduleUncontendedCommitsInIDOrder(t *testing.T) {
	// a and b both fit once c is out of the way; c overlaps both.
	a := res(1, 5, windows("foo", [2]float64{0, 10}))
	b := res(1, 5, windows("foo", [2]float64{20, 30}))
	c := res(1, 5, windows("foo", [2]float64{5, 25}))
	set, err := reservation.NewSet(singles(t, a, b, c))
	if err != nil {
		t.Fatalf("NewSet: %v", err)
	}

	busy := make(map[string]*interval.Intervals)
	placed := ScheduleUncontended(set, busy)

	if len(placed) != 3 {
		t.Fatalf("expected all three placed, got %d", len(placed))
	}
	if a.ScheduledStart != 0 || b.ScheduledStart != 25 || c.ScheduledStart != 5 {
		t.Fatalf("unexpected starts a=%g b=%g c=%g", a.ScheduledStart, b.ScheduledStart, c.ScheduledStart)
	}
	if got := busy["foo"].TotalTime(); got != 15 {
		t.Fatalf("busy time %g, want 15", got)
	}
}

func TestScheduleUncontendedRespectsBusy(t *testing.T) {
	a := res(1, 5, windows("foo", [2]float64{0, 10}))
	set, err := reservation.NewSet(singles(t, a))
	if err != nil {
		t.Fatalf("NewSet: %v", err)
	}
	busy := windows("foo", [2]float64{3, 8})
	if placed := ScheduleUncontended(set, busy); len(placed) != 0 {
		t.Fatalf("nothing fits around busy time, got %v", placed)
	}
}

func TestScheduleUncontendedSkipsScheduledSibling(t *testing.T) {
	a := res(1, 5, windows("foo", [2]float64{0, 10}))
	b := res(1, 5, windows("bar", [2]float64{0, 10}))
	set, err := reservation.NewSet([]*reservation.CompoundReservation{group(t, reservation.OperatorOneOf, a, b)})
	if err != nil {
		t.Fatalf("NewSet: %v", err)
	}
	ScheduleUncontended(set, make(map[string]*interval.Intervals))
	if a.Scheduled == b.Scheduled {
		t.Fatalf("exactly one oneof member should be placed: a=%v b=%v", a.Scheduled, b.Scheduled)
	}
}

func TestVariantByName(t *testing.T) {
	for name := range Variants() {
		if _, err := VariantByName(name); err != nil {
			t.Fatalf("VariantByName(%q): %v", name, err)
		}
	}
	if _, err := VariantByName("simulated-annealing"); err == nil {
		t.Fatal("expected unknown variant error")
	}
	if _, err := New(Input{}, Variant{Name: "broken"}, zerolog.Nop()); err == nil {
		t.Fatal("expected error for a variant without a strategy")
	}
}
