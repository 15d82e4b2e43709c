/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package contract

import (
	"reflect"
	"testing"

	"github.com/rs/zerolog"

	"github.com/friendsincode/adaptive_scheduler/internal/interval"
)

func on(resource string, pairs ...[2]float64) map[string]*interval.Intervals {
	return map[string]*interval.Intervals{resource: interval.FromPairs(interval.TagFree, pairs...)}
}

func TestUncontendedObligationsSatisfied(t *testing.T) {
	a := NewObligation("a", 2, 10, 5, on("foo", [2]float64{0, 50}))
	b := NewObligation("b", 1, 10, 5, on("foo", [2]float64{50, 100}))

	result := New(zerolog.Nop()).Schedule(nil, nil, []*Obligation{a, b})

	if len(result.Unsatisfied) != 0 {
		t.Fatalf("expected all satisfied, got %v", result.Unsatisfied)
	}
	if got := a.Allocated["foo"].Pairs(); !reflect.DeepEqual(got, [][2]float64{{0, 10}}) {
		t.Fatalf("a allocated %v", got)
	}
	if got := b.Allocated["foo"].Pairs(); !reflect.DeepEqual(got, [][2]float64{{50, 60}}) {
		t.Fatalf("b allocated %v", got)
	}
}

func TestExistingBusyTimeIsRespected(t *testing.T) {
	a := NewObligation("a", 1, 10, 5, on("foo", [2]float64{0, 20}))
	busy := on("foo", [2]float64{0, 15})

	result := New(zerolog.Nop()).Schedule(busy, nil, []*Obligation{a})

	if len(result.Unsatisfied) != 1 {
		t.Fatalf("expected obligation to be unsatisfied, got %v", result.Unsatisfied)
	}
	if got := a.AllocatedTime(); got != 5 {
		t.Fatalf("allocated %g, want 5", got)
	}
	if got := busy["foo"].Pairs(); !reflect.DeepEqual(got, [][2]float64{{0, 15}}) {
		t.Fatalf("input busy map mutated: %v", got)
	}
}

func TestGlobalWindowsLimitObligations(t *testing.T) {
	a := NewObligation("a", 1, 10, 5, on("foo", [2]float64{0, 100}))
	global := on("foo", [2]float64{40, 45})

	result := New(zerolog.Nop()).Schedule(nil, global, []*Obligation{a})
	if len(result.Unsatisfied) != 1 {
		t.Fatal("expected shortfall when the resource is mostly unavailable")
	}
	if got := a.Allocated["foo"].Pairs(); !reflect.DeepEqual(got, [][2]float64{{40, 45}}) {
		t.Fatalf("allocated %v", got)
	}
}

func TestSingleRemainingUsesContendedTime(t *testing.T) {
	a := NewObligation("a", 2, 30, 10, on("foo", [2]float64{0, 50}))
	b := NewObligation("b", 1, 10, 10, on("foo", [2]float64{20, 100}))

	result := New(zerolog.Nop()).Schedule(nil, nil, []*Obligation{a, b})

	if len(result.Unsatisfied) != 0 {
		t.Fatalf("expected both satisfied, got %v", result.Unsatisfied)
	}
	if got := a.Allocated["foo"].Pairs(); !reflect.DeepEqual(got, [][2]float64{{0, 30}}) {
		t.Fatalf("a allocated %v", got)
	}
	if got := b.Allocated["foo"].Pairs(); !reflect.DeepEqual(got, [][2]float64{{50, 60}}) {
		t.Fatalf("b allocated %v", got)
	}
}

func TestContendedObligationsShareByMatching(t *testing.T) {
	a := NewObligation("a", 2, 40, 10, on("foo", [2]float64{0, 100}))
	b := NewObligation("b", 1, 40, 10, on("foo", [2]float64{0, 100}))

	result := New(zerolog.Nop()).Schedule(nil, nil, []*Obligation{a, b})

	if len(result.Unsatisfied) != 0 {
		t.Fatalf("expected both satisfied, got %v", result.Unsatisfied)
	}
	if !a.Allocated["foo"].Intersect(b.Allocated["foo"]).IsEmpty() {
		t.Fatalf("allocations overlap: %v and %v", a.Allocated["foo"], b.Allocated["foo"])
	}
}

func TestOverSubscribedObligationsReportShortfall(t *testing.T) {
	a := NewObligation("a", 2, 60, 10, on("foo", [2]float64{0, 100}))
	b := NewObligation("b", 1, 60, 10, on("foo", [2]float64{0, 100}))

	result := New(zerolog.Nop()).Schedule(nil, nil, []*Obligation{a, b})

	if len(result.Unsatisfied) == 0 {
		t.Fatal("expected at least one unsatisfied obligation")
	}
	if total := a.AllocatedTime() + b.AllocatedTime(); total != 100 {
		t.Fatalf("allocated %g in total, want the full 100", total)
	}
	if !a.Allocated["foo"].Intersect(b.Allocated["foo"]).IsEmpty() {
		t.Fatal("allocations overlap")
	}
	if got := result.Busy["foo"].TotalTime(); got != 100 {
		t.Fatalf("busy time %g, want 100", got)
	}
}

func TestHugeObligationsBoundedBySlots(t *testing.T) {
	a := NewObligation("a", 2, 1e12, 1, on("foo", [2]float64{0, 100}))
	b := NewObligation("b", 1, 1e12, 1, on("foo", [2]float64{0, 100}))

	result := New(zerolog.Nop()).Schedule(nil, nil, []*Obligation{a, b})

	if len(result.Unsatisfied) != 2 {
		t.Fatalf("expected both short, got %v", result.Unsatisfied)
	}
	if total := a.AllocatedTime() + b.AllocatedTime(); total != 100 {
		t.Fatalf("allocated %g in total, want the full 100", total)
	}
}
