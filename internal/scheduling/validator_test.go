/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scheduling

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/friendsincode/adaptive_scheduler/internal/contract"
	"github.com/friendsincode/adaptive_scheduler/internal/interval"
	"github.com/friendsincode/adaptive_scheduler/internal/kernel"
	"github.com/friendsincode/adaptive_scheduler/internal/reservation"
)

func window(res string, pairs ...[2]float64) map[string]*interval.Intervals {
	return map[string]*interval.Intervals{res: interval.FromPairs(interval.TagFree, pairs...)}
}

func reserve(id int, windows map[string]*interval.Intervals) *reservation.Reservation {
	r := reservation.New(1, 10, windows)
	r.ID = id
	return r
}

func countRule(violations []Violation, rule RuleType) int {
	n := 0
	for _, v := range violations {
		if v.RuleType == rule {
			n++
		}
	}
	return n
}

func TestValidateAcceptsKernelSchedule(t *testing.T) {
	a := reservation.New(1, 10, window("foo", [2]float64{0, 30}))
	b := reservation.New(2, 10, window("foo", [2]float64{0, 30}))
	c := reservation.New(3, 10, window("bar", [2]float64{0, 30}))
	and, err := reservation.NewCompound(reservation.OperatorAnd, a, b)
	if err != nil {
		t.Fatalf("NewCompound: %v", err)
	}
	single, err := reservation.NewCompound(reservation.OperatorSingle, c)
	if err != nil {
		t.Fatalf("NewCompound: %v", err)
	}
	in := kernel.Input{
		Compounds:     []*reservation.CompoundReservation{and, single},
		GlobalWindows: window("foo", [2]float64{0, 25}),
	}

	s, err := kernel.New(in, kernel.VariantHungarian, zerolog.Nop())
	if err != nil {
		t.Fatalf("kernel.New: %v", err)
	}
	result, err := s.ScheduleAll(context.Background(), 0)
	if err != nil {
		t.Fatalf("ScheduleAll: %v", err)
	}

	report := NewValidator(zerolog.Nop()).Validate(in, result)
	if !report.Valid {
		t.Fatalf("kernel schedule reported invalid: %+v", report.Errors)
	}
	if result.Stats.Unscheduled > 0 && countRule(report.Info, RuleTypeUnscheduled) != 1 {
		t.Fatalf("unscheduled reservations not reported: %+v", report.Info)
	}
}

func TestValidateFindsViolations(t *testing.T) {
	a := reserve(1, window("foo", [2]float64{0, 20}))
	b := reserve(2, window("foo", [2]float64{0, 10}))
	c := reserve(3, window("foo", [2]float64{0, 40}))
	a.Schedule(0, 10, "foo", "test")
	b.Schedule(5, 10, "foo", "test")

	and := &reservation.CompoundReservation{Operator: reservation.OperatorAnd, Reservations: []*reservation.Reservation{a, c}}
	single := &reservation.CompoundReservation{Operator: reservation.OperatorSingle, Reservations: []*reservation.Reservation{b}}

	sponsor := contract.NewObligation("sponsor", 1, 10, 5, window("foo", [2]float64{0, 40}))
	sponsor.Allocated["foo"] = interval.FromPairs(interval.TagBusy, [2]float64{10, 20})

	in := kernel.Input{
		Compounds:     []*reservation.CompoundReservation{and, single},
		GlobalWindows: window("bar", [2]float64{0, 100}),
	}
	result := &kernel.Result{
		RunID:       "broken",
		Schedule:    kernel.Schedule{"foo": {a, b}},
		Unscheduled: []*reservation.Reservation{c},
		Uncommitted: []*reservation.Reservation{c},
		Obligations: &contract.Result{Obligations: []*contract.Obligation{sponsor}},
	}

	report := NewValidator(zerolog.Nop()).Validate(in, result)
	if report.Valid {
		t.Fatal("expected the schedule to be invalid")
	}

	tests := []struct {
		rule RuleType
		want int
	}{
		{RuleTypeOverlap, 1},
		{RuleTypeWindow, 1},
		{RuleTypeGlobalWindow, 2},
		{RuleTypeCompound, 1},
		{RuleTypeObligationOverlap, 1},
	}
	for _, tt := range tests {
		if got := countRule(report.Errors, tt.rule); got != tt.want {
			t.Errorf("%s: got %d violations, want %d", tt.rule, got, tt.want)
		}
	}
	if countRule(report.Warnings, RuleTypeUncommitted) != 1 {
		t.Errorf("uncommitted warning missing: %+v", report.Warnings)
	}

	overlap := report.Errors[0]
	if overlap.RuleType != RuleTypeOverlap || overlap.Start != 5 || overlap.End != 10 {
		t.Errorf("unexpected overlap %+v", overlap)
	}
}

func TestValidateOneOfWithTwoMembers(t *testing.T) {
	a := reserve(1, window("foo", [2]float64{0, 10}))
	b := reserve(2, window("bar", [2]float64{0, 10}))
	a.Schedule(0, 10, "foo", "test")
	b.Schedule(0, 10, "bar", "test")
	oneof := &reservation.CompoundReservation{Operator: reservation.OperatorOneOf, Reservations: []*reservation.Reservation{a, b}}

	report := NewValidator(zerolog.Nop()).Validate(
		kernel.Input{Compounds: []*reservation.CompoundReservation{oneof}},
		&kernel.Result{Schedule: kernel.Schedule{"foo": {a}, "bar": {b}}},
	)
	if report.Valid || countRule(report.Errors, RuleTypeCompound) != 1 {
		t.Fatalf("expected one compound violation, got %+v", report.Errors)
	}
}
