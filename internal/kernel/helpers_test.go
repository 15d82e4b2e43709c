/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package kernel

import (
	"context"
	"sync"
	"testing"

	"github.com/friendsincode/adaptive_scheduler/internal/ilp"
	"github.com/friendsincode/adaptive_scheduler/internal/interval"
	"github.com/friendsincode/adaptive_scheduler/internal/reservation"
)

func windows(resource string, pairs ...[2]float64) map[string]*interval.Intervals {
	return map[string]*interval.Intervals{resource: interval.FromPairs(interval.TagFree, pairs...)}
}

func res(priority, duration float64, w map[string]*interval.Intervals) *reservation.Reservation {
	return reservation.New(priority, duration, w)
}

func group(t *testing.T, op reservation.Operator, rs ...*reservation.Reservation) *reservation.CompoundReservation {
	t.Helper()
	cr, err := reservation.NewCompound(op, rs...)
	if err != nil {
		t.Fatalf("NewCompound: %v", err)
	}
	return cr
}

func singles(t *testing.T, rs ...*reservation.Reservation) []*reservation.CompoundReservation {
	t.Helper()
	out := make([]*reservation.CompoundReservation, 0, len(rs))
	for _, r := range rs {
		out = append(out, group(t, reservation.OperatorSingle, r))
	}
	return out
}

// assertValidSchedule checks the invariants every variant must honour.
func assertValidSchedule(t *testing.T, result *Result, compounds []*reservation.CompoundReservation) {
	t.Helper()
	if conflicts := result.Schedule.Conflicts(); len(conflicts) > 0 {
		t.Fatalf("double booking: %v", conflicts[0])
	}
	for resource, rs := range result.Schedule {
		for i, r := range rs {
			if !r.Scheduled || r.ScheduledResource != resource {
				t.Fatalf("reservation %d listed under %s but scheduled=%v on %q", r.ID, resource, r.Scheduled, r.ScheduledResource)
			}
			if !r.Windows[resource].Covers(r.ScheduledStart, r.ScheduledStart+r.Duration) {
				t.Fatalf("reservation %d placed at %g outside %v", r.ID, r.ScheduledStart, r.Windows[resource])
			}
			if i > 0 && rs[i-1].ScheduledStart > r.ScheduledStart {
				t.Fatalf("schedule for %s not ordered by start", resource)
			}
		}
	}
	for _, cr := range compounds {
		n := cr.ScheduledCount()
		switch cr.Operator {
		case reservation.OperatorAnd:
			if n != 0 && n != len(cr.Reservations) {
				t.Fatalf("and group partially scheduled: %d of %d", n, len(cr.Reservations))
			}
		case reservation.OperatorOneOf:
			if n > 1 {
				t.Fatalf("oneof group has %d members scheduled", n)
			}
		}
	}
}

type recordingObserver struct {
	mu       sync.Mutex
	starts   []RunInfo
	ends     []RunSummary
	feedback []Feedback
}

func (o *recordingObserver) OnStart(info RunInfo) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.starts = append(o.starts, info)
}

func (o *recordingObserver) OnEnd(summary RunSummary) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ends = append(o.ends, summary)
}

func (o *recordingObserver) OnFeedback(fb Feedback) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.feedback = append(o.feedback, fb)
}

// flakySolver reports itself unavailable a fixed number of times before
// delegating to the built-in solver.
type flakySolver struct {
	failures int
	calls    int
}

func (f *flakySolver) Solve(ctx context.Context, m *ilp.Model, opts ilp.Options) (*ilp.Solution, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, ilp.ErrSolverUnavailable
	}
	return ilp.NewBranchAndBound().Solve(ctx, m, opts)
}
