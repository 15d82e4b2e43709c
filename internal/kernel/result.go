/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package kernel

import (
	"fmt"
	"sort"
	"time"

	"github.com/friendsincode/adaptive_scheduler/internal/contract"
	"github.com/friendsincode/adaptive_scheduler/internal/interval"
	"github.com/friendsincode/adaptive_scheduler/internal/reservation"
)

// Schedule maps a resource to its committed reservations ordered by start.
type Schedule map[string][]*reservation.Reservation

// Conflict is a pair of committed reservations that overlap on a resource.
type Conflict struct {
	Resource string
	A, B     *reservation.Reservation
}

func (c Conflict) Error() string {
	return fmt.Sprintf("reservations %d and %d overlap on %s", c.A.ID, c.B.ID, c.Resource)
}

// Conflicts lists overlapping neighbours. A valid schedule has none.
func (s Schedule) Conflicts() []Conflict {
	var out []Conflict
	for _, res := range s.Resources() {
		rs := s[res]
		for i := 1; i < len(rs); i++ {
			prev, cur := rs[i-1], rs[i]
			if prev.ScheduledStart+prev.ScheduledQuantum > cur.ScheduledStart {
				out = append(out, Conflict{Resource: res, A: prev, B: cur})
			}
		}
	}
	return out
}

// Resources returns the scheduled resources, sorted.
func (s Schedule) Resources() []string {
	out := make([]string, 0, len(s))
	for res := range s {
		out = append(out, res)
	}
	sort.Strings(out)
	return out
}

// Len counts committed reservations.
func (s Schedule) Len() int {
	n := 0
	for _, rs := range s {
		n += len(rs)
	}
	return n
}

// Busy returns the committed time per resource.
func (s Schedule) Busy() map[string]*interval.Intervals {
	out := make(map[string]*interval.Intervals, len(s))
	for res, rs := range s {
		var tps []interval.Timepoint
		for _, r := range rs {
			tps = append(tps, r.CommittedInterval().Timepoints...)
		}
		out[res] = interval.New(tps, interval.TagBusy)
	}
	return out
}

// Stats summarizes a run.
type Stats struct {
	Compounds    int
	Reservations int
	Scheduled    int
	Unscheduled  int
	Uncommitted  int
	Passes       int
	ScheduledBy  map[string]int
	SolverStatus string
}

// Result is the outcome of a run.
type Result struct {
	RunID       string
	Variant     string
	Schedule    Schedule
	Unscheduled []*reservation.Reservation
	// Uncommitted were scheduled by a pass and then released by constraint
	// enforcement.
	Uncommitted []*reservation.Reservation
	Obligations *contract.Result
	Stats       Stats
	Duration    time.Duration
}

func scheduleOf(set *reservation.Set) Schedule {
	out := make(Schedule)
	for _, r := range set.Scheduled() {
		out[r.ScheduledResource] = append(out[r.ScheduledResource], r)
	}
	for _, rs := range out {
		sort.SliceStable(rs, func(i, j int) bool {
			if rs[i].ScheduledStart != rs[j].ScheduledStart {
				return rs[i].ScheduledStart < rs[j].ScheduledStart
			}
			return rs[i].ID < rs[j].ID
		})
	}
	return out
}

func (r *Result) summary() RunSummary {
	return RunSummary{
		RunID:       r.RunID,
		Variant:     r.Variant,
		Scheduled:   r.Stats.Scheduled,
		Unscheduled: r.Stats.Unscheduled,
		Uncommitted: r.Stats.Uncommitted,
		ScheduledBy: r.Stats.ScheduledBy,
		Duration:    r.Duration,
	}
}
