/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package kernel

import (
	"github.com/friendsincode/adaptive_scheduler/internal/interval"
	"github.com/friendsincode/adaptive_scheduler/internal/reservation"
)

// ScheduledByUncontended tags reservations placed by ScheduleUncontended.
const ScheduledByUncontended = "uncontended scheduler"

// ScheduleUncontended commits every reservation that still has room for its
// duration once all other unscheduled reservations' windows and the busy
// time are removed from its own windows. Reservations are visited per
// resource in ID order; each commitment is added to busy before the next
// reservation is considered. It returns the reservations it committed.
func ScheduleUncontended(set *reservation.Set, busy map[string]*interval.Intervals) []*reservation.Reservation {
	var committed []*reservation.Reservation
	for _, res := range set.Resources() {
		for _, r := range set.All() {
			if r.Scheduled || set.SiblingScheduled(r.ID) {
				continue
			}
			w, ok := r.Windows[res]
			if !ok {
				continue
			}

			free := w.Subtract(busy[res])
			for _, other := range set.All() {
				if other.ID == r.ID || other.Scheduled {
					continue
				}
				if ow, ok := other.Windows[res]; ok {
					free = free.Subtract(ow)
				}
				if free.IsEmpty() {
					break
				}
			}

			start, ok := free.FindIntervalOfLength(r.Duration)
			if !ok {
				continue
			}
			r.Schedule(start, r.Duration, res, ScheduledByUncontended)
			busy[res] = interval.Union(interval.TagBusy, busy[res], r.CommittedInterval())
			committed = append(committed, r)
		}
	}
	return committed
}
