/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package kernel

import (
	"sort"

	"github.com/friendsincode/adaptive_scheduler/internal/reservation"
)

// EnforceOneOf keeps at most one scheduled member per oneof group: the
// highest priority one, lowest ID on ties. It returns the reservations it
// uncommitted.
func EnforceOneOf(set *reservation.Set) []*reservation.Reservation {
	var released []*reservation.Reservation
	for _, cr := range set.Compounds() {
		if cr.Operator != reservation.OperatorOneOf || cr.ScheduledCount() <= 1 {
			continue
		}
		scheduled := make([]*reservation.Reservation, 0, len(cr.Reservations))
		for _, r := range cr.Reservations {
			if r.Scheduled {
				scheduled = append(scheduled, r)
			}
		}
		sort.SliceStable(scheduled, func(i, j int) bool {
			if scheduled[i].Priority != scheduled[j].Priority {
				return scheduled[i].Priority > scheduled[j].Priority
			}
			return scheduled[i].ID < scheduled[j].ID
		})
		for _, r := range scheduled[1:] {
			r.Unschedule()
			released = append(released, r)
		}
	}
	return released
}

// EnforceAnd uncommits every scheduled member of an and group that was only
// partially scheduled. It returns the reservations it uncommitted.
func EnforceAnd(set *reservation.Set) []*reservation.Reservation {
	var released []*reservation.Reservation
	for _, cr := range set.Compounds() {
		if cr.Operator != reservation.OperatorAnd {
			continue
		}
		n := cr.ScheduledCount()
		if n == 0 || n == len(cr.Reservations) {
			continue
		}
		for _, r := range cr.Reservations {
			if r.Scheduled {
				r.Unschedule()
				released = append(released, r)
			}
		}
	}
	return released
}
