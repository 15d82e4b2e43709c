/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package reservation

import (
	"fmt"
	"sort"
)

// Set is the arena of reservations for one scheduling run. Reservations are
// addressed by dense integer IDs assigned in input order.
type Set struct {
	compounds    []*CompoundReservation
	reservations []*Reservation
	groupOf      []int
}

// NewSet validates the compounds and assigns reservation IDs.
func NewSet(compounds []*CompoundReservation) (*Set, error) {
	s := &Set{compounds: compounds}
	for ci, cr := range compounds {
		if cr == nil {
			return nil, fmt.Errorf("compound %d is nil", ci)
		}
		if err := cr.Validate(); err != nil {
			return nil, fmt.Errorf("compound %d: %w", ci, err)
		}
		for _, r := range cr.Reservations {
			r.ID = len(s.reservations)
			s.reservations = append(s.reservations, r)
			s.groupOf = append(s.groupOf, ci)
		}
	}
	return s, nil
}

// Len returns the number of reservations.
func (s *Set) Len() int {
	return len(s.reservations)
}

// Get returns the reservation with the given ID, or nil.
func (s *Set) Get(id int) *Reservation {
	if id < 0 || id >= len(s.reservations) {
		return nil
	}
	return s.reservations[id]
}

// All returns every reservation in ID order.
func (s *Set) All() []*Reservation {
	return s.reservations
}

// Compounds returns the compound reservations in input order.
func (s *Set) Compounds() []*CompoundReservation {
	return s.compounds
}

// GroupOf returns the compound holding the reservation.
func (s *Set) GroupOf(id int) *CompoundReservation {
	if id < 0 || id >= len(s.groupOf) {
		return nil
	}
	return s.compounds[s.groupOf[id]]
}

// Unscheduled returns reservations not yet committed, in ID order.
func (s *Set) Unscheduled() []*Reservation {
	out := make([]*Reservation, 0, len(s.reservations))
	for _, r := range s.reservations {
		if !r.Scheduled {
			out = append(out, r)
		}
	}
	return out
}

// Scheduled returns committed reservations, in ID order.
func (s *Set) Scheduled() []*Reservation {
	out := make([]*Reservation, 0, len(s.reservations))
	for _, r := range s.reservations {
		if r.Scheduled {
			out = append(out, r)
		}
	}
	return out
}

// SiblingScheduled reports whether another member of a oneof group holding
// the reservation is already committed.
func (s *Set) SiblingScheduled(id int) bool {
	cr := s.GroupOf(id)
	if cr == nil || cr.Operator != OperatorOneOf {
		return false
	}
	for _, r := range cr.Reservations {
		if r.ID != id && r.Scheduled {
			return true
		}
	}
	return false
}

// Resources returns every resource referenced by any reservation, sorted.
func (s *Set) Resources() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, r := range s.reservations {
		for _, res := range r.Resources() {
			if _, ok := seen[res]; ok {
				continue
			}
			seen[res] = struct{}{}
			out = append(out, res)
		}
	}
	sort.Strings(out)
	return out
}
