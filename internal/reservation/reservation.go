/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package reservation models schedulable observation opportunities and the
// compound groupings that tie them into user requests.
package reservation

import (
	"errors"
	"fmt"
	"sort"

	"github.com/friendsincode/adaptive_scheduler/internal/interval"
)

var (
	// ErrUnknownOperator indicates a compound reservation with an unrecognized operator.
	ErrUnknownOperator = errors.New("unknown compound operator")

	// ErrEmptyCompound indicates a compound reservation without children.
	ErrEmptyCompound = errors.New("compound reservation has no reservations")
)

// Operator enumerates compound reservation groupings.
type Operator string

const (
	OperatorSingle Operator = "single"
	OperatorAnd    Operator = "and"
	OperatorOneOf  Operator = "oneof"
)

// Valid reports whether the operator is recognized.
func (o Operator) Valid() bool {
	switch o {
	case OperatorSingle, OperatorAnd, OperatorOneOf:
		return true
	}
	return false
}

// Reservation is one atomic observation opportunity.
//
// Order is a transient annotation set by priority clustering for the
// duration of a single scheduling run.
type Reservation struct {
	ID       int
	Priority float64
	Duration float64
	Windows  map[string]*interval.Intervals
	Order    int

	Scheduled           bool
	ScheduledStart      float64
	ScheduledResource   string
	ScheduledQuantum    float64
	ScheduledTimepoints *interval.Intervals
	ScheduledBy         string

	// Payload carries collaborator data through the kernel untouched.
	Payload any
}

// New constructs an unscheduled reservation.
func New(priority, duration float64, windows map[string]*interval.Intervals) *Reservation {
	if windows == nil {
		windows = make(map[string]*interval.Intervals)
	}
	return &Reservation{
		ID:       -1,
		Priority: priority,
		Duration: duration,
		Windows:  windows,
	}
}

// Resources returns the resources this reservation has windows on, sorted.
func (r *Reservation) Resources() []string {
	out := make([]string, 0, len(r.Windows))
	for res, w := range r.Windows {
		if w.IsEmpty() {
			continue
		}
		out = append(out, res)
	}
	sort.Strings(out)
	return out
}

// Schedule commits the reservation to resource at start for quantum units.
func (r *Reservation) Schedule(start, quantum float64, resource, by string) {
	r.Scheduled = true
	r.ScheduledStart = start
	r.ScheduledQuantum = quantum
	r.ScheduledResource = resource
	r.ScheduledBy = by
	r.ScheduledTimepoints = interval.FromPairs(interval.TagBusy, [2]float64{start, start + quantum})
}

// Unschedule reverts a commitment.
func (r *Reservation) Unschedule() {
	r.Scheduled = false
	r.ScheduledStart = 0
	r.ScheduledQuantum = 0
	r.ScheduledResource = ""
	r.ScheduledBy = ""
	r.ScheduledTimepoints = nil
}

// CommittedInterval returns the busy interval of a scheduled reservation.
func (r *Reservation) CommittedInterval() *interval.Intervals {
	if !r.Scheduled || r.ScheduledTimepoints == nil {
		return interval.Empty(interval.TagBusy)
	}
	return r.ScheduledTimepoints
}

func (r *Reservation) String() string {
	if r.Scheduled {
		return fmt.Sprintf("reservation %d (priority %g, duration %g) on %s at %g", r.ID, r.Priority, r.Duration, r.ScheduledResource, r.ScheduledStart)
	}
	return fmt.Sprintf("reservation %d (priority %g, duration %g) unscheduled", r.ID, r.Priority, r.Duration)
}

// CompoundReservation groups reservations under a logical operator.
type CompoundReservation struct {
	Operator     Operator
	Reservations []*Reservation
}

// NewCompound constructs and validates a compound reservation.
func NewCompound(op Operator, reservations ...*Reservation) (*CompoundReservation, error) {
	cr := &CompoundReservation{Operator: op, Reservations: reservations}
	if err := cr.Validate(); err != nil {
		return nil, err
	}
	return cr, nil
}

// Validate checks the structural invariants of the grouping.
func (c *CompoundReservation) Validate() error {
	if !c.Operator.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownOperator, c.Operator)
	}
	if len(c.Reservations) == 0 {
		return ErrEmptyCompound
	}
	if c.Operator == OperatorSingle && len(c.Reservations) != 1 {
		return fmt.Errorf("single compound must hold exactly one reservation, got %d", len(c.Reservations))
	}
	return nil
}

// IsScheduled derives the scheduled state from the children.
func (c *CompoundReservation) IsScheduled() bool {
	if c.Operator == OperatorAnd {
		for _, r := range c.Reservations {
			if !r.Scheduled {
				return false
			}
		}
		return true
	}
	return c.ScheduledCount() > 0
}

// ScheduledCount returns how many children are scheduled.
func (c *CompoundReservation) ScheduledCount() int {
	n := 0
	for _, r := range c.Reservations {
		if r.Scheduled {
			n++
		}
	}
	return n
}
