/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package scheduling checks finished schedules against the rules every
// scheduler variant must honour.
package scheduling

import (
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/adaptive_scheduler/internal/interval"
	"github.com/friendsincode/adaptive_scheduler/internal/kernel"
	"github.com/friendsincode/adaptive_scheduler/internal/reservation"
	"github.com/friendsincode/adaptive_scheduler/internal/telemetry"
)

// RuleType names the rule a violation broke.
type RuleType string

const (
	RuleTypeOverlap           RuleType = "overlap"
	RuleTypeWindow            RuleType = "window"
	RuleTypeGlobalWindow      RuleType = "global_window"
	RuleTypeCompound          RuleType = "compound"
	RuleTypeObligationOverlap RuleType = "obligation_overlap"
	RuleTypeUncommitted       RuleType = "uncommitted"
	RuleTypeUnscheduled       RuleType = "unscheduled"
)

// Severity grades a violation.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// tolerance absorbs float drift in solver-derived start times.
const tolerance = 1e-6

// Violation is a single finding.
type Violation struct {
	RuleType    RuleType `yaml:"rule_type" json:"rule_type"`
	Severity    Severity `yaml:"severity" json:"severity"`
	Message     string   `yaml:"message" json:"message"`
	Resource    string   `yaml:"resource,omitempty" json:"resource,omitempty"`
	Start       float64  `yaml:"start,omitempty" json:"start,omitempty"`
	End         float64  `yaml:"end,omitempty" json:"end,omitempty"`
	AffectedIDs []int    `yaml:"affected_ids,omitempty" json:"affected_ids,omitempty"`
}

// Report is the outcome of a validation pass.
type Report struct {
	Valid     bool        `yaml:"valid" json:"valid"`
	Errors    []Violation `yaml:"errors" json:"errors"`
	Warnings  []Violation `yaml:"warnings" json:"warnings"`
	Info      []Violation `yaml:"info" json:"info"`
	CheckedAt time.Time   `yaml:"checked_at" json:"checked_at"`
}

func (r *Report) add(v Violation) {
	switch v.Severity {
	case SeverityError:
		r.Errors = append(r.Errors, v)
		r.Valid = false
	case SeverityWarning:
		r.Warnings = append(r.Warnings, v)
	default:
		r.Info = append(r.Info, v)
	}
}

// Validator validates schedules against rules.
type Validator struct {
	logger zerolog.Logger
}

// NewValidator creates a new schedule validator.
func NewValidator(logger zerolog.Logger) *Validator {
	return &Validator{
		logger: logger.With().Str("component", "schedule_validator").Logger(),
	}
}

// Validate checks result against the input it was produced from.
func (v *Validator) Validate(in kernel.Input, result *kernel.Result) *Report {
	report := &Report{
		Valid:     true,
		Errors:    []Violation{},
		Warnings:  []Violation{},
		Info:      []Violation{},
		CheckedAt: time.Now(),
	}

	for _, violation := range v.checkOverlaps(result.Schedule) {
		report.add(violation)
	}
	for _, violation := range v.checkWindows(in, result.Schedule) {
		report.add(violation)
	}
	for _, violation := range v.checkCompounds(in.Compounds) {
		report.add(violation)
	}
	for _, violation := range v.checkObligations(result) {
		report.add(violation)
	}

	if n := len(result.Uncommitted); n > 0 {
		report.add(Violation{
			RuleType:    RuleTypeUncommitted,
			Severity:    SeverityWarning,
			Message:     fmt.Sprintf("%d reservation(s) were placed and then released to keep compound groups whole", n),
			AffectedIDs: ids(result.Uncommitted),
		})
	}
	if n := len(result.Unscheduled); n > 0 {
		report.add(Violation{
			RuleType:    RuleTypeUnscheduled,
			Severity:    SeverityInfo,
			Message:     fmt.Sprintf("%d reservation(s) could not be placed", n),
			AffectedIDs: ids(result.Unscheduled),
		})
	}

	for _, violation := range report.Errors {
		telemetry.ScheduleViolationsTotal.WithLabelValues(string(violation.RuleType)).Inc()
	}
	if !report.Valid {
		v.logger.Error().
			Str("run_id", result.RunID).
			Int("errors", len(report.Errors)).
			Msg("schedule failed validation")
	}
	return report
}

// checkOverlaps reports committed reservations sharing time on a resource.
func (v *Validator) checkOverlaps(schedule kernel.Schedule) []Violation {
	var violations []Violation
	for _, c := range schedule.Conflicts() {
		overlapStart := c.B.ScheduledStart
		overlapEnd := minFloat(c.A.ScheduledStart+c.A.ScheduledQuantum, c.B.ScheduledStart+c.B.ScheduledQuantum)
		violations = append(violations, Violation{
			RuleType:    RuleTypeOverlap,
			Severity:    SeverityError,
			Message:     c.Error(),
			Resource:    c.Resource,
			Start:       overlapStart,
			End:         overlapEnd,
			AffectedIDs: []int{c.A.ID, c.B.ID},
		})
	}
	return violations
}

// checkWindows reports placements outside the reservation's own window or
// the network-wide availability.
func (v *Validator) checkWindows(in kernel.Input, schedule kernel.Schedule) []Violation {
	var violations []Violation
	for _, res := range schedule.Resources() {
		for _, r := range schedule[res] {
			start, end := r.ScheduledStart, r.ScheduledStart+r.ScheduledQuantum
			if !covers(r.Windows[res], start, end) {
				violations = append(violations, Violation{
					RuleType:    RuleTypeWindow,
					Severity:    SeverityError,
					Message:     fmt.Sprintf("reservation %d placed on %s at [%g, %g) outside its windows", r.ID, res, start, end),
					Resource:    res,
					Start:       start,
					End:         end,
					AffectedIDs: []int{r.ID},
				})
			}
			if in.GlobalWindows != nil && !covers(in.GlobalWindows[res], start, end) {
				violations = append(violations, Violation{
					RuleType:    RuleTypeGlobalWindow,
					Severity:    SeverityError,
					Message:     fmt.Sprintf("reservation %d placed on %s at [%g, %g) while the resource is unavailable", r.ID, res, start, end),
					Resource:    res,
					Start:       start,
					End:         end,
					AffectedIDs: []int{r.ID},
				})
			}
		}
	}
	return violations
}

// checkCompounds reports partially scheduled and groups and oneof groups
// with more than one member placed.
func (v *Validator) checkCompounds(compounds []*reservation.CompoundReservation) []Violation {
	var violations []Violation
	for _, c := range compounds {
		n := c.ScheduledCount()
		switch {
		case c.Operator == reservation.OperatorAnd && n > 0 && n < len(c.Reservations):
			violations = append(violations, Violation{
				RuleType:    RuleTypeCompound,
				Severity:    SeverityError,
				Message:     fmt.Sprintf("and group has %d of %d members scheduled", n, len(c.Reservations)),
				AffectedIDs: ids(c.Reservations),
			})
		case c.Operator == reservation.OperatorOneOf && n > 1:
			violations = append(violations, Violation{
				RuleType:    RuleTypeCompound,
				Severity:    SeverityError,
				Message:     fmt.Sprintf("oneof group has %d members scheduled", n),
				AffectedIDs: ids(c.Reservations),
			})
		}
	}
	return violations
}

// checkObligations reports obligation time granted on top of committed
// reservations or of another obligation.
func (v *Validator) checkObligations(result *kernel.Result) []Violation {
	if result.Obligations == nil {
		return nil
	}
	busy := result.Schedule.Busy()
	var violations []Violation
	for _, o := range result.Obligations.Obligations {
		resources := make([]string, 0, len(o.Allocated))
		for res := range o.Allocated {
			resources = append(resources, res)
		}
		sort.Strings(resources)

		for _, res := range resources {
			granted := o.Allocated[res]
			if granted.IsEmpty() {
				continue
			}
			if clash := granted.Intersect(busy[res]); clash.TotalTime() > tolerance {
				pairs := clash.Pairs()
				violations = append(violations, Violation{
					RuleType: RuleTypeObligationOverlap,
					Severity: SeverityError,
					Message:  fmt.Sprintf("obligation %q was granted %g time units already in use on %s", o.Name, clash.TotalTime(), res),
					Resource: res,
					Start:    pairs[0][0],
					End:      pairs[len(pairs)-1][1],
				})
			}
			busy[res] = interval.Union(interval.TagBusy, busy[res], granted)
		}
	}
	return violations
}

func covers(windows *interval.Intervals, start, end float64) bool {
	if windows.IsEmpty() {
		return false
	}
	return windows.Covers(start+tolerance, end-tolerance)
}

func ids(rs []*reservation.Reservation) []int {
	out := make([]int, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.ID)
	}
	return out
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
