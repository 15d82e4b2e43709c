/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package request

import (
	"github.com/friendsincode/adaptive_scheduler/internal/kernel"
	"github.com/friendsincode/adaptive_scheduler/internal/reservation"
	"github.com/friendsincode/adaptive_scheduler/internal/scheduling"
)

// Placement is a committed reservation.
type Placement struct {
	ID          int     `yaml:"id" json:"id"`
	Name        string  `yaml:"name,omitempty" json:"name,omitempty"`
	Resource    string  `yaml:"resource" json:"resource"`
	Start       float64 `yaml:"start" json:"start"`
	End         float64 `yaml:"end" json:"end"`
	Priority    float64 `yaml:"priority" json:"priority"`
	ScheduledBy string  `yaml:"scheduled_by" json:"scheduled_by"`
}

// Ref names a reservation that was not placed.
type Ref struct {
	ID   int    `yaml:"id" json:"id"`
	Name string `yaml:"name,omitempty" json:"name,omitempty"`
}

// ObligationOutcome reports what an obligation received.
type ObligationOutcome struct {
	Name      string  `yaml:"name" json:"name"`
	TotalTime float64 `yaml:"total_time" json:"total_time"`
	Allocated float64 `yaml:"allocated" json:"allocated"`
	Satisfied bool    `yaml:"satisfied" json:"satisfied"`
	Windows   Windows `yaml:"windows,omitempty" json:"windows,omitempty"`
}

// Response is the rendered outcome of a run.
type Response struct {
	RunID        string              `yaml:"run_id" json:"run_id"`
	Variant      string              `yaml:"variant" json:"variant"`
	DurationMS   int64               `yaml:"duration_ms" json:"duration_ms"`
	Passes       int                 `yaml:"passes" json:"passes"`
	SolverStatus string              `yaml:"solver_status,omitempty" json:"solver_status,omitempty"`
	ScheduledBy  map[string]int      `yaml:"scheduled_by" json:"scheduled_by"`
	Schedule     []Placement         `yaml:"schedule" json:"schedule"`
	Unscheduled  []Ref               `yaml:"unscheduled" json:"unscheduled"`
	Uncommitted  []Ref               `yaml:"uncommitted,omitempty" json:"uncommitted,omitempty"`
	Obligations  []ObligationOutcome `yaml:"obligations,omitempty" json:"obligations,omitempty"`
	Validation   *scheduling.Report  `yaml:"validation,omitempty" json:"validation,omitempty"`
}

func nameOf(r *reservation.Reservation) string {
	name, _ := r.Payload.(string)
	return name
}

func refs(rs []*reservation.Reservation) []Ref {
	out := make([]Ref, 0, len(rs))
	for _, r := range rs {
		out = append(out, Ref{ID: r.ID, Name: nameOf(r)})
	}
	return out
}

// FromResult renders a kernel result. Placements are ordered by resource
// then start.
func FromResult(result *kernel.Result) *Response {
	resp := &Response{
		RunID:        result.RunID,
		Variant:      result.Variant,
		DurationMS:   result.Duration.Milliseconds(),
		Passes:       result.Stats.Passes,
		SolverStatus: result.Stats.SolverStatus,
		ScheduledBy:  result.Stats.ScheduledBy,
		Schedule:     make([]Placement, 0, result.Schedule.Len()),
		Unscheduled:  refs(result.Unscheduled),
	}
	if len(result.Uncommitted) > 0 {
		resp.Uncommitted = refs(result.Uncommitted)
	}
	for _, resource := range result.Schedule.Resources() {
		for _, r := range result.Schedule[resource] {
			resp.Schedule = append(resp.Schedule, Placement{
				ID:          r.ID,
				Name:        nameOf(r),
				Resource:    resource,
				Start:       r.ScheduledStart,
				End:         r.ScheduledStart + r.Duration,
				Priority:    r.Priority,
				ScheduledBy: r.ScheduledBy,
			})
		}
	}
	if result.Obligations != nil {
		for _, o := range result.Obligations.Obligations {
			outcome := ObligationOutcome{
				Name:      o.Name,
				TotalTime: o.TotalTime,
				Allocated: o.AllocatedTime(),
				Satisfied: o.Satisfied(),
				Windows:   make(Windows, len(o.Allocated)),
			}
			for res, iv := range o.Allocated {
				if pairs := iv.Pairs(); len(pairs) > 0 {
					outcome.Windows[res] = pairs
				}
			}
			resp.Obligations = append(resp.Obligations, outcome)
		}
	}
	return resp
}
