/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package events

import (
	"github.com/friendsincode/adaptive_scheduler/internal/kernel"
)

// RunObserver turns kernel run callbacks into bus events.
type RunObserver struct {
	pub Publisher
}

// NewRunObserver publishes run lifecycle events to pub.
func NewRunObserver(pub Publisher) *RunObserver {
	return &RunObserver{pub: pub}
}

var _ kernel.RunObserver = (*RunObserver)(nil)

func (o *RunObserver) OnStart(info kernel.RunInfo) {
	o.pub.Publish(EventRunStarted, Payload{
		"run_id":       info.RunID,
		"variant":      info.Variant,
		"compounds":    info.Compounds,
		"reservations": info.Reservations,
		"obligations":  info.Obligations,
		"resources":    info.Resources,
		"started_at":   info.StartedAt,
	})
}

func (o *RunObserver) OnFeedback(fb kernel.Feedback) {
	o.pub.Publish(EventRunFeedback, Payload{
		"run_id":     fb.RunID,
		"stage":      string(fb.Stage),
		"order":      fb.Order,
		"candidates": fb.Candidates,
		"scheduled":  fb.Scheduled,
		"elapsed_ms": fb.Elapsed.Milliseconds(),
		"message":    fb.Message,
	})
}

func (o *RunObserver) OnEnd(summary kernel.RunSummary) {
	payload := Payload{
		"run_id":       summary.RunID,
		"variant":      summary.Variant,
		"scheduled":    summary.Scheduled,
		"unscheduled":  summary.Unscheduled,
		"uncommitted":  summary.Uncommitted,
		"scheduled_by": summary.ScheduledBy,
		"duration_ms":  summary.Duration.Milliseconds(),
	}
	if summary.Err != nil {
		payload["error"] = summary.Err.Error()
		o.pub.Publish(EventRunFailed, payload)
		return
	}
	o.pub.Publish(EventRunCompleted, payload)
}
