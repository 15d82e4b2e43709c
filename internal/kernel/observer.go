/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package kernel

import "time"

// Stage names a step of the scheduling state machine.
type Stage string

const (
	StageUncontended Stage = "uncontended"
	StageContended   Stage = "contended"
	StageEnforcement Stage = "constraint_enforcement"
	StageContractual Stage = "contractual_obligations"
	StageSolve       Stage = "solve"
	StageDone        Stage = "done"
)

// RunInfo describes a run as it starts.
type RunInfo struct {
	RunID        string
	Variant      string
	Compounds    int
	Reservations int
	Obligations  int
	Resources    []string
	StartedAt    time.Time
}

// RunSummary describes a finished run. Err is set when the run aborted.
type RunSummary struct {
	RunID       string
	Variant     string
	Scheduled   int
	Unscheduled int
	Uncommitted int
	ScheduledBy map[string]int
	Duration    time.Duration
	Err         error
}

// Feedback reports progress after a stage or contended pass.
type Feedback struct {
	RunID      string
	Stage      Stage
	Order      int
	Candidates int
	Scheduled  int
	Elapsed    time.Duration
	Message    string
}

// RunObserver receives run lifecycle callbacks. Callbacks run synchronously
// on the scheduling goroutine.
type RunObserver interface {
	OnStart(RunInfo)
	OnEnd(RunSummary)
	OnFeedback(Feedback)
}

// NopObserver ignores every callback.
type NopObserver struct{}

func (NopObserver) OnStart(RunInfo)     {}
func (NopObserver) OnEnd(RunSummary)    {}
func (NopObserver) OnFeedback(Feedback) {}

// MultiObserver fans callbacks out in order.
type MultiObserver []RunObserver

func (m MultiObserver) OnStart(info RunInfo) {
	for _, o := range m {
		o.OnStart(info)
	}
}

func (m MultiObserver) OnEnd(summary RunSummary) {
	for _, o := range m {
		o.OnEnd(summary)
	}
}

func (m MultiObserver) OnFeedback(fb Feedback) {
	for _, o := range m {
		o.OnFeedback(fb)
	}
}
