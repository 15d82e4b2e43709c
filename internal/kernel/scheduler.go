/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package kernel turns compound reservations with per-resource windows into
// a conflict-free schedule.
package kernel

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/friendsincode/adaptive_scheduler/internal/contract"
	"github.com/friendsincode/adaptive_scheduler/internal/interval"
	"github.com/friendsincode/adaptive_scheduler/internal/reservation"
	"github.com/friendsincode/adaptive_scheduler/internal/telemetry"
)

const tracerName = "adaptive_scheduler/kernel"

// ScheduledByAnywhere tags a lone contended candidate placed without matching.
const ScheduledByAnywhere = "schedule anywhere"

// Scheduler runs one scheduling run. A Scheduler is single use and not safe
// for concurrent calls.
type Scheduler interface {
	ScheduleAll(ctx context.Context, timeLimit time.Duration) (*Result, error)
}

// Variant selects how contended passes are resolved.
type Variant struct {
	Name     string
	Strategy MatchingStrategy
	// Cluster enables priority clustering above the threshold.
	Cluster bool
	// MergeOneOf folds oneof groups into the matcher instead of resolving
	// them after the fact.
	MergeOneOf bool
	// Obligations runs the contractual obligation stage.
	Obligations bool
}

var (
	VariantPlain       = Variant{Name: "plain", Strategy: Unweighted{}}
	VariantClustered   = Variant{Name: "clustered", Strategy: Unweighted{}, Cluster: true, MergeOneOf: true}
	VariantHungarian   = Variant{Name: "hungarian", Strategy: Weighted{}, Cluster: true, MergeOneOf: true}
	VariantSequential  = Variant{Name: "sequential", Strategy: Sequential{}, Cluster: true, MergeOneOf: true}
	VariantContractual = Variant{Name: "contractual", Strategy: Weighted{}, Cluster: true, MergeOneOf: true, Obligations: true}
)

// VariantILP names the integer-programming scheduler built with NewILP.
const VariantILP = "ilp"

// Variants lists the matching variants by name.
func Variants() map[string]Variant {
	return map[string]Variant{
		VariantPlain.Name:       VariantPlain,
		VariantClustered.Name:   VariantClustered,
		VariantHungarian.Name:   VariantHungarian,
		VariantSequential.Name:  VariantSequential,
		VariantContractual.Name: VariantContractual,
	}
}

// VariantByName looks up a matching variant.
func VariantByName(name string) (Variant, error) {
	v, ok := Variants()[name]
	if !ok {
		return Variant{}, fmt.Errorf("unknown scheduler variant %q", name)
	}
	return v, nil
}

// run holds the state shared by every variant for one scheduling run.
type run struct {
	id      string
	variant string
	input   Input
	set     *reservation.Set
	opts    Options
	logger  zerolog.Logger
	busy    map[string]*interval.Intervals
	started time.Time
	passes  int
	// siblings makes commit refuse a reservation whose oneof sibling is
	// already scheduled.
	siblings bool
}

func newRun(in Input, variant string, logger zerolog.Logger, opts []Option) (*run, error) {
	set, err := prepare(in)
	if err != nil {
		return nil, fmt.Errorf("prepare %s run: %w", variant, err)
	}
	id := uuid.NewString()
	return &run{
		id:      id,
		variant: variant,
		input:   in,
		set:     set,
		opts:    buildOptions(opts),
		logger:  logger.With().Str("component", "kernel").Str("variant", variant).Str("run_id", id).Logger(),
		busy:    make(map[string]*interval.Intervals),
	}, nil
}

func (r *run) begin(ctx context.Context) (context.Context, trace.Span) {
	r.started = time.Now()
	ctx, span := telemetry.StartSpan(ctx, tracerName, "ScheduleAll")
	telemetry.AddSpanAttributes(span, map[string]any{
		"run.id":           r.id,
		"run.variant":      r.variant,
		"run.reservations": r.set.Len(),
		"run.compounds":    len(r.set.Compounds()),
	})
	r.opts.Observer.OnStart(RunInfo{
		RunID:        r.id,
		Variant:      r.variant,
		Compounds:    len(r.set.Compounds()),
		Reservations: r.set.Len(),
		Obligations:  len(r.input.Obligations),
		Resources:    r.set.Resources(),
		StartedAt:    r.started,
	})
	r.logger.Info().
		Int("reservations", r.set.Len()).
		Int("obligations", len(r.input.Obligations)).
		Msg("scheduling run started")
	return ctx, span
}

func (r *run) empty() bool {
	return r.set.Len() == 0 && len(r.input.Obligations) == 0
}

func (r *run) stage(ctx context.Context, stage Stage, fn func() Feedback) {
	_, span := telemetry.StartSpan(ctx, tracerName, string(stage))
	defer span.End()
	start := time.Now()
	fb := fn()
	fb.RunID = r.id
	fb.Stage = stage
	fb.Elapsed = time.Since(start)
	telemetry.SchedulerPassDuration.WithLabelValues(r.variant, string(stage)).Observe(fb.Elapsed.Seconds())
	telemetry.AddSpanAttributes(span, map[string]any{
		"stage.order":      fb.Order,
		"stage.candidates": fb.Candidates,
		"stage.scheduled":  fb.Scheduled,
	})
	r.opts.Observer.OnFeedback(fb)
	r.logger.Debug().
		Str("stage", string(stage)).
		Int("order", fb.Order).
		Int("candidates", fb.Candidates).
		Int("scheduled", fb.Scheduled).
		Dur("elapsed", fb.Elapsed).
		Msg(fb.Message)
}

func (r *run) commit(res *reservation.Reservation, start float64, resource, by string) bool {
	if res.Scheduled || (r.siblings && r.set.SiblingScheduled(res.ID)) {
		return false
	}
	w, ok := res.Windows[resource]
	if !ok || !w.Covers(start, start+res.Duration) {
		r.logger.Warn().Int("reservation", res.ID).Str("resource", resource).Float64("start", start).Msg("rejected placement outside windows")
		return false
	}
	slot := interval.FromPairs(interval.TagBusy, [2]float64{start, start + res.Duration})
	if !slot.Intersect(r.busy[resource]).IsEmpty() {
		r.logger.Warn().Int("reservation", res.ID).Str("resource", resource).Float64("start", start).Msg("rejected placement over busy time")
		return false
	}
	res.Schedule(start, res.Duration, resource, by)
	r.busy[resource] = interval.Union(interval.TagBusy, r.busy[resource], slot)
	return true
}

// enforce applies the oneof and and rules and returns what was released.
func (r *run) enforce(ctx context.Context) []*reservation.Reservation {
	var released []*reservation.Reservation
	r.stage(ctx, StageEnforcement, func() Feedback {
		before := len(r.set.Scheduled())
		oneOf := EnforceOneOf(r.set)
		and := EnforceAnd(r.set)
		telemetry.ConstraintUncommitsTotal.WithLabelValues(string(reservation.OperatorOneOf)).Add(float64(len(oneOf)))
		telemetry.ConstraintUncommitsTotal.WithLabelValues(string(reservation.OperatorAnd)).Add(float64(len(and)))
		released = append(oneOf, and...)
		return Feedback{Candidates: before, Scheduled: len(r.set.Scheduled()), Message: "constraints enforced"}
	})
	if len(released) > 0 {
		r.rebuildBusy()
	}
	return released
}

func (r *run) rebuildBusy() {
	r.busy = scheduleOf(r.set).Busy()
}

func (r *run) obligations(ctx context.Context) *contract.Result {
	var out *contract.Result
	r.stage(ctx, StageContractual, func() Feedback {
		out = contract.New(r.logger).Schedule(r.busy, r.input.GlobalWindows, r.input.Obligations)
		shortfall := 0.0
		for _, o := range out.Unsatisfied {
			shortfall += o.TimeToSchedule
		}
		telemetry.ObligationShortfallSeconds.Add(shortfall)
		return Feedback{
			Candidates: len(r.input.Obligations),
			Scheduled:  len(r.input.Obligations) - len(out.Unsatisfied),
			Message:    "contractual obligations allocated",
		}
	})
	return out
}

func (r *run) finish(span trace.Span, released []*reservation.Reservation, obligations *contract.Result, solverStatus string) *Result {
	schedule := scheduleOf(r.set)
	result := &Result{
		RunID:       r.id,
		Variant:     r.variant,
		Schedule:    schedule,
		Unscheduled: r.set.Unscheduled(),
		Uncommitted: released,
		Obligations: obligations,
		Duration:    time.Since(r.started),
		Stats: Stats{
			Compounds:    len(r.set.Compounds()),
			Reservations: r.set.Len(),
			Scheduled:    schedule.Len(),
			Unscheduled:  len(r.set.Unscheduled()),
			Uncommitted:  len(released),
			Passes:       r.passes,
			ScheduledBy:  make(map[string]int),
			SolverStatus: solverStatus,
		},
	}
	for _, res := range r.set.Scheduled() {
		result.Stats.ScheduledBy[res.ScheduledBy]++
	}
	for by, n := range result.Stats.ScheduledBy {
		telemetry.ReservationsScheduledTotal.WithLabelValues(r.variant, by).Add(float64(n))
	}
	telemetry.ReservationsUnscheduledTotal.WithLabelValues(r.variant).Add(float64(result.Stats.Unscheduled))
	telemetry.SchedulerRunsTotal.WithLabelValues(r.variant, "ok").Inc()
	telemetry.SchedulerRunDuration.WithLabelValues(r.variant).Observe(result.Duration.Seconds())
	telemetry.AddSpanAttributes(span, map[string]any{
		"run.scheduled":   result.Stats.Scheduled,
		"run.unscheduled": result.Stats.Unscheduled,
	})

	if conflicts := schedule.Conflicts(); len(conflicts) > 0 {
		for _, c := range conflicts {
			r.logger.Error().Err(c).Msg("schedule contains overlapping reservations")
		}
	}

	r.opts.Observer.OnEnd(result.summary())
	r.logger.Info().
		Int("scheduled", result.Stats.Scheduled).
		Int("unscheduled", result.Stats.Unscheduled).
		Int("uncommitted", result.Stats.Uncommitted).
		Dur("duration", result.Duration).
		Msg("scheduling run complete")
	return result
}

func (r *run) fail(span trace.Span, err error) error {
	telemetry.RecordError(span, err)
	telemetry.SchedulerRunsTotal.WithLabelValues(r.variant, "error").Inc()
	r.opts.Observer.OnEnd(RunSummary{
		RunID:    r.id,
		Variant:  r.variant,
		Duration: time.Since(r.started),
		Err:      err,
	})
	r.logger.Error().Err(err).Msg("scheduling run failed")
	return err
}

// MatchingScheduler is the matching-based orchestrator.
type MatchingScheduler struct {
	*run
	v Variant
}

// New prepares a matching-based run. The compounds are validated and their
// reservations get dense IDs; candidate windows are clipped to the global
// windows.
func New(in Input, v Variant, logger zerolog.Logger, opts ...Option) (*MatchingScheduler, error) {
	if v.Strategy == nil {
		return nil, fmt.Errorf("variant %q has no matching strategy", v.Name)
	}
	r, err := newRun(in, v.Name, logger, opts)
	if err != nil {
		return nil, err
	}
	r.siblings = v.MergeOneOf
	return &MatchingScheduler{run: r, v: v}, nil
}

// ScheduleAll runs uncontended placement, the contended passes in ascending
// order, constraint enforcement and, for the contractual variant, the
// obligation stage. Matching passes always run to completion, so timeLimit
// is not consulted.
func (s *MatchingScheduler) ScheduleAll(ctx context.Context, timeLimit time.Duration) (*Result, error) {
	ctx, span := s.begin(ctx)
	defer span.End()

	if s.empty() {
		return s.finish(span, nil, nil, ""), nil
	}
	if timeLimit > 0 {
		s.logger.Debug().Dur("time_limit", timeLimit).Msg("time limit ignored by matching variants")
	}

	s.stage(ctx, StageUncontended, func() Feedback {
		placed := ScheduleUncontended(s.set, s.busy)
		return Feedback{Candidates: s.set.Len(), Scheduled: len(placed), Message: "uncontended pass complete"}
	})

	remaining := s.contenders()
	maxOrder := 1
	if s.v.Cluster && len(remaining) > s.opts.ClusterThreshold {
		n, err := ClusterAndOrder(remaining, min(s.opts.ClusterCount, len(remaining)))
		if err != nil {
			s.logger.Error().Err(err).Msg("priority clustering failed, using a single class")
		}
		maxOrder = n
	} else {
		for _, r := range remaining {
			r.Order = 1
		}
	}

	for order := 1; order <= maxOrder; order++ {
		var candidates []*reservation.Reservation
		for _, r := range s.contenders() {
			if r.Order == order {
				candidates = append(candidates, r)
			}
		}
		if len(candidates) == 0 {
			continue
		}
		s.passes++
		s.stage(ctx, StageContended, func() Feedback {
			n := s.contendedPass(order, candidates)
			return Feedback{Order: order, Candidates: len(candidates), Scheduled: n, Message: "contended pass complete"}
		})
	}

	released := s.enforce(ctx)

	var obligations *contract.Result
	if s.v.Obligations && len(s.input.Obligations) > 0 {
		obligations = s.obligations(ctx)
	}
	return s.finish(span, released, obligations, ""), nil
}

// contenders are the unscheduled reservations that can still be placed.
func (s *MatchingScheduler) contenders() []*reservation.Reservation {
	var out []*reservation.Reservation
	for _, r := range s.set.Unscheduled() {
		if len(r.Windows) == 0 {
			continue
		}
		if s.v.MergeOneOf && s.set.SiblingScheduled(r.ID) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func (s *MatchingScheduler) contendedPass(order int, candidates []*reservation.Reservation) int {
	if len(candidates) == 1 {
		if s.scheduleAnywhere(candidates[0]) {
			return 1
		}
		return 0
	}

	pass := newPass(order, candidates, s.busy)
	if s.v.MergeOneOf {
		pass.OneOf = oneOfGroups(s.set, candidates)
	}

	scheduled := 0
	for _, a := range s.v.Strategy.Allocate(pass) {
		res := s.set.Get(a.ReservationID)
		if res == nil {
			continue
		}
		if s.commit(res, a.Start, a.Resource, s.v.Strategy.Name()) {
			scheduled++
		}
	}
	return scheduled
}

func (s *MatchingScheduler) scheduleAnywhere(res *reservation.Reservation) bool {
	for _, resource := range res.Resources() {
		free := res.Windows[resource].Subtract(s.busy[resource])
		start, ok := free.FindIntervalOfLength(res.Duration)
		if !ok {
			continue
		}
		if s.commit(res, start, resource, ScheduledByAnywhere) {
			return true
		}
	}
	return false
}

// oneOfGroups returns, per oneof compound, the candidate IDs that belong to
// it when at least two are present.
func oneOfGroups(set *reservation.Set, candidates []*reservation.Reservation) [][]int {
	inPass := make(map[int]bool, len(candidates))
	for _, r := range candidates {
		inPass[r.ID] = true
	}
	var groups [][]int
	for _, cr := range set.Compounds() {
		if cr.Operator != reservation.OperatorOneOf {
			continue
		}
		var ids []int
		for _, r := range cr.Reservations {
			if inPass[r.ID] {
				ids = append(ids, r.ID)
			}
		}
		if len(ids) > 1 {
			sort.Ints(ids)
			groups = append(groups, ids)
		}
	}
	return groups
}
