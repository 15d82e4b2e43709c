/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package kernel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/adaptive_scheduler/internal/contract"
	"github.com/friendsincode/adaptive_scheduler/internal/ilp"
	"github.com/friendsincode/adaptive_scheduler/internal/telemetry"
)

// ScheduledByILP tags reservations placed from a solver solution.
const ScheduledByILP = "ilp"

// ILPScheduler solves the whole horizon as one 0/1 program.
type ILPScheduler struct {
	*run
	solver ilp.Solver
}

// NewILP prepares an integer-programming run against solver.
func NewILP(in Input, solver ilp.Solver, logger zerolog.Logger, opts ...Option) (*ILPScheduler, error) {
	if solver == nil {
		return nil, errors.New("ilp scheduler needs a solver")
	}
	r, err := newRun(in, VariantILP, logger, opts)
	if err != nil {
		return nil, err
	}
	r.siblings = true
	return &ILPScheduler{run: r, solver: solver}, nil
}

// ScheduleAll builds the model and solves it. A non-zero timeLimit overrides
// the configured solver limit; a negative one removes it. An unavailable
// solver is retried with a fixed backoff and the run fails once the attempts
// are used up.
func (s *ILPScheduler) ScheduleAll(ctx context.Context, timeLimit time.Duration) (*Result, error) {
	ctx, span := s.begin(ctx)
	defer span.End()

	if s.empty() {
		return s.finish(span, nil, nil, ""), nil
	}

	opts := s.opts.ILP
	if timeLimit != 0 {
		opts.TimeLimit = timeLimit
	}

	var (
		solution *ilp.Solution
		solveErr error
		model    *ilp.Model
	)
	s.stage(ctx, StageSolve, func() Feedback {
		model = ilp.Build(s.set, s.input.SliceSizes)
		solution, solveErr = s.solve(ctx, model, opts)
		if solveErr != nil {
			return Feedback{Candidates: s.set.Len(), Message: "solve failed"}
		}
		scheduled := 0
		for _, r := range s.set.All() {
			for _, i := range model.IsScheduledVars(r.ID) {
				if !solution.Values[i] {
					continue
				}
				v := model.Vars[i]
				if s.commit(r, v.Start, v.Resource, ScheduledByILP) {
					scheduled++
				}
				break
			}
		}
		s.logger.Info().
			Int("variables", len(model.Vars)).
			Int("constraints", len(model.Constraints)).
			Int("selected", len(solution.Selected())).
			Str("status", string(solution.Status)).
			Float64("objective", solution.Objective).
			Int("nodes", solution.Nodes).
			Msg("ilp solved")
		return Feedback{Candidates: s.set.Len(), Scheduled: scheduled, Message: "ilp solution committed"}
	})
	if solveErr != nil {
		return nil, s.fail(span, solveErr)
	}
	s.passes = 1

	released := s.enforce(ctx)
	if len(released) > 0 {
		s.logger.Warn().Int("released", len(released)).Msg("solver solution violated group constraints")
	}

	var obligations *contract.Result
	if len(s.input.Obligations) > 0 {
		obligations = s.obligations(ctx)
	}
	return s.finish(span, released, obligations, string(solution.Status)), nil
}

func (s *ILPScheduler) solve(ctx context.Context, model *ilp.Model, opts ilp.Options) (*ilp.Solution, error) {
	var lastErr error
	for attempt := 1; attempt <= s.opts.MaxSolverAttempts; attempt++ {
		solution, err := s.solver.Solve(ctx, model, opts)
		if err == nil {
			return solution, nil
		}
		if !errors.Is(err, ilp.ErrSolverUnavailable) {
			return nil, fmt.Errorf("solve: %w", err)
		}
		lastErr = err
		if attempt == s.opts.MaxSolverAttempts {
			break
		}
		telemetry.SolverRetriesTotal.Inc()
		s.logger.Warn().Err(err).Int("attempt", attempt).Dur("backoff", s.opts.SolverBackoff).Msg("solver unavailable, retrying")

		timer := time.NewTimer(s.opts.SolverBackoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("solve: %w", ctx.Err())
		case <-timer.C:
		}
	}
	return nil, fmt.Errorf("solve after %d attempts: %w", s.opts.MaxSolverAttempts, lastErr)
}
