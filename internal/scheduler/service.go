/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package scheduler runs scheduling requests end to end: run locking,
// kernel selection, persistence and event publication.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/friendsincode/adaptive_scheduler/internal/config"
	"github.com/friendsincode/adaptive_scheduler/internal/events"
	"github.com/friendsincode/adaptive_scheduler/internal/ilp"
	"github.com/friendsincode/adaptive_scheduler/internal/kernel"
	"github.com/friendsincode/adaptive_scheduler/internal/request"
	"github.com/friendsincode/adaptive_scheduler/internal/runlock"
	"github.com/friendsincode/adaptive_scheduler/internal/scheduling"
	"github.com/friendsincode/adaptive_scheduler/internal/store"
)

// DefaultLockKey serializes every run against the same telescope network.
const DefaultLockKey = "network"

// Settings are the kernel defaults applied to every request.
type Settings struct {
	DefaultVariant   string
	TimeLimit        time.Duration
	ClusterThreshold int
	ClusterCount     int
	SolverAttempts   int
	SolverBackoff    time.Duration
	ILP              ilp.Options
	LockKey          string
}

// DefaultSettings mirrors the kernel defaults.
func DefaultSettings() Settings {
	k := kernel.DefaultOptions()
	return Settings{
		DefaultVariant:   kernel.VariantHungarian.Name,
		ClusterThreshold: k.ClusterThreshold,
		ClusterCount:     k.ClusterCount,
		SolverAttempts:   k.MaxSolverAttempts,
		SolverBackoff:    k.SolverBackoff,
		ILP:              k.ILP,
		LockKey:          DefaultLockKey,
	}
}

// SettingsFromConfig maps process configuration onto Settings.
func SettingsFromConfig(cfg *config.Config) (Settings, error) {
	algo, err := ilp.ParseAlgorithm(cfg.SolverAlgorithm)
	if err != nil {
		return Settings{}, err
	}
	s := DefaultSettings()
	s.DefaultVariant = cfg.DefaultVariant
	s.TimeLimit = cfg.TimeLimit
	s.ClusterThreshold = cfg.ClusterThreshold
	s.ClusterCount = cfg.ClusterCount
	s.SolverAttempts = cfg.SolverAttempts
	s.SolverBackoff = cfg.SolverBackoff
	s.ILP.Algorithm = algo
	s.ILP.MIPGap = cfg.MIPGap
	return s, nil
}

// Outcome is a finished run together with its validation report.
type Outcome struct {
	*kernel.Result
	Report *scheduling.Report
}

// Service executes scheduling requests.
type Service struct {
	settings  Settings
	runs      *store.Runs
	pub       events.Publisher
	locker    runlock.Locker
	solver    ilp.Solver
	validator *scheduling.Validator
	logger    zerolog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithStore persists every run.
func WithStore(runs *store.Runs) Option {
	return func(s *Service) { s.runs = runs }
}

// WithPublisher publishes run lifecycle events.
func WithPublisher(pub events.Publisher) Option {
	return func(s *Service) { s.pub = pub }
}

// WithLocker replaces the in-process run lock.
func WithLocker(l runlock.Locker) Option {
	return func(s *Service) {
		if l != nil {
			s.locker = l
		}
	}
}

// WithSolver replaces the built-in branch and bound solver.
func WithSolver(solver ilp.Solver) Option {
	return func(s *Service) {
		if solver != nil {
			s.solver = solver
		}
	}
}

// New constructs the scheduler service.
func New(settings Settings, logger zerolog.Logger, opts ...Option) *Service {
	if settings.LockKey == "" {
		settings.LockKey = DefaultLockKey
	}
	s := &Service{
		settings:  settings,
		locker:    runlock.NewLocal(),
		solver:    ilp.NewBranchAndBound(),
		validator: scheduling.NewValidator(logger),
		logger:    logger.With().Str("component", "scheduler").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Settings returns the defaults in effect.
func (s *Service) Settings() Settings {
	return s.settings
}

// Schedule runs and validates one request. Runs sharing the lock key are
// serialized; a concurrent request fails with runlock.ErrLockHeld. When the
// run succeeds but cannot be persisted, the outcome is returned with the
// error.
func (s *Service) Schedule(ctx context.Context, doc *request.Document) (*Outcome, error) {
	variant := doc.Variant
	if variant == "" {
		variant = s.settings.DefaultVariant
	}
	limit, err := doc.Limit()
	if err != nil {
		return nil, err
	}
	if limit == 0 {
		limit = s.settings.TimeLimit
	}

	lease, err := s.locker.Acquire(ctx, s.settings.LockKey)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn().Err(err).Msg("failed to release run lock")
		}
	}()

	in, err := doc.Input()
	if err != nil {
		return nil, err
	}

	ids := &runIDs{}
	observers := kernel.MultiObserver{ids}
	if s.pub != nil {
		observers = append(observers, events.NewRunObserver(s.pub))
	}
	opts := []kernel.Option{
		kernel.WithObserver(observers),
		kernel.WithClustering(s.settings.ClusterThreshold, s.settings.ClusterCount),
		kernel.WithSolverRetry(s.settings.SolverAttempts, s.settings.SolverBackoff),
		kernel.WithILPOptions(s.settings.ILP),
	}

	sched, err := s.build(in, variant, opts)
	if err != nil {
		return nil, err
	}

	result, runErr := sched.ScheduleAll(ctx, limit)
	if runErr != nil {
		s.recordFailure(ctx, ids.get(), variant, runErr)
		return nil, runErr
	}
	out := &Outcome{Result: result, Report: s.validator.Validate(in, result)}

	if s.runs != nil {
		if _, err := s.runs.SaveResult(ctx, result); err != nil {
			return out, fmt.Errorf("persist run: %w", err)
		}
		if s.pub != nil {
			s.pub.Publish(events.EventRunStored, events.Payload{
				"run_id":     result.RunID,
				"valid":      out.Report.Valid,
				"violations": len(out.Report.Errors),
			})
		}
	}
	return out, nil
}

func (s *Service) build(in kernel.Input, variant string, opts []kernel.Option) (kernel.Scheduler, error) {
	if variant == kernel.VariantILP {
		return kernel.NewILP(in, s.solver, s.logger, opts...)
	}
	v, err := kernel.VariantByName(variant)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", request.ErrInvalid, err)
	}
	return kernel.New(in, v, s.logger, opts...)
}

func (s *Service) recordFailure(ctx context.Context, runID, variant string, runErr error) {
	if s.runs == nil {
		return
	}
	if runID == "" {
		runID = uuid.NewString()
	}
	if _, err := s.runs.SaveFailure(context.WithoutCancel(ctx), runID, variant, runErr); err != nil {
		s.logger.Error().Err(err).Str("run_id", runID).Msg("failed to persist failed run")
	}
}

// Source yields the request to schedule on each loop tick.
type Source func(ctx context.Context) (*request.Document, error)

// Loop re-schedules the request from source every interval until ctx is
// cancelled. A held lock skips the tick.
func (s *Service) Loop(ctx context.Context, every time.Duration, source Source) error {
	if every <= 0 {
		return fmt.Errorf("loop interval must be positive, got %s", every)
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", every).Msg("scheduling loop started")
	for {
		s.tick(ctx, source)
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("scheduling loop stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Service) tick(ctx context.Context, source Source) {
	doc, err := source(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to load scheduling request")
		return
	}
	result, err := s.Schedule(ctx, doc)
	switch {
	case errors.Is(err, runlock.ErrLockHeld):
		s.logger.Info().Msg("another run holds the lock, skipping tick")
	case err != nil:
		s.logger.Error().Err(err).Msg("scheduling run failed")
	default:
		s.logger.Info().
			Str("run_id", result.RunID).
			Int("scheduled", result.Stats.Scheduled).
			Int("unscheduled", result.Stats.Unscheduled).
			Bool("valid", result.Report.Valid).
			Msg("scheduling run completed")
	}
}

// runIDs remembers the id of the run in flight.
type runIDs struct {
	kernel.NopObserver
	mu sync.Mutex
	id string
}

func (r *runIDs) OnStart(info kernel.RunInfo) {
	r.mu.Lock()
	r.id = info.RunID
	r.mu.Unlock()
}

func (r *runIDs) get() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.id
}
