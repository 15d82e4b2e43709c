/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/friendsincode/adaptive_scheduler/internal/config"
	"github.com/friendsincode/adaptive_scheduler/internal/db"
	"github.com/friendsincode/adaptive_scheduler/internal/events"
	"github.com/friendsincode/adaptive_scheduler/internal/ilp"
	"github.com/friendsincode/adaptive_scheduler/internal/models"
	"github.com/friendsincode/adaptive_scheduler/internal/request"
	"github.com/friendsincode/adaptive_scheduler/internal/runlock"
	"github.com/friendsincode/adaptive_scheduler/internal/store"
)

const twoTargets = `
compounds:
  - type: single
    reservations:
      - {name: a, priority: 1, duration: 10, windows: {foo: [[0, 10]]}}
  - type: single
    reservations:
      - {name: b, priority: 2, duration: 10, windows: {foo: [[0, 10]]}}
`

func newStore(t *testing.T) *store.Runs {
	t.Helper()
	database, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, _ := database.DB()
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := db.Migrate(database); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store.NewRuns(database, zerolog.Nop())
}

func parse(t *testing.T, doc string) *request.Document {
	t.Helper()
	d, err := request.Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return d
}

type unavailableSolver struct{}

func (unavailableSolver) Solve(context.Context, *ilp.Model, ilp.Options) (*ilp.Solution, error) {
	return nil, ilp.ErrSolverUnavailable
}

func TestScheduleVariants(t *testing.T) {
	for _, variant := range []string{"plain", "clustered", "hungarian", "sequential", "contractual", "ilp"} {
		t.Run(variant, func(t *testing.T) {
			runs := newStore(t)
			bus := events.NewBus()
			stored := bus.Subscribe(events.EventRunStored)
			svc := New(DefaultSettings(), zerolog.Nop(), WithStore(runs), WithPublisher(bus))

			doc := parse(t, twoTargets)
			doc.Variant = variant
			result, err := svc.Schedule(context.Background(), doc)
			if err != nil {
				t.Fatalf("Schedule: %v", err)
			}
			if result.Stats.Scheduled != 1 || result.Variant != variant {
				t.Fatalf("unexpected stats %+v", result.Stats)
			}
			if !result.Report.Valid || len(result.Report.Info) != 1 {
				t.Fatalf("unexpected validation report %+v", result.Report)
			}

			select {
			case p := <-stored:
				if p["run_id"] != result.RunID || p["valid"] != true {
					t.Fatalf("unexpected stored event %v for run %s", p, result.RunID)
				}
			case <-time.After(time.Second):
				t.Fatal("no run.stored event")
			}
			if _, err := runs.Get(context.Background(), result.RunID); err != nil {
				t.Fatalf("run not persisted: %v", err)
			}
		})
	}
}

func TestScheduleUsesDefaultVariant(t *testing.T) {
	settings := DefaultSettings()
	settings.DefaultVariant = "sequential"
	result, err := New(settings, zerolog.Nop()).Schedule(context.Background(), parse(t, twoTargets))
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if result.Variant != "sequential" {
		t.Fatalf("ran %q, want the default", result.Variant)
	}
}

func TestScheduleUnknownVariant(t *testing.T) {
	doc := parse(t, twoTargets)
	doc.Variant = "annealing"
	if _, err := New(DefaultSettings(), zerolog.Nop()).Schedule(context.Background(), doc); !errors.Is(err, request.ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestScheduleRespectsHeldLock(t *testing.T) {
	ctx := context.Background()
	locker := runlock.NewLocal()
	lease, err := locker.Acquire(ctx, DefaultLockKey)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	svc := New(DefaultSettings(), zerolog.Nop(), WithLocker(locker))
	if _, err := svc.Schedule(ctx, parse(t, twoTargets)); !errors.Is(err, runlock.ErrLockHeld) {
		t.Fatalf("expected ErrLockHeld, got %v", err)
	}

	_ = lease.Release(ctx)
	if _, err := svc.Schedule(ctx, parse(t, twoTargets)); err != nil {
		t.Fatalf("Schedule after release: %v", err)
	}
	if _, err := svc.Schedule(ctx, parse(t, twoTargets)); err != nil {
		t.Fatalf("service must release its own lease: %v", err)
	}
}

func TestScheduleRecordsSolverFailure(t *testing.T) {
	runs := newStore(t)
	bus := events.NewBus()
	failed := bus.Subscribe(events.EventRunFailed)

	settings := DefaultSettings()
	settings.SolverAttempts = 1
	svc := New(settings, zerolog.Nop(), WithStore(runs), WithPublisher(bus), WithSolver(unavailableSolver{}))

	doc := parse(t, twoTargets)
	doc.Variant = "ilp"
	if _, err := svc.Schedule(context.Background(), doc); !errors.Is(err, ilp.ErrSolverUnavailable) {
		t.Fatalf("expected ErrSolverUnavailable, got %v", err)
	}

	p := <-failed
	list, err := runs.List(context.Background(), 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 || list[0].Status != models.RunFailed || list[0].ID != p["run_id"] {
		t.Fatalf("failed run not recorded under its id: %+v (event %v)", list, p)
	}
}

func TestSettingsFromConfig(t *testing.T) {
	t.Setenv("ADSCHED_SOLVER_ALGORITHM", "alt2")
	t.Setenv("ADSCHED_MIP_GAP", "0")
	t.Setenv("ADSCHED_VARIANT", "ilp")
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	s, err := SettingsFromConfig(cfg)
	if err != nil {
		t.Fatalf("SettingsFromConfig: %v", err)
	}
	if s.ILP.Algorithm != ilp.AlgorithmAlt2 || s.ILP.MIPGap != 0 || s.DefaultVariant != "ilp" {
		t.Fatalf("unexpected settings %+v", s)
	}
}

func TestLoopRunsUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var ticks atomic.Int32
	source := func(context.Context) (*request.Document, error) {
		if ticks.Add(1) >= 3 {
			cancel()
		}
		return request.Parse([]byte(twoTargets))
	}

	err := New(DefaultSettings(), zerolog.Nop()).Loop(ctx, 5*time.Millisecond, source)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if ticks.Load() < 3 {
		t.Fatalf("expected at least three ticks, got %d", ticks.Load())
	}
	if err := New(DefaultSettings(), zerolog.Nop()).Loop(context.Background(), 0, source); err == nil {
		t.Fatal("expected error for a zero interval")
	}
}
