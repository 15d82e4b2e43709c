/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package store

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/friendsincode/adaptive_scheduler/internal/contract"
	"github.com/friendsincode/adaptive_scheduler/internal/db"
	"github.com/friendsincode/adaptive_scheduler/internal/interval"
	"github.com/friendsincode/adaptive_scheduler/internal/kernel"
	"github.com/friendsincode/adaptive_scheduler/internal/models"
	"github.com/friendsincode/adaptive_scheduler/internal/reservation"
)

func newTestStore(t *testing.T) *Runs {
	t.Helper()
	database, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := database.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := db.Migrate(database); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewRuns(database, zerolog.Nop())
}

func contractualResult(t *testing.T) *kernel.Result {
	t.Helper()
	w := map[string]*interval.Intervals{"foo": interval.FromPairs(interval.TagFree, [2]float64{0, 10})}
	r := reservation.New(2, 10, w)
	r.Payload = "m31 photometry"
	cr, err := reservation.NewCompound(reservation.OperatorSingle, r)
	if err != nil {
		t.Fatalf("NewCompound: %v", err)
	}
	obligation := contract.NewObligation("sponsor", 1, 20, 5,
		map[string]*interval.Intervals{"foo": interval.FromPairs(interval.TagFree, [2]float64{0, 40})})

	s, err := kernel.New(kernel.Input{
		Compounds:   []*reservation.CompoundReservation{cr},
		Obligations: []*contract.Obligation{obligation},
	}, kernel.VariantContractual, zerolog.Nop())
	if err != nil {
		t.Fatalf("kernel.New: %v", err)
	}
	result, err := s.ScheduleAll(context.Background(), 0)
	if err != nil {
		t.Fatalf("ScheduleAll: %v", err)
	}
	return result
}

func TestSaveAndGetRun(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	result := contractualResult(t)

	if _, err := s.SaveResult(ctx, result); err != nil {
		t.Fatalf("SaveResult: %v", err)
	}

	run, err := s.Get(ctx, result.RunID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if run.Status != models.RunCompleted || run.Variant != "contractual" || run.Scheduled != 1 {
		t.Fatalf("unexpected run row %+v", run)
	}
	if len(run.Placements) != 1 {
		t.Fatalf("expected one placement, got %d", len(run.Placements))
	}
	p := run.Placements[0]
	if p.Label != "m31 photometry" || p.Resource != "foo" || p.StartTime != 0 || p.EndTime != 10 {
		t.Fatalf("unexpected placement %+v", p)
	}
	if len(run.Allocations) != 1 || !run.Allocations[0].Satisfied || run.Allocations[0].Allocated != 20 {
		t.Fatalf("unexpected allocations %+v", run.Allocations)
	}
	if len(run.Allocations[0].Intervals["foo"]) == 0 {
		t.Fatal("allocation intervals not stored")
	}
}

func TestListAndDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	first := contractualResult(t)
	if _, err := s.SaveResult(ctx, first); err != nil {
		t.Fatalf("SaveResult: %v", err)
	}
	if _, err := s.SaveFailure(ctx, "failed-run", "ilp", errors.New("solve after 3 attempts")); err != nil {
		t.Fatalf("SaveFailure: %v", err)
	}

	runs, err := s.List(ctx, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected two runs, got %d", len(runs))
	}

	if err := s.Delete(ctx, first.RunID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, first.RunID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := s.Delete(ctx, first.RunID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound deleting twice, got %v", err)
	}

	failed, err := s.Get(ctx, "failed-run")
	if err != nil {
		t.Fatalf("Get failed run: %v", err)
	}
	if failed.Status != models.RunFailed || failed.Error == "" {
		t.Fatalf("unexpected failed run %+v", failed)
	}
}
