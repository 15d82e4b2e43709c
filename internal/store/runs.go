/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package store persists scheduling runs.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/adaptive_scheduler/internal/contract"
	"github.com/friendsincode/adaptive_scheduler/internal/kernel"
	"github.com/friendsincode/adaptive_scheduler/internal/models"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("run not found")

// Runs reads and writes ScheduleRun rows.
type Runs struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// NewRuns creates a run store on an already migrated database.
func NewRuns(db *gorm.DB, logger zerolog.Logger) *Runs {
	return &Runs{db: db, logger: logger.With().Str("component", "store").Logger()}
}

// SaveResult stores a completed run with its placements and obligation
// allocations in one transaction.
func (s *Runs) SaveResult(ctx context.Context, result *kernel.Result) (*models.ScheduleRun, error) {
	run := runFromResult(result)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(run).Error
	})
	if err != nil {
		return nil, fmt.Errorf("save run %s: %w", result.RunID, err)
	}
	s.logger.Debug().
		Str("run_id", run.ID).
		Int("placements", len(run.Placements)).
		Msg("run persisted")
	return run, nil
}

// SaveFailure records a run that aborted.
func (s *Runs) SaveFailure(ctx context.Context, runID, variant string, runErr error) (*models.ScheduleRun, error) {
	run := &models.ScheduleRun{
		ID:      runID,
		Variant: variant,
		Status:  models.RunFailed,
		Error:   runErr.Error(),
	}
	if err := s.db.WithContext(ctx).Create(run).Error; err != nil {
		return nil, fmt.Errorf("save failed run %s: %w", runID, err)
	}
	return run, nil
}

// List returns the most recent runs without their placements.
func (s *Runs) List(ctx context.Context, limit int) ([]models.ScheduleRun, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	var runs []models.ScheduleRun
	if err := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// Get loads a run with its placements ordered by resource and start.
func (s *Runs) Get(ctx context.Context, id string) (*models.ScheduleRun, error) {
	var run models.ScheduleRun
	err := s.db.WithContext(ctx).
		Preload("Placements", func(db *gorm.DB) *gorm.DB {
			return db.Order("resource ASC, start_time ASC")
		}).
		Preload("Allocations").
		First(&run, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	return &run, nil
}

// Delete removes a run and everything recorded under it.
func (s *Runs) Delete(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("run_id = ?", id).Delete(&models.ScheduledReservation{}).Error; err != nil {
			return err
		}
		if err := tx.Where("run_id = ?", id).Delete(&models.ObligationAllocation{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.ScheduleRun{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func runFromResult(result *kernel.Result) *models.ScheduleRun {
	run := &models.ScheduleRun{
		ID:           result.RunID,
		Variant:      result.Variant,
		Status:       models.RunCompleted,
		Compounds:    result.Stats.Compounds,
		Reservations: result.Stats.Reservations,
		Scheduled:    result.Stats.Scheduled,
		Unscheduled:  result.Stats.Unscheduled,
		Uncommitted:  result.Stats.Uncommitted,
		Passes:       result.Stats.Passes,
		SolverStatus: result.Stats.SolverStatus,
		ScheduledBy:  result.Stats.ScheduledBy,
		DurationMS:   result.Duration.Milliseconds(),
	}

	for _, resource := range result.Schedule.Resources() {
		for _, r := range result.Schedule[resource] {
			label, _ := r.Payload.(string)
			run.Placements = append(run.Placements, models.ScheduledReservation{
				RunID:         result.RunID,
				ReservationID: r.ID,
				Label:         label,
				Resource:      resource,
				StartTime:     r.ScheduledStart,
				EndTime:       r.ScheduledStart + r.Duration,
				Priority:      r.Priority,
				ScheduledBy:   r.ScheduledBy,
			})
		}
	}

	if result.Obligations != nil {
		for _, o := range result.Obligations.Obligations {
			run.Allocations = append(run.Allocations, allocationOf(result.RunID, o))
		}
	}
	return run
}

func allocationOf(runID string, o *contract.Obligation) models.ObligationAllocation {
	intervals := make(map[string][][2]float64, len(o.Allocated))
	for res, iv := range o.Allocated {
		if pairs := iv.Pairs(); len(pairs) > 0 {
			intervals[res] = pairs
		}
	}
	return models.ObligationAllocation{
		RunID:     runID,
		Name:      o.Name,
		Priority:  o.Priority,
		TotalTime: o.TotalTime,
		Allocated: o.AllocatedTime(),
		Satisfied: o.Satisfied(),
		Intervals: intervals,
	}
}
