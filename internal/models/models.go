/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"time"
)

// RunStatus is the outcome of a persisted scheduling run.
type RunStatus string

const (
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// ScheduleRun records one invocation of the scheduling kernel.
type ScheduleRun struct {
	ID           string    `gorm:"type:varchar(36);primaryKey"`
	Variant      string    `gorm:"type:varchar(32);index"`
	Status       RunStatus `gorm:"type:varchar(16);index"`
	Compounds    int
	Reservations int
	Scheduled    int
	Unscheduled  int
	Uncommitted  int
	Passes       int
	SolverStatus string         `gorm:"type:varchar(32)"`
	ScheduledBy  map[string]int `gorm:"serializer:json"`
	Error        string         `gorm:"type:text"`
	DurationMS   int64
	CreatedAt    time.Time `gorm:"index"`

	Placements  []ScheduledReservation `gorm:"foreignKey:RunID;constraint:OnDelete:CASCADE"`
	Allocations []ObligationAllocation `gorm:"foreignKey:RunID;constraint:OnDelete:CASCADE"`
}

// ScheduledReservation is a committed placement from a run.
type ScheduledReservation struct {
	ID            uint   `gorm:"primaryKey"`
	RunID         string `gorm:"type:varchar(36);index:idx_placements_run_resource"`
	ReservationID int
	Label         string  `gorm:"type:varchar(255)"`
	Resource      string  `gorm:"type:varchar(128);index:idx_placements_run_resource"`
	StartTime     float64 `gorm:"not null"`
	EndTime       float64 `gorm:"not null"`
	Priority      float64
	ScheduledBy   string `gorm:"type:varchar(64)"`
}

// ObligationAllocation records what a contractual obligation received.
type ObligationAllocation struct {
	ID        uint   `gorm:"primaryKey"`
	RunID     string `gorm:"type:varchar(36);index"`
	Name      string `gorm:"type:varchar(255)"`
	Priority  float64
	TotalTime float64
	Allocated float64
	Satisfied bool
	// Intervals maps resource to [start, end) pairs.
	Intervals map[string][][2]float64 `gorm:"serializer:json"`
}
