/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"testing"

	"github.com/friendsincode/adaptive_scheduler/internal/config"
	"github.com/friendsincode/adaptive_scheduler/internal/models"
)

func TestOpenMigrateSQLite(t *testing.T) {
	database, err := Open(config.DatabaseSQLite, ":memory:", false)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer Close(database)

	if err := Migrate(database); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	for _, table := range []any{&models.ScheduleRun{}, &models.ScheduledReservation{}, &models.ObligationAllocation{}} {
		if !database.Migrator().HasTable(table) {
			t.Fatalf("missing table for %T", table)
		}
	}

	run := models.ScheduleRun{ID: "run-1", Variant: "ilp", Status: models.RunCompleted, ScheduledBy: map[string]int{"ilp": 2}}
	if err := database.Create(&run).Error; err != nil {
		t.Fatalf("create: %v", err)
	}
	var got models.ScheduleRun
	if err := database.First(&got, "id = ?", "run-1").Error; err != nil {
		t.Fatalf("read back: %v", err)
	}
	if got.ScheduledBy["ilp"] != 2 {
		t.Fatalf("json column lost: %v", got.ScheduledBy)
	}
	UpdateConnectionMetrics(database)
}

func TestOpenRejectsUnknownBackend(t *testing.T) {
	if _, err := Open("oracle", "dsn", false); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}
