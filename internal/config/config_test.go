/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.DBBackend != DatabaseSQLite {
		t.Fatalf("unexpected default backend %q", cfg.DBBackend)
	}
	if cfg.DefaultVariant != "hungarian" {
		t.Fatalf("unexpected default variant %q", cfg.DefaultVariant)
	}
	if cfg.MIPGap != 0.01 || cfg.SolverAttempts != 3 || cfg.SolverBackoff != 5*time.Second {
		t.Fatalf("unexpected solver defaults: gap=%g attempts=%d backoff=%s", cfg.MIPGap, cfg.SolverAttempts, cfg.SolverBackoff)
	}
	if cfg.HTTPAddr() != "0.0.0.0:8080" {
		t.Fatalf("unexpected http addr %q", cfg.HTTPAddr())
	}
}

func TestLoadReadsPrimaryAndLegacyKeys(t *testing.T) {
	t.Setenv("ADSCHED_VARIANT", "ilp")
	t.Setenv("SCHED_VARIANT", "plain")
	t.Setenv("SCHED_CLUSTER_COUNT", "5")
	t.Setenv("ADSCHED_TIME_LIMIT", "90")
	t.Setenv("ADSCHED_RUN_LOCK_TTL", "2m")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.DefaultVariant != "ilp" {
		t.Fatalf("primary key should win, got %q", cfg.DefaultVariant)
	}
	if cfg.ClusterCount != 5 {
		t.Fatalf("legacy key not read, got %d", cfg.ClusterCount)
	}
	if cfg.TimeLimit != 90*time.Second {
		t.Fatalf("bare seconds not parsed, got %s", cfg.TimeLimit)
	}
	if cfg.RunLockTTL != 2*time.Minute {
		t.Fatalf("duration not parsed, got %s", cfg.RunLockTTL)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"backend", "ADSCHED_DB_BACKEND", "oracle"},
		{"variant", "ADSCHED_VARIANT", "simulated-annealing"},
		{"algorithm", "ADSCHED_SOLVER_ALGORITHM", "barrier"},
		{"negative gap", "ADSCHED_MIP_GAP", "-0.5"},
		{"zero clusters", "ADSCHED_CLUSTER_COUNT", "0"},
		{"zero attempts", "ADSCHED_SOLVER_ATTEMPTS", "0"},
		{"transport", "ADSCHED_EVENT_TRANSPORT", "kafka"},
		{"nats without url", "ADSCHED_EVENT_TRANSPORT", "nats"},
		{"interval without file", "ADSCHED_SCHEDULE_INTERVAL", "10m"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			if _, err := Load(); err == nil {
				t.Fatalf("expected %s=%s to be rejected", tt.key, tt.val)
			}
		})
	}
}

func TestLoadReportsLegacyEnvWarnings(t *testing.T) {
	t.Setenv("TRACING_ENABLED", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if len(cfg.LegacyEnvWarnings) == 0 {
		t.Fatal("expected legacy env warnings")
	}
}

func TestLoadProductionRejectsMemoryDatabase(t *testing.T) {
	t.Setenv("ADSCHED_ENV", "production")
	t.Setenv("ADSCHED_DB_DSN", "file::memory:?cache=shared")

	if _, err := Load(); err == nil {
		t.Fatal("expected production config load to fail with an in-memory database")
	}

	t.Setenv("ADSCHED_DB_DSN", "/var/lib/adsched/runs.db")
	if _, err := Load(); err != nil {
		t.Fatalf("expected production config load with a file database to succeed: %v", err)
	}
}
