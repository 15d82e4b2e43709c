/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "adaptive_scheduler"

// Registry holds every collector exported by the process.
var Registry = prometheus.NewRegistry()

var (
	// SchedulerRunsTotal counts scheduling runs by variant and outcome.
	SchedulerRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "runs_total",
		Help:      "Scheduling runs by variant and outcome.",
	}, []string{"variant", "status"})

	SchedulerRunDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "run_duration_seconds",
		Help:      "Wall-clock duration of complete scheduling runs.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
	}, []string{"variant"})

	// SchedulerPassDuration times each stage of a run.
	SchedulerPassDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "pass_duration_seconds",
		Help:      "Duration of scheduling stages.",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
	}, []string{"variant", "stage"})

	ReservationsScheduledTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reservations_scheduled_total",
		Help:      "Reservations committed, by the algorithm that placed them.",
	}, []string{"variant", "scheduled_by"})

	ReservationsUnscheduledTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reservations_unscheduled_total",
		Help:      "Reservations left unscheduled at the end of a run.",
	}, []string{"variant"})

	// ConstraintUncommitsTotal counts reservations released by and/oneof
	// enforcement.
	ConstraintUncommitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "constraint_uncommits_total",
		Help:      "Reservations uncommitted during constraint enforcement.",
	}, []string{"operator"})

	// ScheduleViolationsTotal counts rule violations found in finished
	// schedules.
	ScheduleViolationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "schedule_violations_total",
		Help:      "Rule violations found by schedule validation.",
	}, []string{"rule"})

	SolverRetriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "solver_retries_total",
		Help:      "Retries after the ILP solver reported itself unavailable.",
	})

	ObligationShortfallSeconds = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "obligation_shortfall_seconds_total",
		Help:      "Contracted time that could not be allocated.",
	})

	RunLockAcquisitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "run_lock_acquisitions_total",
		Help:      "Run lock acquisitions by outcome.",
	}, []string{"outcome"})

	DatabaseQueryDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "db_query_duration_seconds",
		Help:      "Database operation latency.",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
	}, []string{"operation", "table"})

	DatabaseErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "db_errors_total",
		Help:      "Failed database operations.",
	}, []string{"operation", "table"})

	DatabaseConnectionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "db_connections_open",
		Help:      "Open database connections.",
	})

	APIRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "api_requests_total",
		Help:      "HTTP requests by method, route and status.",
	}, []string{"method", "endpoint", "status"})

	APIRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "api_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "endpoint", "status"})

	APIActiveConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "api_active_connections",
		Help:      "In-flight HTTP requests.",
	})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		SchedulerRunsTotal,
		SchedulerRunDuration,
		SchedulerPassDuration,
		ReservationsScheduledTotal,
		ReservationsUnscheduledTotal,
		ConstraintUncommitsTotal,
		ScheduleViolationsTotal,
		SolverRetriesTotal,
		ObligationShortfallSeconds,
		RunLockAcquisitionsTotal,
		DatabaseQueryDuration,
		DatabaseErrorsTotal,
		DatabaseConnectionsActive,
		APIRequestsTotal,
		APIRequestDuration,
		APIActiveConnections,
	)
}

// Handler exposes the metrics endpoint.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}
