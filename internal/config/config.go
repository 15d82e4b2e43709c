/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// Variants accepted by ADSCHED_VARIANT.
var knownVariants = map[string]bool{
	"plain":       true,
	"clustered":   true,
	"hungarian":   true,
	"sequential":  true,
	"contractual": true,
	"ilp":         true,
}

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment string
	HTTPBind    string
	HTTPPort    int
	MetricsBind string
	DBBackend   DatabaseBackend
	DBDSN       string
	InstanceID  string

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64

	// Run serialization across instances
	RunLockEnabled bool
	RunLockTTL     time.Duration
	RedisAddr      string
	RedisPassword  string
	RedisDB        int

	// Run event fan-out
	EventTransport    string
	NATSURL           string
	NATSSubjectPrefix string

	// Kernel defaults
	DefaultVariant   string
	ClusterThreshold int
	ClusterCount     int
	SolverAlgorithm  string
	MIPGap           float64
	SolverAttempts   int
	SolverBackoff    time.Duration
	TimeLimit        time.Duration // 0 or negative means unbounded

	// Periodic rescheduling from a request file; disabled when the interval is 0
	RequestFile      string
	ScheduleInterval time.Duration

	LegacyEnvWarnings []string
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnvAny([]string{"ADSCHED_ENV", "SCHED_ENV"}, "development"),
		HTTPBind:    getEnvAny([]string{"ADSCHED_HTTP_BIND", "SCHED_HTTP_BIND"}, "0.0.0.0"),
		HTTPPort:    getEnvIntAny([]string{"ADSCHED_HTTP_PORT", "SCHED_HTTP_PORT"}, 8080),
		MetricsBind: getEnvAny([]string{"ADSCHED_METRICS_BIND", "SCHED_METRICS_BIND"}, "127.0.0.1:9000"),
		DBBackend:   DatabaseBackend(getEnvAny([]string{"ADSCHED_DB_BACKEND", "SCHED_DB_BACKEND"}, string(DatabaseSQLite))),
		DBDSN:       getEnvAny([]string{"ADSCHED_DB_DSN", "SCHED_DB_DSN"}, "adaptive_scheduler.db"),
		InstanceID:  getEnvAny([]string{"ADSCHED_INSTANCE_ID", "SCHED_INSTANCE_ID"}, ""),

		TracingEnabled:    getEnvBoolAny([]string{"ADSCHED_TRACING_ENABLED", "SCHED_TRACING_ENABLED"}, false),
		OTLPEndpoint:      getEnvAny([]string{"ADSCHED_OTLP_ENDPOINT", "SCHED_OTLP_ENDPOINT"}, "localhost:4317"),
		TracingSampleRate: getEnvFloatAny([]string{"ADSCHED_TRACING_SAMPLE_RATE", "SCHED_TRACING_SAMPLE_RATE"}, 1.0),

		RunLockEnabled: getEnvBoolAny([]string{"ADSCHED_RUN_LOCK_ENABLED", "SCHED_RUN_LOCK_ENABLED"}, false),
		RunLockTTL:     getEnvDurationAny([]string{"ADSCHED_RUN_LOCK_TTL", "SCHED_RUN_LOCK_TTL"}, 10*time.Minute),
		RedisAddr:      getEnvAny([]string{"ADSCHED_REDIS_ADDR", "SCHED_REDIS_ADDR"}, "localhost:6379"),
		RedisPassword:  getEnvAny([]string{"ADSCHED_REDIS_PASSWORD", "SCHED_REDIS_PASSWORD"}, ""),
		RedisDB:        getEnvIntAny([]string{"ADSCHED_REDIS_DB", "SCHED_REDIS_DB"}, 0),

		EventTransport:    getEnvAny([]string{"ADSCHED_EVENT_TRANSPORT", "SCHED_EVENT_TRANSPORT"}, "local"),
		NATSURL:           getEnvAny([]string{"ADSCHED_NATS_URL", "SCHED_NATS_URL"}, ""),
		NATSSubjectPrefix: getEnvAny([]string{"ADSCHED_NATS_SUBJECT_PREFIX", "SCHED_NATS_SUBJECT_PREFIX"}, "adsched.events"),

		DefaultVariant:   getEnvAny([]string{"ADSCHED_VARIANT", "SCHED_VARIANT"}, "hungarian"),
		ClusterThreshold: getEnvIntAny([]string{"ADSCHED_CLUSTER_THRESHOLD", "SCHED_CLUSTER_THRESHOLD"}, 10),
		ClusterCount:     getEnvIntAny([]string{"ADSCHED_CLUSTER_COUNT", "SCHED_CLUSTER_COUNT"}, 3),
		SolverAlgorithm:  getEnvAny([]string{"ADSCHED_SOLVER_ALGORITHM", "SCHED_SOLVER_ALGORITHM"}, "default"),
		MIPGap:           getEnvFloatAny([]string{"ADSCHED_MIP_GAP", "SCHED_MIP_GAP"}, 0.01),
		SolverAttempts:   getEnvIntAny([]string{"ADSCHED_SOLVER_ATTEMPTS", "SCHED_SOLVER_ATTEMPTS"}, 3),
		SolverBackoff:    getEnvDurationAny([]string{"ADSCHED_SOLVER_BACKOFF", "SCHED_SOLVER_BACKOFF"}, 5*time.Second),
		TimeLimit:        getEnvDurationAny([]string{"ADSCHED_TIME_LIMIT", "SCHED_TIME_LIMIT"}, 0),

		RequestFile:      getEnvAny([]string{"ADSCHED_REQUEST_FILE", "SCHED_REQUEST_FILE"}, ""),
		ScheduleInterval: getEnvDurationAny([]string{"ADSCHED_SCHEDULE_INTERVAL", "SCHED_SCHEDULE_INTERVAL"}, 0),
	}

	if cfg.DBBackend != DatabasePostgres && cfg.DBBackend != DatabaseMySQL && cfg.DBBackend != DatabaseSQLite {
		return nil, fmt.Errorf("unsupported database backend %q", cfg.DBBackend)
	}

	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("ADSCHED_DB_DSN or SCHED_DB_DSN must be provided")
	}

	switch cfg.EventTransport {
	case "local", "redis":
	case "nats":
		if cfg.NATSURL == "" {
			return nil, fmt.Errorf("ADSCHED_NATS_URL is required for the nats event transport")
		}
	default:
		return nil, fmt.Errorf("unknown event transport %q", cfg.EventTransport)
	}

	if !knownVariants[cfg.DefaultVariant] {
		return nil, fmt.Errorf("unknown scheduler variant %q", cfg.DefaultVariant)
	}

	switch cfg.SolverAlgorithm {
	case "default", "alt1", "alt2":
	default:
		return nil, fmt.Errorf("unknown solver algorithm %q", cfg.SolverAlgorithm)
	}

	if cfg.MIPGap < 0 {
		return nil, fmt.Errorf("ADSCHED_MIP_GAP must not be negative, got %g", cfg.MIPGap)
	}

	if cfg.ClusterCount < 1 || cfg.SolverAttempts < 1 {
		return nil, fmt.Errorf("ADSCHED_CLUSTER_COUNT and ADSCHED_SOLVER_ATTEMPTS must be at least 1")
	}

	if cfg.ScheduleInterval > 0 && cfg.RequestFile == "" {
		return nil, fmt.Errorf("ADSCHED_REQUEST_FILE is required when ADSCHED_SCHEDULE_INTERVAL is set")
	}

	if strings.EqualFold(cfg.Environment, "production") {
		if cfg.DBBackend == DatabaseSQLite && strings.Contains(cfg.DBDSN, ":memory:") {
			return nil, fmt.Errorf("an in-memory database cannot be used in production")
		}
		if cfg.RunLockEnabled && cfg.RedisAddr == "" {
			return nil, fmt.Errorf("ADSCHED_REDIS_ADDR is required when the run lock is enabled in production")
		}
	}
	cfg.LegacyEnvWarnings = detectLegacyEnvWarnings()

	return cfg, nil
}

func detectLegacyEnvWarnings() []string {
	legacy := map[string]string{
		"ENVIRONMENT":         "use ADSCHED_ENV (or SCHED_ENV)",
		"REDIS_ADDR":          "use ADSCHED_REDIS_ADDR",
		"NATS_URL":            "use ADSCHED_NATS_URL",
		"TRACING_ENABLED":     "use ADSCHED_TRACING_ENABLED (or SCHED_TRACING_ENABLED)",
		"OTLP_ENDPOINT":       "use ADSCHED_OTLP_ENDPOINT (or SCHED_OTLP_ENDPOINT)",
		"TRACING_SAMPLE_RATE": "use ADSCHED_TRACING_SAMPLE_RATE (or SCHED_TRACING_SAMPLE_RATE)",
	}

	warnings := make([]string, 0, len(legacy))
	for key, recommendation := range legacy {
		if os.Getenv(key) != "" {
			warnings = append(warnings, fmt.Sprintf("legacy env key %s is set; %s", key, recommendation))
		}
	}
	return warnings
}

// HTTPAddr is the listen address of the API server.
func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.HTTPBind, c.HTTPPort)
}

// getEnvAny returns the first non-empty environment variable value from keys, or def if none set.
func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

// getEnvIntAny returns the first set integer environment variable value from keys, or def.
func getEnvIntAny(keys []string, def int) int {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvBoolAny returns the first set boolean environment variable value from keys, or def.
func getEnvBoolAny(keys []string, def bool) bool {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "true" || v == "1" || v == "yes" {
				return true
			}
			if v == "false" || v == "0" || v == "no" {
				return false
			}
		}
	}
	return def
}

// getEnvFloatAny returns the first set float environment variable value from keys, or def.
func getEnvFloatAny(keys []string, def float64) float64 {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvDurationAny accepts Go duration strings ("90s") or bare seconds.
func getEnvDurationAny(keys []string, def time.Duration) time.Duration {
	for _, k := range keys {
		v := strings.TrimSpace(os.Getenv(k))
		if v == "" {
			continue
		}
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		if secs, err := strconv.ParseFloat(v, 64); err == nil {
			return time.Duration(secs * float64(time.Second))
		}
	}
	return def
}
