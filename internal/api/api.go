/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/friendsincode/adaptive_scheduler/internal/eventbus"
	"github.com/friendsincode/adaptive_scheduler/internal/ilp"
	"github.com/friendsincode/adaptive_scheduler/internal/kernel"
	"github.com/friendsincode/adaptive_scheduler/internal/request"
	"github.com/friendsincode/adaptive_scheduler/internal/runlock"
	"github.com/friendsincode/adaptive_scheduler/internal/scheduler"
	"github.com/friendsincode/adaptive_scheduler/internal/store"
)

// maxRequestBytes bounds scheduling request bodies.
const maxRequestBytes = 8 << 20

// API exposes HTTP handlers.
type API struct {
	scheduler *scheduler.Service
	runs      *store.Runs
	bus       eventbus.Bus
	logger    zerolog.Logger
}

// New creates the API router wrapper. runs and bus may be nil, which
// disables the run history and event stream endpoints.
func New(svc *scheduler.Service, runs *store.Runs, bus eventbus.Bus, logger zerolog.Logger) *API {
	return &API{
		scheduler: svc,
		runs:      runs,
		bus:       bus,
		logger:    logger.With().Str("component", "api").Logger(),
	}
}

// Routes mounts the versioned API.
func (a *API) Routes(r chi.Router) {
	r.Route("/v1", func(r chi.Router) {
		r.Get("/health", a.handleHealth)
		r.Get("/variants", a.handleVariants)
		r.Post("/schedule", a.handleSchedule)
		r.Route("/runs", func(r chi.Router) {
			r.Get("/", a.handleRunsList)
			r.Get("/{runID}", a.handleRunsGet)
			r.Delete("/{runID}", a.handleRunsDelete)
		})
		r.Get("/events", a.handleEvents)
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleVariants(w http.ResponseWriter, r *http.Request) {
	names := []string{kernel.VariantILP}
	for name := range kernel.Variants() {
		names = append(names, name)
	}
	sort.Strings(names)
	writeJSON(w, http.StatusOK, map[string]any{
		"default":  a.scheduler.Settings().DefaultVariant,
		"variants": names,
	})
}

func (a *API) handleSchedule(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "request_too_large")
		return
	}
	doc, err := request.Parse(body)
	if err != nil {
		writeErrorDetail(w, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if v := r.URL.Query().Get("variant"); v != "" {
		doc.Variant = v
	}
	if limit := r.URL.Query().Get("time_limit"); limit != "" {
		doc.TimeLimit = limit
		if _, err := doc.Limit(); err != nil {
			writeErrorDetail(w, http.StatusBadRequest, "invalid_time_limit", err)
			return
		}
	}

	result, err := a.scheduler.Schedule(r.Context(), doc)
	switch {
	case err == nil:
	case errors.Is(err, request.ErrInvalid):
		writeErrorDetail(w, http.StatusBadRequest, "invalid_request", err)
		return
	case errors.Is(err, runlock.ErrLockHeld):
		writeError(w, http.StatusConflict, "run_in_progress")
		return
	case errors.Is(err, ilp.ErrSolverUnavailable):
		writeError(w, http.StatusServiceUnavailable, "solver_unavailable")
		return
	case result != nil:
		// The run finished but could not be persisted.
		a.logger.Error().Err(err).Str("run_id", result.RunID).Msg("run not persisted")
	default:
		a.logger.Error().Err(err).Msg("scheduling failed")
		writeError(w, http.StatusInternalServerError, "schedule_failed")
		return
	}

	resp := request.FromResult(result.Result)
	resp.Validation = result.Report
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleRunsList(w http.ResponseWriter, r *http.Request) {
	if a.runs == nil {
		writeError(w, http.StatusNotImplemented, "persistence_disabled")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := a.runs.List(r.Context(), limit)
	if err != nil {
		a.logger.Error().Err(err).Msg("list runs failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (a *API) handleRunsGet(w http.ResponseWriter, r *http.Request) {
	if a.runs == nil {
		writeError(w, http.StatusNotImplemented, "persistence_disabled")
		return
	}
	run, err := a.runs.Get(r.Context(), chi.URLParam(r, "runID"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run_not_found")
		return
	}
	if err != nil {
		a.logger.Error().Err(err).Msg("get run failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (a *API) handleRunsDelete(w http.ResponseWriter, r *http.Request) {
	if a.runs == nil {
		writeError(w, http.StatusNotImplemented, "persistence_disabled")
		return
	}
	err := a.runs.Delete(r.Context(), chi.URLParam(r, "runID"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run_not_found")
		return
	}
	if err != nil {
		a.logger.Error().Err(err).Msg("delete run failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

func writeErrorDetail(w http.ResponseWriter, status int, code string, err error) {
	writeJSON(w, status, map[string]string{"error": code, "detail": err.Error()})
}
