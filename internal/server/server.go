/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/adaptive_scheduler/internal/api"
	"github.com/friendsincode/adaptive_scheduler/internal/config"
	"github.com/friendsincode/adaptive_scheduler/internal/db"
	"github.com/friendsincode/adaptive_scheduler/internal/eventbus"
	"github.com/friendsincode/adaptive_scheduler/internal/request"
	"github.com/friendsincode/adaptive_scheduler/internal/runlock"
	"github.com/friendsincode/adaptive_scheduler/internal/scheduler"
	"github.com/friendsincode/adaptive_scheduler/internal/store"
	"github.com/friendsincode/adaptive_scheduler/internal/telemetry"
)

// Server bundles HTTP and supporting services.
type Server struct {
	cfg        *config.Config
	logger     zerolog.Logger
	router     chi.Router
	httpServer *http.Server
	closers    []func() error

	db        *gorm.DB
	runs      *store.Runs
	bus       eventbus.Bus
	locker    runlock.Locker
	scheduler *scheduler.Service
	api       *api.API

	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// New constructs the server and wires dependencies.
func New(cfg *config.Config, logger zerolog.Logger) (*Server, error) {
	for _, warn := range cfg.LegacyEnvWarnings {
		logger.Warn().Msg(warn)
	}

	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)
	router.Use(telemetry.TracingMiddleware(telemetry.ServiceName + "-api"))
	router.Use(telemetry.MetricsMiddleware)
	// Skip timeout for the event stream and long solver runs
	router.Use(func(next http.Handler) http.Handler {
		timeout := middleware.Timeout(60 * time.Second)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Upgrade") == "websocket" || strings.HasPrefix(r.URL.Path, "/v1/schedule") {
				next.ServeHTTP(w, r)
				return
			}
			timeout(next).ServeHTTP(w, r)
		})
	})

	srv := &Server{
		cfg:    cfg,
		logger: logger,
		router: router,
	}

	if err := srv.initDependencies(); err != nil {
		_ = srv.Close()
		return nil, err
	}

	srv.configureRoutes()
	srv.startBackgroundWorkers()

	srv.httpServer = &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           srv.router,
		ReadHeaderTimeout: 15 * time.Second,
		// WriteTimeout stays 0: solver runs and the event stream manage their own deadlines
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	return srv, nil
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")

		// Only advertise HSTS for requests served over HTTPS.
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) initDependencies() error {
	database, err := db.Connect(s.cfg)
	if err != nil {
		return err
	}
	s.DeferClose(func() error { return db.Close(database) })
	if err := db.Migrate(database); err != nil {
		return err
	}
	s.db = database
	s.runs = store.NewRuns(database, s.logger)

	natsCfg := eventbus.DefaultNATSConfig()
	natsCfg.URL = s.cfg.NATSURL
	natsCfg.SubjectPrefix = s.cfg.NATSSubjectPrefix
	redisBusCfg := eventbus.DefaultRedisConfig()
	redisBusCfg.Addr = s.cfg.RedisAddr
	redisBusCfg.Password = s.cfg.RedisPassword
	redisBusCfg.DB = s.cfg.RedisDB
	bus, err := eventbus.New(s.cfg.EventTransport, natsCfg, redisBusCfg, s.logger)
	if err != nil {
		return err
	}
	s.bus = bus
	s.DeferClose(bus.Close)

	s.locker = runlock.NewLocal()
	if s.cfg.RunLockEnabled {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		redisLock, err := runlock.NewRedis(ctx, runlock.RedisConfig{
			Addr:       s.cfg.RedisAddr,
			Password:   s.cfg.RedisPassword,
			DB:         s.cfg.RedisDB,
			TTL:        s.cfg.RunLockTTL,
			InstanceID: s.cfg.InstanceID,
		}, s.logger)
		if err != nil {
			return err
		}
		s.locker = redisLock
		s.DeferClose(redisLock.Close)
		s.logger.Info().
			Str("redis_addr", s.cfg.RedisAddr).
			Dur("ttl", s.cfg.RunLockTTL).
			Msg("distributed run lock enabled")
	}

	settings, err := scheduler.SettingsFromConfig(s.cfg)
	if err != nil {
		return err
	}
	s.scheduler = scheduler.New(settings, s.logger,
		scheduler.WithStore(s.runs),
		scheduler.WithPublisher(s.bus),
		scheduler.WithLocker(s.locker),
	)

	s.api = api.New(s.scheduler, s.runs, s.bus, s.logger)
	return nil
}

func (s *Server) configureRoutes() {
	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	s.router.Handle("/metrics", telemetry.Handler())
	s.api.Routes(s.router)
}

// Router exposes the configured handler.
func (s *Server) Router() http.Handler {
	return s.router
}

// HTTPServer exposes the underlying net/http server.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// Scheduler exposes the scheduling service.
func (s *Server) Scheduler() *scheduler.Service {
	return s.scheduler
}

// Close releases owned resources in reverse order.
func (s *Server) Close() error {
	s.stopBackgroundWorkers()
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.closers = nil
	return firstErr
}

// DeferClose registers a cleanup hook.
func (s *Server) DeferClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

func (s *Server) startBackgroundWorkers() {
	ctx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	if s.cfg.ScheduleInterval > 0 {
		path := s.cfg.RequestFile
		source := func(context.Context) (*request.Document, error) {
			return request.Load(path)
		}
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			if err := s.scheduler.Loop(ctx, s.cfg.ScheduleInterval, source); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error().Err(err).Msg("scheduling loop exited")
			}
		}()
	}

	// Start database metrics updater
	if s.db != nil {
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			ticker := time.NewTicker(30 * time.Second)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					db.UpdateConnectionMetrics(s.db)
				}
			}
		}()
	}
}

func (s *Server) stopBackgroundWorkers() {
	if s.bgCancel == nil {
		return
	}
	s.bgCancel()
	s.bgWG.Wait()
	s.bgCancel = nil
}
