package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	temporalclient "go.temporal.io/sdk/client"

	"github.com/edvin/zargar/internal/api/handler"
	mw "github.com/edvin/zargar/internal/api/middleware"
	"github.com/edvin/zargar/internal/core"
)

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	router         chi.Router
	logger         zerolog.Logger
	backups        *core.BackupService
	restoration    *core.RestorationManager
	corePool       Pinger
	temporalClient temporalclient.Client
}

func NewServer(logger zerolog.Logger, corePool Pinger, temporalClient temporalclient.Client, backups *core.BackupService, restoration *core.RestorationManager) *Server {
	s := &Server{
		router:         chi.NewRouter(),
		logger:         logger,
		backups:        backups,
		restoration:    restoration,
		corePool:       corePool,
		temporalClient: temporalClient,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(mw.Actor)
	s.router.Use(mw.RequestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(mw.Metrics)
}

func (s *Server) setupRoutes() {
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Get("/healthz", s.handleHealthz)
	s.router.Get("/readyz", s.handleReadyz)

	s.router.Route("/api/v1", func(r chi.Router) {
		// Backups
		backup := handler.NewBackup(s.backups)
		r.Get("/backups", backup.List)
		r.Post("/backups", backup.Create)
		r.Get("/backups/{id}", backup.Get)
		r.Post("/backups/{id}/cancel", backup.Cancel)

		// Snapshots
		snapshot := handler.NewSnapshot(s.restoration)
		r.Post("/tenants/{schema}/snapshots", snapshot.Create)
		r.Get("/snapshots", snapshot.List)

		// Restores
		restore := handler.NewRestore(s.restoration)
		r.Post("/tenants/{schema}/restore", restore.RestoreTenant)
		r.Post("/snapshots/{id}/restore", restore.RestoreSnapshot)
		r.Get("/restores/{id}", restore.Status)
		r.Post("/restores/{id}/cancel", restore.Cancel)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]string{}
	healthy := true

	if err := s.corePool.Ping(ctx); err != nil {
		checks["core_db"] = err.Error()
		healthy = false
	} else {
		checks["core_db"] = "ok"
	}

	if _, err := s.temporalClient.CheckHealth(ctx, &temporalclient.CheckHealthRequest{}); err != nil {
		checks["temporal"] = err.Error()
		healthy = false
	} else {
		checks["temporal"] = "ok"
	}

	w.Header().Set("Content-Type", "application/json")
	if healthy {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(checks)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
