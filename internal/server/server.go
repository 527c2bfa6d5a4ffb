// Package server wires stores, services, handlers and middleware into
// one HTTP server and owns its lifecycle. It is the composition root:
// every dependency is assembled here and nowhere else.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomatrack/tomatrack/internal/auth"
	"github.com/tomatrack/tomatrack/internal/cache"
	"github.com/tomatrack/tomatrack/internal/config"
	"github.com/tomatrack/tomatrack/internal/handler"
	"github.com/tomatrack/tomatrack/internal/middleware"
	"github.com/tomatrack/tomatrack/internal/repository"
	"github.com/tomatrack/tomatrack/internal/repository/memory"
	"github.com/tomatrack/tomatrack/internal/repository/mongodb"
	"github.com/tomatrack/tomatrack/internal/repository/sqlite"
	"github.com/tomatrack/tomatrack/internal/scheduler"
	"github.com/tomatrack/tomatrack/internal/service"
)

// store is what the server needs from a persistence backend: the full
// repository surface plus lifecycle control.
type store interface {
	repository.Store
	Ping(ctx context.Context) error
	Close() error
}

// Server owns every long-lived component: the store, the optional
// cache and scheduler, and the router serving requests.
type Server struct {
	router    *chi.Mux
	cfg       *config.Config
	logger    *slog.Logger
	store     store
	cache     *cache.Cache         // nil when Redis is not configured
	scheduler *scheduler.Scheduler // nil when the snapshot job is disabled
}

// New assembles the server: it opens the configured store, connects
// the cache when one is configured, and wires services and routes.
// The returned server is ready for Start.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		cfg:    cfg,
		logger: logger,
		store:  st,
	}

	if cfg.RedisAddr != "" {
		c := cache.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := c.Ping(ctx); err != nil {
			s.closeResources()
			return nil, fmt.Errorf("connecting to redis: %w", err)
		}
		s.cache = c
	}

	if err := s.setupRoutes(); err != nil {
		s.closeResources()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// openStore picks the persistence backend named by configuration.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store, error) {
	switch cfg.StoreDriver {
	case "mongo":
		db, err := mongodb.New(ctx, cfg.MongoURI, cfg.MongoDB, logger)
		if err != nil {
			return nil, err
		}
		return db, nil
	case "sqlite":
		db, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return db, nil
	case "memory":
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// setupRoutes builds the service layer on top of the store and mounts
// every route.
//
// Route map:
//
//	GET    /healthz                             liveness
//	GET    /metrics                             Prometheus scrape
//	POST   /internal/identity/reconcile         service JWT required
//	GET    /api/me                              user token required
//	PUT    /api/me
//	DELETE /api/me
//	GET    /api/me/counters
//	GET    /api/me/projects
//	POST   /api/projects
//	POST   /api/tomatoes
//	GET    /api/reports/users/by-tomatoes       public, cached
//	GET    /api/reports/users/by-day
//	GET    /api/reports/users/total-by-day
//	GET    /api/reports/leaderboard
func (s *Server) setupRoutes() error {
	tokens, err := auth.NewTokenService(s.cfg.ServiceTokenSecret, s.cfg.ServiceTokenTTL)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}

	identities := service.NewIdentityService(s.store, s.logger)
	users := service.NewUserService(s.store, s.store, s.store, s.store, s.logger)
	// Reports bucket days in UTC so every deployment draws the same
	// charts. Per-user counters still honor each user's own zone.
	reports := service.NewReportService(s.store, s.store, s.store, time.UTC, s.logger)
	tomatoes := service.NewTomatoService(s.store, s.logger)
	projects := service.NewProjectService(s.store, s.logger)

	if s.cfg.SnapshotSchedule != "" {
		sched := scheduler.New(reports, s.logger)
		if err := sched.AddSnapshotJob(s.cfg.SnapshotSchedule); err != nil {
			return err
		}
		s.scheduler = sched
	}

	identityHandler := handler.NewIdentityHandler(identities, s.logger)
	userHandler := handler.NewUserHandler(users, reports, s.logger)
	tomatoHandler := handler.NewTomatoHandler(tomatoes, s.logger)
	projectHandler := handler.NewProjectHandler(projects, s.logger)
	reportHandler := handler.NewReportHandler(reports, s.cache, s.cfg.ReportCacheTTL, s.logger)

	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(middleware.Metrics)

	s.router.Get("/healthz", s.handleHealth)
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Route("/internal", func(r chi.Router) {
		r.Use(auth.RequireService(tokens))
		r.Post("/identity/reconcile", identityHandler.HandleReconcile)
	})

	s.router.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireUser(identities))
			r.Get("/me", userHandler.HandleMe)
			r.Put("/me", userHandler.HandleUpdateMe)
			r.Delete("/me", userHandler.HandleDeleteMe)
			r.Get("/me/counters", userHandler.HandleCounters)
			r.Get("/me/projects", projectHandler.HandleListMine)
			r.Post("/projects", projectHandler.HandleCreate)
			r.Post("/tomatoes", tomatoHandler.HandleLog)
		})

		r.Route("/reports", func(r chi.Router) {
			r.Get("/users/by-tomatoes", reportHandler.HandleUsersByTomatoCount)
			r.Get("/users/by-day", reportHandler.HandleUsersByJoinDay)
			r.Get("/users/total-by-day", reportHandler.HandleTotalUsersByJoinDay)
			r.Get("/leaderboard", reportHandler.HandleLeaderboard)
		})
	})

	return nil
}

// handleHealth reports liveness. Only the store gates the result; the
// cache is best effort and a Redis outage merely slows reports down.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	body := `{"status":"ok"}`
	if err := s.store.Ping(ctx); err != nil {
		s.logger.Error("store health check failed", slog.String("error", err.Error()))
		status = http.StatusServiceUnavailable
		body = `{"status":"degraded"}`
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(body))
}

// Handler exposes the assembled router, mainly for tests that drive
// the server through httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start runs the HTTP server until SIGINT or SIGTERM, then drains
// in-flight requests and releases every resource.
func (s *Server) Start() error {
	defer s.closeResources()

	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if s.scheduler != nil {
		s.scheduler.Start()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.String("addr", s.cfg.Addr),
			slog.String("store", s.cfg.StoreDriver),
			slog.Bool("cache", s.cache != nil),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}

// closeResources stops the scheduler and closes the cache and store.
// Jobs stop first so nothing writes to a closed store.
func (s *Server) closeResources() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			s.logger.Error("closing cache", slog.String("error", err.Error()))
		}
	}
	if err := s.store.Close(); err != nil {
		s.logger.Error("closing store", slog.String("error", err.Error()))
	}
}
