// Package server provides the HTTP API for Susume.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/susume/internal/config"
	"github.com/hyperjump/susume/internal/engine"
	"github.com/hyperjump/susume/internal/storage"
)

// Server is the HTTP server for the Susume API.
type Server struct {
	store     *engine.Store
	trainer   *engine.Trainer
	syncer    *storage.Syncer
	analytics storage.AnalyticsStore
	config    *config.ServerConfig
	serving   *config.ServingConfig
	logger    *zap.Logger
	server    *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(
	store *engine.Store,
	trainer *engine.Trainer,
	syncer *storage.Syncer,
	analytics storage.AnalyticsStore,
	cfg *config.ServerConfig,
	serving *config.ServingConfig,
	logger *zap.Logger,
) *Server {
	return &Server{
		store:     store,
		trainer:   trainer,
		syncer:    syncer,
		analytics: analytics,
		config:    cfg,
		serving:   serving,
		logger:    logger,
	}
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.router(),
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	// Training is a long-running batch job; give the write routes a generous
	// timeout and keep lookups snappy.
	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(10 * time.Minute))
		r.Post("/api/v1/sync", s.handleSync)
		r.Post("/api/v1/train", s.handleTrain)
		r.Post("/api/v1/retrain", s.handleRetrain)
	})
	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(15 * time.Second))
		r.Get("/api/v1/similar/{productID}", s.handleSimilar)
		r.Get("/api/v1/copurchased/{productID}", s.handleCoPurchased)
		r.Get("/api/v1/status", s.handleStatus)
		r.Get("/health", s.handleHealth)
	})
	return r
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
