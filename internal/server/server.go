// Package server provides the HTTP API for Cermat.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/cermatapp/cermat/internal/backend"
	"github.com/cermatapp/cermat/internal/config"
	"github.com/cermatapp/cermat/internal/controller"
	"github.com/cermatapp/cermat/internal/history"
	"github.com/cermatapp/cermat/internal/notify"
	"github.com/cermatapp/cermat/internal/rules"
)

// Server is the HTTP server for the Cermat API.
type Server struct {
	ctrl    *controller.Controller
	store   *history.Store
	rules   *rules.Engine
	backend *backend.Client
	hub     *notify.Hub
	config  *config.Config
	logger  *zap.Logger
	server  *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(
	ctrl *controller.Controller,
	store *history.Store,
	engine *rules.Engine,
	client *backend.Client,
	hub *notify.Hub,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	return &Server{
		ctrl:    ctrl,
		store:   store,
		rules:   engine,
		backend: client,
		hub:     hub,
		config:  cfg,
		logger:  logger,
	}
}

// Router builds the chi router with all API routes mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Session-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Post("/api/analyze/model", s.handleAnalyzeModel)
	r.Post("/api/analyze/rule", s.handleAnalyzeRule)
	r.Post("/api/rules/match", s.handleLocalMatch)
	r.Get("/api/rules", s.handleRuleTable)
	r.Post("/api/upload/document", s.handleUpload)

	r.Get("/api/history", s.handleHistoryView)
	r.Post("/api/history", s.handleHistorySave)
	r.Delete("/api/history/{id}", s.handleHistoryRemove)
	r.Delete("/api/history", s.handleHistoryRemoveMany)
	r.Get("/api/history/export", s.handleHistoryExport)

	r.Get("/api/system/health", s.handleHealth)
	r.Get("/api/system/info", s.handleInfo)
	r.Get("/api/pages/detect", s.handleDetectPage)

	if s.hub != nil {
		r.Get("/ws/events", s.hub.ServeHTTP)
	}
	r.Get("/health", s.handleLiveness)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.hub != nil {
		s.hub.Close()
	}
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
