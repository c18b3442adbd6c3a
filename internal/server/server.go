// Package server provides the HTTP API for mensetsu.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/mensetsu/internal/analysis"
	"github.com/hyperjump/mensetsu/internal/auth"
	"github.com/hyperjump/mensetsu/internal/config"
	"github.com/hyperjump/mensetsu/internal/resume"
	"github.com/hyperjump/mensetsu/internal/search"
	"github.com/hyperjump/mensetsu/internal/storage"
	"github.com/hyperjump/mensetsu/internal/vector"
)

// WatchService reports the directories watched for new resumes.
type WatchService interface {
	Directories() []string
}

// Deps are the collaborators the API is served from. Watch may be nil.
type Deps struct {
	Resumes     *resume.Service
	Engine      *search.Engine
	Analyzer    *analysis.Analyzer
	Records     storage.RecordStore
	VectorIndex vector.VectorIndex
	Verifier    auth.Verifier
	Watch       WatchService
}

// Server is the HTTP server for the mensetsu API.
type Server struct {
	Deps
	config *config.Config
	logger *zap.Logger
	server *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(deps Deps, cfg *config.Config, logger *zap.Logger) *Server {
	return &Server{Deps: deps, config: cfg, logger: logger}
}

// Router builds the route tree.
func (s *Server) Router() http.Handler {
	timeout := s.config.Server.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))
	r.Use(middleware.Compress(5))

	r.Get("/health", s.handleHealth)
	r.Get("/api/v1/status", s.handleStatus)

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)
		r.Post("/api/v1/resumes", s.handleUpload)
		r.Get("/api/v1/resumes", s.handleListResumes)
		r.Get("/api/v1/resumes/{id}", s.handleGetResume)
		r.Delete("/api/v1/resumes/{id}", s.handleDeleteResume)
		r.Post("/api/v1/resumes/{id}/summary", s.handleSummarize)
		r.Post("/api/v1/resumes/{id}/analysis", s.handleAnalyze)
		r.Post("/api/v1/resumes/{id}/reindex", s.handleReindex)
		r.Post("/api/v1/ask", s.handleAsk)
		r.Post("/api/v1/search", s.handleSearch)
		r.Post("/api/v1/interviews/summary", s.handleInterviewSummary)
	})
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
