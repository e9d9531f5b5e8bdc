// Package server provides the HTTP API for Shirushi.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/shirushi/internal/annotations"
	"github.com/hyperjump/shirushi/internal/config"
	"github.com/hyperjump/shirushi/internal/documents"
	"github.com/hyperjump/shirushi/internal/search"
	"github.com/hyperjump/shirushi/internal/storage"
)

// Server is the HTTP server for the Shirushi API.
type Server struct {
	documents   *documents.Service
	annotations *annotations.Service
	storage     storage.Storage
	index       *search.Index
	config      *config.Config
	logger      *zap.Logger
	server      *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(
	docs *documents.Service,
	anns *annotations.Service,
	store storage.Storage,
	index *search.Index,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	return &Server{
		documents:   docs,
		annotations: anns,
		storage:     store,
		index:       index,
		config:      cfg,
		logger:      logger,
	}
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Post("/api/v1/documents", s.handleUploadDocument)
	r.Get("/api/v1/documents", s.handleListDocuments)
	r.Get("/api/v1/documents/{id}", s.handleGetDocument)
	r.Get("/api/v1/documents/{id}/file", s.handleGetDocumentFile)
	r.Delete("/api/v1/documents/{id}", s.handleDeleteDocument)
	r.Get("/api/v1/documents/{id}/annotations", s.handleListAnnotations)
	r.Get("/api/v1/documents/{id}/annotations/search", s.handleSearchAnnotations)

	r.Post("/api/v1/annotations", s.handleCreateAnnotation)
	r.Post("/api/v1/annotations/bulk", s.handleBulkCreateAnnotations)
	r.Get("/api/v1/annotations/{id}", s.handleGetAnnotation)
	r.Patch("/api/v1/annotations/{id}", s.handleUpdateAnnotation)
	r.Delete("/api/v1/annotations/{id}", s.handleDeleteAnnotation)

	r.Get("/api/v1/status", s.handleStatus)
	r.Get("/health", s.handleHealth)

	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: r,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server and waits for in-flight conversions.
func (s *Server) Stop(ctx context.Context) error {
	var err error
	if s.server != nil {
		err = s.server.Shutdown(ctx)
	}
	s.documents.Wait()
	return err
}
