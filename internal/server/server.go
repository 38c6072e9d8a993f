// Package server provides the HTTP server for uploading images and browsing
// their annotations.
package server

import (
	"context"
	"encoding/json"
	"html/template"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/ayusman/autoannotate/internal/app"
	"github.com/ayusman/autoannotate/internal/server/api"
)

const shutdownTimeout = 5 * time.Second

// Config holds the server configuration.
type Config struct {
	App          *app.App
	ProcessedDir string
	// MaxUploadBytes caps the size of one upload request; 0 means no limit.
	MaxUploadBytes int64
	// TargetClass and Threshold are shown on the upload form.
	TargetClass string
	Threshold   float64
	Logger      *zap.SugaredLogger
}

// Server represents the HTTP server for the application.
type Server struct {
	config    Config
	mux       *http.ServeMux
	templates *template.Template
	events    *EventHub
	logger    *zap.SugaredLogger
	start     time.Time
}

// New creates a new Server with the given configuration. Without an App
// only the health endpoint is served.
func New(config Config) (*Server, error) {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	templates, err := parseTemplates()
	if err != nil {
		return nil, errors.Wrap(err, "parse templates")
	}

	s := &Server{
		config:    config,
		mux:       http.NewServeMux(),
		templates: templates,
		events:    NewEventHub(logger),
		logger:    logger,
		start:     time.Now(),
	}
	s.setupRoutes()

	if config.App != nil {
		config.App.RegisterUploadCallback(s.events.Broadcast)
	}
	return s, nil
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	if s.config.App == nil {
		return
	}

	uploads := api.NewUploadHandler(s.config.App.Store(), s.config.App, s.logger)
	s.mux.Handle("/api/uploads", uploads)
	s.mux.Handle("/api/uploads/", uploads)
	s.mux.Handle("/api/events", s.events)

	s.mux.HandleFunc("/", s.handleIndex)
	s.mux.HandleFunc("/upload", s.handleUpload)
	s.mux.HandleFunc("/gallery", s.handleGallery)

	if s.config.ProcessedDir != "" {
		s.mux.Handle("/processed/", s.processedFiles())
	}
}

// Events returns the hub that broadcasts upload events.
func (s *Server) Events() *EventHub {
	return s.events
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	uptime := time.Since(s.start)

	response := map[string]interface{}{
		"status": "ok",
		"uptime": uptime.String(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts the
// server down.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	hs := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- hs.ListenAndServe()
	}()
	s.logger.Infow("Listening", "addr", addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.logger.Infow("Shutting down", "addr", addr)
	return hs.Shutdown(shutdownCtx)
}
