// Package api exposes the HTTP interface for the crawler service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/naramarket/crawler/internal/config"
	"github.com/naramarket/crawler/internal/crawl"
	"github.com/naramarket/crawler/internal/metrics"
	"github.com/naramarket/crawler/internal/middleware"
)

// CrawlService runs one crawl invocation to completion and returns its
// checkpoint. The checkpoint must be usable even when err is non-nil.
type CrawlService interface {
	RunCrawl(ctx context.Context, req crawl.CrawlRequest) (crawl.Checkpoint, error)
}

// Server wires HTTP handlers to the crawl service.
type Server struct {
	router     chi.Router
	svc        CrawlService
	categories map[string]string
	cfg        config.Config
	logger     *zap.Logger
}

// NewServer constructs a Server with middleware and routes. categories
// maps product category names to output-file slugs and backs the
// discovery endpoint.
func NewServer(svc CrawlService, categories map[string]string, cfg config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		svc:        svc,
		categories: categories,
		cfg:        cfg,
		logger:     logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(middleware.Metrics)
	if cfg.Auth.Enabled {
		r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/crawls", s.runCrawl)
		r.Get("/categories", s.listCategories)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// crawlResponse is the body for both success and failure: the
// checkpoint is always present so the caller can resume either way.
type crawlResponse struct {
	Checkpoint crawl.Checkpoint `json:"checkpoint"`
	Error      string           `json:"error,omitempty"`
}

func (s *Server) runCrawl(w http.ResponseWriter, r *http.Request) {
	var req crawl.CrawlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	cp, err := s.svc.RunCrawl(r.Context(), req)
	if err != nil {
		s.logger.Warn("crawl invocation failed",
			zap.String("category", req.Category),
			zap.Error(err),
		)
		writeJSON(w, statusFor(err), crawlResponse{Checkpoint: cp, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, crawlResponse{Checkpoint: cp})
}

type categoryEntry struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

func (s *Server) listCategories(w http.ResponseWriter, _ *http.Request) {
	entries := make([]categoryEntry, 0, len(s.categories))
	for name, slug := range s.categories {
		entries = append(entries, categoryEntry{Name: name, Slug: slug})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Slug < entries[j].Slug })
	writeJSON(w, http.StatusOK, map[string]any{"categories": entries})
}

// statusFor maps the crawl error taxonomy onto HTTP statuses.
func statusFor(err error) int {
	var cfgErr *crawl.ConfigError
	if errors.As(err, &cfgErr) {
		return http.StatusBadRequest
	}
	var schemaErr *crawl.SchemaError
	if errors.As(err, &schemaErr) {
		return http.StatusConflict
	}
	var remoteErr *crawl.RemoteError
	if errors.As(err, &remoteErr) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type requestIDKey struct{}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
