// Package api exposes the HTTP interface for the scraper service.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/hiparis-pubscraper/internal/conference"
	"github.com/JakeFAU/hiparis-pubscraper/internal/config"
	"github.com/JakeFAU/hiparis-pubscraper/internal/controller"
	"github.com/JakeFAU/hiparis-pubscraper/internal/crawler"
	"github.com/JakeFAU/hiparis-pubscraper/internal/metrics"
	"github.com/JakeFAU/hiparis-pubscraper/internal/roster"
	"github.com/JakeFAU/hiparis-pubscraper/internal/store"
)

const requestTimeout = 60 * time.Second

// Crawler is the controller surface the API drives.
type Crawler interface {
	Start(ctx context.Context, conferences []crawler.ConferenceSource, roster []string) error
	Stop() error
	Resume(ctx context.Context) error
	Reset(ctx context.Context) error
	State() crawler.State
	Progress() controller.Progress
	Results() []crawler.PublicationRecord
	Artifact() (crawler.Artifact, error)
}

// Deps are the collaborators behind the routes. Gatherer, Metrics and Runs
// are optional.
type Deps struct {
	Crawler     Crawler
	Conferences *conference.Registry
	Roster      *roster.Store
	Artifacts   crawler.BlobStore
	Gatherer    prometheus.Gatherer
	Metrics     *metrics.HTTP
	Runs        store.RunRepository
}

// Server wires HTTP handlers to the controller and session configuration.
type Server struct {
	router chi.Router
	deps   Deps
	cfg    config.Config
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Deps, cfg config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		deps:   deps,
		cfg:    cfg,
		logger: logger.Named("api"),
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))
	r.Use(recoverMiddleware(s.logger))
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Middleware)
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(timeoutMiddleware(requestTimeout))
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Route("/crawl", func(r chi.Router) {
			r.Post("/start", s.startCrawl)
			r.Post("/stop", s.stopCrawl)
			r.Post("/resume", s.resumeCrawl)
			r.Post("/reset", s.resetCrawl)
			r.Get("/progress", s.getProgress)
			r.Get("/results", s.getResults)
			r.Get("/artifact", s.getArtifact)
		})
		r.Route("/conferences", func(r chi.Router) {
			r.Get("/", s.listConferences)
			r.Post("/", s.addConference)
			r.Delete("/", s.removeConference)
			r.Post("/quick", s.quickAddConference)
			r.Post("/bulk", s.bulkAddConferences)
		})
		r.Get("/roster", s.getRoster)
		r.Put("/roster", s.putRoster)
		r.Get("/runs", s.listRuns)
		r.Get("/runs/{run_id}", s.getRun)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readyz reports ready once the controller and session configuration are wired.
func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Crawler == nil || s.deps.Conferences == nil || s.deps.Roster == nil {
		writeError(w, http.StatusServiceUnavailable, "not ready")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ready",
		"state":       s.deps.Crawler.State(),
		"conferences": len(s.deps.Conferences.List()),
		"authors":     s.deps.Roster.Len(),
	})
}

// statusFor maps controller and configuration errors to HTTP status codes.
func statusFor(err error) int {
	var cfgErr *crawler.ConfigurationError
	var fatal *crawler.FatalSessionError
	switch {
	case errors.Is(err, crawler.ErrInvalidTransition), errors.Is(err, crawler.ErrAlreadyComplete):
		return http.StatusConflict
	case errors.As(err, &cfgErr),
		errors.Is(err, crawler.ErrNoConferences),
		errors.Is(err, crawler.ErrEmptyRoster),
		errors.Is(err, roster.ErrMissingColumns):
		return http.StatusBadRequest
	case errors.As(err, &fatal):
		return http.StatusServiceUnavailable
	case errors.Is(err, crawler.ErrNoArtifact), errors.Is(err, crawler.ErrObjectNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", requestID(r.Context())),
			zap.Error(err),
		)
	}
	writeError(w, status, err.Error())
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
				zap.String("request_id", requestID(r.Context())),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec), zap.String("path", r.URL.Path))
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
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

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

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

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return &crawler.ConfigurationError{Field: "body", Reason: "invalid JSON: " + err.Error()}
	}
	return nil
}
