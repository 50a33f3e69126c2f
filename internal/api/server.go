// Package api exposes the processor over HTTP: an analyze endpoint that
// accepts an uploaded photo and an SSE endpoint streaming per-stage
// progress to the uploading client.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/bookholmes/processor/internal/detect"
	"github.com/bookholmes/processor/internal/events"
	"github.com/bookholmes/processor/internal/metrics"
)

const defaultMaxUploadBytes = 20 << 20 // 20 MiB

// Runner executes one detection run over an uploaded image.
type Runner interface {
	Run(ctx context.Context, image []byte, emit detect.EmitFunc) detect.Result
}

// Options carries the request-handling knobs.
type Options struct {
	AuthEnabled    bool
	APIKeys        []string
	AnalyzeTimeout time.Duration
	IdleTimeout    time.Duration
	ResultTopic    string
	MaxUploadBytes int64
}

// Server routes HTTP traffic to the pipeline and the event relay.
type Server struct {
	runner    Runner
	relay     *events.Registry
	publisher detect.Publisher
	opts      Options
	logger    *zap.Logger
	router    chi.Router
}

// NewServer wires the routes. publisher may be nil to disable terminal
// result notifications.
func NewServer(runner Runner, relay *events.Registry, publisher detect.Publisher, opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.AnalyzeTimeout <= 0 {
		opts.AnalyzeTimeout = 2 * time.Minute
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = 5 * time.Minute
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUploadBytes
	}

	s := &Server{
		runner:    runner,
		relay:     relay,
		publisher: publisher,
		opts:      opts,
		logger:    logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/analyze", s.handleAnalyze)
		r.Get("/events/{client_id}", s.handleEvents)
	})

	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// requestLogger logs one line per request with the chi request ID.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

// authorized compares the Authorization header against the configured keys.
func (s *Server) authorized(r *http.Request) bool {
	if !s.opts.AuthEnabled {
		return true
	}
	header := r.Header.Get("Authorization")
	for _, key := range s.opts.APIKeys {
		if header == key {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
