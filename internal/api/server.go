// Package api exposes the inference service over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/neurasky/neurasky/internal/inference"
	"github.com/neurasky/neurasky/internal/store"
)

const maxRequestBytes = 1 << 20

type Server struct {
	svc    *inference.Service
	store  *store.Store
	addr   string
	loc    *time.Location
	logger *slog.Logger
	now    func() time.Time
}

// NewServer builds a server for svc. st may be nil, in which case the
// training and ingest history endpoints are not mounted.
func NewServer(svc *inference.Service, st *store.Store, addr string, loc *time.Location, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Server{
		svc:    svc,
		store:  st,
		addr:   addr,
		loc:    loc,
		logger: logger.With("component", "api"),
		now:    time.Now,
	}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/predict", s.handlePredict)
		r.Get("/forecast", s.handleForecast)
		r.Get("/model", s.handleModel)
		r.Get("/routes", s.handleRoutes)
		if s.store != nil {
			r.Get("/training-runs", s.handleTrainingRuns)
			r.Get("/ingest-runs", s.handleIngestRuns)
		}
	})
	return r
}

func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("listening", "addr", s.addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("write response", "error", err)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps inference errors to status codes: malformed queries are
// the caller's fault, a missing model is temporary, anything else is ours.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, inference.ErrMalformedQuery):
		status = http.StatusBadRequest
	case errors.Is(err, inference.ErrArtifactUnavailable):
		status = http.StatusServiceUnavailable
	default:
		s.logger.Error("request failed", "error", err)
	}
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}
