// Package httpapi exposes the operational endpoints every binary serves
// (health, readiness, metrics) and, for the query binary, the availability
// lookup API.
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/poolhopper/freeswim-etl/internal/service"
)

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// AvailabilityService answers the query endpoints.
type AvailabilityService interface {
	AvailableNow(ctx context.Context) ([]service.AvailableSession, error)
	AvailableNear(ctx context.Context, lat, lng, radiusMeters float64, filterNow bool) ([]service.NearbySession, error)
}

// Server wraps the HTTP listener for one binary.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, and /metrics
// routes, for binaries that only need the operational surface.
func NewServer(addr string, ready ReadinessChecker, logger *slog.Logger) *Server {
	s := newServer(addr, ready, logger)
	return s
}

// NewQueryServer additionally mounts the availability query API.
func NewQueryServer(addr string, ready ReadinessChecker, availability AvailabilityService, logger *slog.Logger) *Server {
	s := newServer(addr, ready, logger)

	mux := s.httpServer.Handler.(*http.ServeMux)
	mux.HandleFunc("GET /api/v1/schedules/available", s.handleAvailable(availability))
	mux.HandleFunc("POST /api/v1/schedules/nearby", s.handleNearby(availability))
	return s
}

func newServer(addr string, ready ReadinessChecker, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", handleReady(ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func handleReady(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := checker.CheckReadiness(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func (s *Server) handleAvailable(availability AvailabilityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessions, err := availability.AvailableNow(r.Context())
		if err != nil {
			s.logger.Error("available-now query failed", "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "query failed"})
			return
		}
		if sessions == nil {
			sessions = []service.AvailableSession{}
		}
		writeJSON(w, http.StatusOK, sessions)
	}
}

// nearbyRequest is the body of POST /api/v1/schedules/nearby.
type nearbyRequest struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	RadiusM float64 `json:"radius_m"`
	OnlyNow bool    `json:"only_now"`
}

func (s *Server) handleNearby(availability AvailabilityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req nearbyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}
		if req.Lat < -90 || req.Lat > 90 || req.Lng < -180 || req.Lng > 180 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "lat/lng out of range"})
			return
		}

		sessions, err := availability.AvailableNear(r.Context(), req.Lat, req.Lng, req.RadiusM, req.OnlyNow)
		if err != nil {
			s.logger.Error("nearby query failed", "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "query failed"})
			return
		}
		if sessions == nil {
			sessions = []service.NearbySession{}
		}
		writeJSON(w, http.StatusOK, sessions)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
