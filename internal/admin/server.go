// Package admin serves the read-only statistics API and Prometheus metrics.
package admin

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/oatsaysai/collect-in-telegram/internal/config"
	"github.com/oatsaysai/collect-in-telegram/internal/metrics"
	"github.com/oatsaysai/collect-in-telegram/internal/store"
)

// Server is the admin dashboard HTTP server
type Server struct {
	cfg   config.AdminConfig
	stats store.StatsStore
	mtr   *metrics.Metrics
	http  *http.Server
}

// NewServer wires the admin API over the stats store
func NewServer(cfg config.AdminConfig, stats store.StatsStore, mtr *metrics.Metrics) *Server {
	s := &Server{cfg: cfg, stats: stats, mtr: mtr}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(mtr.Registry(), promhttp.HandlerOpts{}))

	r.Route("/api", func(api chi.Router) {
		api.Use(s.requireToken)
		api.Get("/stats", s.handleStats)
		api.Get("/pools/recent", s.handleRecentPools)
		api.Get("/users/recent", s.handleRecentUsers)
	})

	s.http = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start begins serving in the background
func (s *Server) Start() {
	go func() {
		log.Printf("Admin server listening on %s", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("Admin server stopped: %v", err)
		}
	}()
}

// Shutdown stops the server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// requireToken guards the API with a constant-time bearer token check
func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		want := "Bearer " + s.cfg.APIToken
		if subtle.ConstantTimeCompare([]byte(auth), []byte(want)) != 1 {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "OK",
		"admin":     true,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.stats.UsageStats(r.Context())
	if err != nil {
		log.Printf("Failed to collect usage stats: %v", err)
		s.mtr.StoreFailuresTotal.Inc()
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "stats unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleRecentPools(w http.ResponseWriter, r *http.Request) {
	pools, err := s.stats.RecentPools(r.Context(), 8)
	if err != nil {
		log.Printf("Failed to load recent pools: %v", err)
		s.mtr.StoreFailuresTotal.Inc()
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "pools unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pools": pools})
}

func (s *Server) handleRecentUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.stats.RecentUsers(r.Context(), 8)
	if err != nil {
		log.Printf("Failed to load recent users: %v", err)
		s.mtr.StoreFailuresTotal.Inc()
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "users unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode admin response: %v", err)
	}
}
