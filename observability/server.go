// Package observability serves the metrics and health endpoints.
package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/turtacn/guomen/common/log"
	"github.com/turtacn/guomen/config"
	"github.com/turtacn/guomen/observability/health"
)

// Server manages the observability HTTP endpoints.
type Server struct {
	cfg        config.ObservabilityConfig
	httpServer *http.Server
	checker    *health.Checker
	log        log.Logger
}

// NewServer creates a new observability server.
func NewServer(cfg config.ObservabilityConfig, checker *health.Checker) *Server {
	return &Server{
		cfg:     cfg,
		checker: checker,
		log:     log.Component("observability"),
	}
}

// Start serves the endpoints in the background. It returns immediately.
func (s *Server) Start() error {
	if !s.cfg.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(s.cfg.MetricsPath, promhttp.Handler())
	mux.HandleFunc("/healthz", s.handleHealth)

	if s.cfg.EnablePprof {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	s.httpServer = &http.Server{
		Addr:    s.cfg.Address,
		Handler: mux,
	}

	go func() {
		s.log.Infof("serving metrics on %s%s", s.cfg.Address, s.cfg.MetricsPath)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.WithError(err).Errorf("observability server stopped")
		}
	}()
	return nil
}

// Stop shuts the HTTP server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := s.checker.Check(r.Context())

	w.Header().Set("Content-Type", "application/json")
	if response.Status != health.StatusHealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(response)
}
