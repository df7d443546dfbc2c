// Package server exposes the decision core over HTTP. The surface is
// deliberately small: evaluate, upgrade, rollback, history, health. Errors
// follow RFC 7807 Problem Details.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/nwops/upgraded/internal/audit"
	"github.com/nwops/upgraded/internal/inventory"
	"github.com/nwops/upgraded/internal/orchestrator"
	"github.com/nwops/upgraded/internal/version"
)

// Server is the upgraded HTTP server.
type Server struct {
	httpServer *http.Server
	orch       *orchestrator.Orchestrator
	devices    inventory.DeviceRepository
	recorder   audit.Recorder
	logger     *zap.Logger
	mux        *http.ServeMux
}

// New creates a Server bound to addr.
func New(addr string, orch *orchestrator.Orchestrator, devices inventory.DeviceRepository, recorder audit.Recorder, logger *zap.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 10 * time.Minute, // Upgrade execution completes within the request.
			IdleTimeout:  60 * time.Second,
		},
		orch:     orch,
		devices:  devices,
		recorder: recorder,
		logger:   logger,
		mux:      mux,
	}

	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /api/v1/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/v1/devices", s.handleListDevices)
	s.mux.HandleFunc("GET /api/v1/devices/{id}", s.handleGetDevice)
	s.mux.HandleFunc("POST /api/v1/devices/{id}/analyze", s.handleAnalyze)
	s.mux.HandleFunc("POST /api/v1/devices/{id}/upgrade", s.handleUpgrade)
	s.mux.HandleFunc("POST /api/v1/devices/{id}/rollback", s.handleRollback)
	s.mux.HandleFunc("GET /api/v1/devices/{id}/upgrades", s.handleHistory)
	s.mux.HandleFunc("GET /api/v1/devices/{id}/events", s.handleEvents)
}

// Handler returns the server's HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "upgraded",
		"version": version.Map(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
