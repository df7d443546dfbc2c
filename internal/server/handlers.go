package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/nwops/upgraded/internal/inventory"
	"github.com/nwops/upgraded/internal/orchestrator"
)

// upgradeRequest is the body of POST /devices/{id}/upgrade.
type upgradeRequest struct {
	Mode string `json:"mode"`
}

func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.devices.List(r.Context())
	if err != nil {
		s.logger.Error("list devices", zap.Error(err))
		InternalError(w, "failed to list devices", r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, devices)
}

func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	device, err := s.devices.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, inventory.ErrNotFound) {
			NotFound(w, "device "+id+" not found", r.URL.Path)
			return
		}
		s.logger.Error("get device", zap.String("device_id", id), zap.Error(err))
		InternalError(w, "failed to load device", r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, device)
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	eval, err := s.orch.Evaluate(r.Context(), id)
	if err != nil {
		s.writeOrchestratorError(w, r, id, err)
		return
	}
	// Gate failures arrive here as denied verdicts, never as errors.
	writeJSON(w, http.StatusOK, eval)
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	mode := orchestrator.ModeExecute
	if r.Body != nil && r.ContentLength != 0 {
		var req upgradeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			BadRequest(w, "invalid request body: "+err.Error(), r.URL.Path)
			return
		}
		switch req.Mode {
		case "", string(orchestrator.ModeExecute):
			mode = orchestrator.ModeExecute
		case string(orchestrator.ModePlanOnly):
			mode = orchestrator.ModePlanOnly
		default:
			BadRequest(w, "mode must be plan_only or execute", r.URL.Path)
			return
		}
	}

	record, err := s.orch.Upgrade(r.Context(), id, mode)
	if err != nil {
		s.writeOrchestratorError(w, r, id, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleRollback(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	record, err := s.orch.Rollback(r.Context(), id)
	if err != nil {
		s.writeOrchestratorError(w, r, id, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	limit := queryInt(r, "limit", 10)

	records, err := s.orch.History(r.Context(), id, limit)
	if err != nil {
		s.writeOrchestratorError(w, r, id, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	limit := queryInt(r, "limit", 50)

	if _, err := s.devices.Get(r.Context(), id); err != nil {
		s.writeOrchestratorError(w, r, id, err)
		return
	}
	events, err := s.recorder.ListEvents(r.Context(), id, limit)
	if err != nil {
		s.logger.Error("list events", zap.String("device_id", id), zap.Error(err))
		InternalError(w, "failed to list audit events", r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// writeOrchestratorError maps core errors onto problem responses. The
// in-flight rejection gets its own 409 so callers can distinguish it from
// genuine failures.
func (s *Server) writeOrchestratorError(w http.ResponseWriter, r *http.Request, deviceID string, err error) {
	switch {
	case errors.Is(err, inventory.ErrNotFound):
		NotFound(w, "device "+deviceID+" not found", r.URL.Path)
	case errors.Is(err, orchestrator.ErrAttemptInFlight):
		Conflict(w, "device "+deviceID+" has an upgrade attempt in progress", r.URL.Path)
	default:
		s.logger.Error("request failed",
			zap.String("device_id", deviceID),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		InternalError(w, err.Error(), r.URL.Path)
	}
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
