// Package api provides the HTTP surface for player UIs: rendition
// queries, manual quality selection, stability tuning and telemetry.
package api

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/halcyontv/halcyon/internal/abr"
)

// SessionRegistry resolves playback sessions for the API. Implemented by
// the bridge hub.
type SessionRegistry interface {
	Lookup(id string) (*abr.Controller, *abr.Reporter, bool)
	Default() (*abr.Controller, *abr.Reporter, bool)
}

// QualityHandler serves the quality management endpoints.
type QualityHandler struct {
	registry SessionRegistry
	logger   *zap.Logger
}

// NewQualityHandler creates a quality handler over the given registry.
func NewQualityHandler(registry SessionRegistry, logger *zap.Logger) *QualityHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QualityHandler{registry: registry, logger: logger.Named("quality-api")}
}

// RegisterRoutes registers the quality API routes. Mutating routes go
// through the rate limiter.
func (h *QualityHandler) RegisterRoutes(mux *http.ServeMux, limiter *RateLimiter) {
	mux.HandleFunc("/api/quality/levels", h.handleLevels)
	mux.HandleFunc("/api/quality/current", limiter.Middleware(h.handleCurrent))
	mux.HandleFunc("/api/quality/config", limiter.Middleware(h.handleConfig))
	mux.HandleFunc("/api/quality/metrics", h.handleMetrics)
}

// resolve picks the session named by the `session` query parameter, or the
// most recent one when unspecified.
func (h *QualityHandler) resolve(w http.ResponseWriter, r *http.Request) (*abr.Controller, *abr.Reporter, bool) {
	var (
		c  *abr.Controller
		rp *abr.Reporter
		ok bool
	)
	if id := r.URL.Query().Get("session"); id != "" {
		c, rp, ok = h.registry.Lookup(id)
	} else {
		c, rp, ok = h.registry.Default()
	}
	if !ok {
		http.Error(w, "No active playback session", http.StatusServiceUnavailable)
		return nil, nil, false
	}
	return c, rp, true
}

func (h *QualityHandler) handleLevels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	c, _, ok := h.resolve(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, map[string]any{"levels": c.QualityLevels()})
}

type currentLevelRequest struct {
	LevelID int `json:"levelId"`
}

type currentLevelResponse struct {
	Level abr.Level `json:"level"`
	Auto  bool      `json:"auto"`
}

func (h *QualityHandler) handleCurrent(w http.ResponseWriter, r *http.Request) {
	c, _, ok := h.resolve(w, r)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:

	case http.MethodPost:
		var req currentLevelRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if err := c.SetManualQuality(req.LevelID); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h.writeJSON(w, currentLevelResponse{Level: c.CurrentQuality(), Auto: c.IsAutoQuality()})
}

func (h *QualityHandler) handleConfig(w http.ResponseWriter, r *http.Request) {
	c, _, ok := h.resolve(w, r)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:

	case http.MethodPut:
		var update abr.StabilityUpdate
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if err := c.UpdateStabilityConfig(update); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h.writeJSON(w, c.StabilityConfig().View())
}

func (h *QualityHandler) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	c, _, ok := h.resolve(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, c.Snapshot())
}

func (h *QualityHandler) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("failed to encode response", zap.Error(err))
	}
}
