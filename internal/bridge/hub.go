// Package bridge connects remote playback engines to per-session quality
// controllers over websocket + JSON-RPC.
package bridge

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/halcyontv/halcyon/internal/abr"
	"github.com/halcyontv/halcyon/internal/store"
)

// Hub accepts player connections and tracks live sessions. Each session
// gets its own controller, estimator and reporter; the hub never shares
// selection state between viewers.
type Hub struct {
	mu       sync.Mutex
	sessions map[string]*Session
	order    []string // insertion order, newest last

	upgrader  websocket.Upgrader
	stability abr.StabilityConfig
	interval  time.Duration
	catalog   store.AssetCatalog // optional
	logger    *zap.Logger
}

// NewHub creates a hub. catalog may be nil; sessions then depend on
// manifest-parsed events from the player for their rendition ladder.
func NewHub(stability abr.StabilityConfig, interval time.Duration, catalog store.AssetCatalog, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		sessions: make(map[string]*Session),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The player page is served from another origin in development.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		stability: stability,
		interval:  interval,
		catalog:   catalog,
		logger:    logger.Named("bridge"),
	}
}

// HandleWS upgrades a player connection and runs its session until the
// connection drops. An `asset` query parameter seeds the rendition ladder
// from the catalog store for server-initiated sessions.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	sess := newSession(conn, h.stability, h.interval, h.logger)
	h.add(sess)
	h.logger.Info("player connected",
		zap.String("session", sess.ID), zap.String("remote", r.RemoteAddr))

	if assetID := r.URL.Query().Get("asset"); assetID != "" && h.catalog != nil {
		levels, err := h.catalog.RenditionsForAsset(r.Context(), assetID)
		if err != nil {
			h.logger.Warn("failed to seed catalog, waiting for manifest",
				zap.String("asset", assetID), zap.Error(err))
		} else {
			sess.controller.Initialize(levels)
		}
	}

	go func() {
		sess.serve()
		h.remove(sess.ID)
	}()
}

func (h *Hub) add(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[s.ID] = s
	h.order = append(h.order, s.ID)
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions, id)
	for i, sid := range h.order {
		if sid == id {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
}

// Lookup finds a live session by id.
func (h *Hub) Lookup(id string) (*abr.Controller, *abr.Reporter, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.sessions[id]
	if !ok {
		return nil, nil, false
	}
	return s.controller, s.reporter, true
}

// Default returns the most recently connected session. Useful for the
// single-viewer settings panel; multi-session callers pass explicit ids.
func (h *Hub) Default() (*abr.Controller, *abr.Reporter, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.order) == 0 {
		return nil, nil, false
	}
	s := h.sessions[h.order[len(h.order)-1]]
	return s.controller, s.reporter, true
}

// SessionCount reports the number of live sessions.
func (h *Hub) SessionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// CloseAll tears down every live session. Used on shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	sessions := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()

	for _, s := range sessions {
		s.close()
		h.remove(s.ID)
	}
}
