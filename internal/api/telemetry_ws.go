package api

import (
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/halcyontv/halcyon/internal/abr"
)

// TelemetryHandler pushes periodic session snapshots to UI clients over
// websocket. Pure observation; it never writes controller state.
type TelemetryHandler struct {
	registry SessionRegistry
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewTelemetryHandler creates a telemetry websocket handler.
func NewTelemetryHandler(registry SessionRegistry, logger *zap.Logger) *TelemetryHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TelemetryHandler{
		registry: registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: logger.Named("telemetry-ws"),
	}
}

// Handle subscribes the client to one session's snapshot stream until
// either side disconnects.
func (h *TelemetryHandler) Handle(w http.ResponseWriter, r *http.Request) {
	var (
		reporter *abr.Reporter
		ok       bool
	)
	if id := r.URL.Query().Get("session"); id != "" {
		_, reporter, ok = h.registry.Lookup(id)
	} else {
		_, reporter, ok = h.registry.Default()
	}
	if !ok {
		http.Error(w, "No active playback session", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	// Buffered so a slow client drops snapshots instead of stalling the
	// reporter.
	snaps := make(chan abr.Snapshot, 8)
	sub := reporter.Register(func(s abr.Snapshot) {
		select {
		case snaps <- s:
		default:
		}
	})
	defer reporter.Unregister(sub)

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case snap := <-snaps:
			if err := conn.WriteJSON(snap); err != nil {
				return
			}
		}
	}
}
