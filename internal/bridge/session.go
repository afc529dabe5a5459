package bridge

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sourcegraph/jsonrpc2"
	"go.uber.org/zap"

	"github.com/halcyontv/halcyon/internal/abr"
)

// remoteEngine implements player.Engine against a connected player. Level
// commands go out as JSON-RPC requests; buffer and dropped-frame stats are
// cached from the player's periodic engine.buffer notifications.
type remoteEngine struct {
	mu       sync.Mutex
	conn     *websocket.Conn
	buffered float64
	dropped  uint64
}

func (e *remoteEngine) SetRenditionLevel(levelID int) error {
	payload, err := json.Marshal(setLevelParams{LevelID: levelID})
	if err != nil {
		return fmt.Errorf("failed to marshal setLevel: %w", err)
	}
	req := &jsonrpc2.Request{
		Method: methodSetLevel,
		Params: (*json.RawMessage)(&payload),
		ID:     jsonrpc2.ID{Num: uint64(uuid.New().ID())},
	}
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal setLevel request: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to send setLevel: %w", err)
	}
	return nil
}

func (e *remoteEngine) BufferedSeconds() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.buffered
}

func (e *remoteEngine) DroppedFrames() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dropped
}

func (e *remoteEngine) updateStats(buffered float64, dropped uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.buffered = buffered
	e.dropped = dropped
}

// Session owns the controller, reporter and connection of one viewer.
type Session struct {
	ID         string
	StartedAt  time.Time
	conn       *websocket.Conn
	engine     *remoteEngine
	controller *abr.Controller
	reporter   *abr.Reporter
	logger     *zap.Logger

	closeOnce sync.Once
}

func newSession(conn *websocket.Conn, stability abr.StabilityConfig, interval time.Duration, logger *zap.Logger) *Session {
	engine := &remoteEngine{conn: conn}
	controller := abr.NewController(engine, stability, logger)
	reporter := abr.NewReporter(controller, interval, logger)
	reporter.Start()

	return &Session{
		ID:         controller.SessionID(),
		StartedAt:  time.Now(),
		conn:       conn,
		engine:     engine,
		controller: controller,
		reporter:   reporter,
		logger:     logger.Named("session").With(zap.String("session", controller.SessionID())),
	}
}

// Controller exposes the session's controller to the API layer.
func (s *Session) Controller() *abr.Controller { return s.controller }

// Reporter exposes the session's telemetry reporter.
func (s *Session) Reporter() *abr.Reporter { return s.reporter }

// serve pumps inbound messages until the connection drops. Events are
// dispatched synchronously in delivery order; there is exactly one reader
// per connection, so no two decisions for a session are ever in flight.
func (s *Session) serve() {
	defer s.close()
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn("player connection lost", zap.Error(err))
			}
			return
		}
		if err := s.dispatch(data); err != nil {
			s.logger.Warn("dropping message", zap.Error(err))
		}
	}
}

func (s *Session) dispatch(data []byte) error {
	var req jsonrpc2.Request
	if err := json.Unmarshal(data, &req); err != nil {
		return fmt.Errorf("failed to unmarshal message: %w", err)
	}
	var params json.RawMessage
	if req.Params != nil {
		params = *req.Params
	}

	if req.Method == methodBuffer {
		var p bufferParams
		if err := json.Unmarshal(params, &p); err != nil {
			return fmt.Errorf("bad %s params: %w", methodBuffer, err)
		}
		s.engine.updateStats(p.BufferedSeconds, p.DroppedFrames)
		return nil
	}

	ev, err := decodeEvent(req.Method, params)
	if err != nil {
		return err
	}
	s.controller.HandleEvent(ev)
	return nil
}

func (s *Session) close() {
	s.closeOnce.Do(func() {
		s.reporter.Close()
		s.controller.Dispose()
		s.conn.Close()
		s.logger.Info("session closed")
	})
}
