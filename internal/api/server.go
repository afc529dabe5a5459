package api

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server is the HTTP server carrying the quality API, the telemetry and
// player websockets, and the Prometheus endpoint.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	limiter    *RateLimiter
	logger     *zap.Logger
}

// NewServer wires the handlers onto one mux. playerWS is the bridge hub's
// websocket handler; pass nil to run the API without player ingest (used
// in tests).
func NewServer(addr string, quality *QualityHandler, telemetry *TelemetryHandler, playerWS http.HandlerFunc, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	mux := http.NewServeMux()
	limiter := NewRateLimiter(30, time.Minute)

	quality.RegisterRoutes(mux, limiter)
	mux.HandleFunc("/ws/telemetry", telemetry.Handle)
	if playerWS != nil {
		mux.HandleFunc("/ws/player", playerWS)
	}
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	return &Server{
		httpServer: &http.Server{
			Addr:    addr,
			Handler: corsMiddleware(mux),
			// Websocket routes are long-lived, so only the header read is
			// bounded.
			ReadHeaderTimeout: 10 * time.Second,
			MaxHeaderBytes:    1 << 20,
		},
		mux:     mux,
		limiter: limiter,
		logger:  logger.Named("api-server"),
	}
}

// Start begins serving in a background goroutine.
func (s *Server) Start() {
	s.logger.Info("listening", zap.String("addr", s.httpServer.Addr))
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("server error", zap.Error(err))
		}
	}()
}

// Shutdown drains connections and stops the rate limiter.
func (s *Server) Shutdown(ctx context.Context) error {
	s.limiter.Close()
	return s.httpServer.Shutdown(ctx)
}

// corsMiddleware allows the dashboard, served from another origin in
// development, to call the API.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
