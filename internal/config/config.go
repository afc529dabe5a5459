// Package config holds application configuration.
package config

import (
	"time"

	"github.com/halcyontv/halcyon/internal/abr"
	"github.com/halcyontv/halcyon/internal/store"
)

// Config holds all application configuration.
type Config struct {
	// HTTPAddr is the listen address for the API, player websocket and
	// metrics endpoints.
	HTTPAddr string

	// TelemetryInterval is how often each session's telemetry snapshot is
	// published.
	TelemetryInterval time.Duration

	// Stability is the selection tuning applied to new sessions.
	Stability abr.StabilityConfig

	// Database configures the asset catalog store. An empty URL disables
	// it; sessions then rely on manifest-parsed events for their ladder.
	Database store.PostgresConfig

	// ObjectStore configures playlist URL resolution. An empty endpoint
	// disables it; playlist keys then pass through verbatim.
	ObjectStore store.ObjectStoreConfig
}

// NewDefaultConfig returns a Config with default values.
func NewDefaultConfig() *Config {
	return &Config{
		HTTPAddr:          "localhost:8090",
		TelemetryInterval: abr.DefaultTelemetryInterval,
		Stability:         abr.DefaultStabilityConfig(),
		Database: store.PostgresConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
		},
		ObjectStore: store.ObjectStoreConfig{
			Bucket:    "halcyon-media",
			URLExpiry: time.Hour,
		},
	}
}
