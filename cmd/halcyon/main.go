package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/halcyontv/halcyon/internal/api"
	"github.com/halcyontv/halcyon/internal/bridge"
	"github.com/halcyontv/halcyon/internal/config"
	"github.com/halcyontv/halcyon/internal/store"
)

// Application holds all components wired for one process.
type Application struct {
	config   *config.Config
	logger   *zap.Logger
	catalog  *store.PostgresCatalog
	resolver *store.MinIOResolver
	hub      *bridge.Hub
	server   *api.Server
}

func main() {
	cfg := config.NewDefaultConfig()

	flag.StringVar(&cfg.HTTPAddr, "addr", cfg.HTTPAddr, "HTTP listen address")
	flag.DurationVar(&cfg.TelemetryInterval, "telemetry-interval", cfg.TelemetryInterval, "telemetry publish interval")
	flag.StringVar(&cfg.Database.URL, "db-url", os.Getenv("HALCYON_DB_URL"), "PostgreSQL connection URL (empty disables the asset catalog)")
	flag.StringVar(&cfg.ObjectStore.Endpoint, "s3-endpoint", os.Getenv("HALCYON_S3_ENDPOINT"), "object store endpoint (empty disables presigned playlist URLs)")
	flag.StringVar(&cfg.ObjectStore.AccessKeyID, "s3-access-key", os.Getenv("HALCYON_S3_ACCESS_KEY"), "object store access key")
	flag.StringVar(&cfg.ObjectStore.SecretAccessKey, "s3-secret-key", os.Getenv("HALCYON_S3_SECRET_KEY"), "object store secret key")
	flag.StringVar(&cfg.ObjectStore.Bucket, "s3-bucket", cfg.ObjectStore.Bucket, "object store bucket holding rendition playlists")
	flag.BoolVar(&cfg.ObjectStore.UseSSL, "s3-ssl", cfg.ObjectStore.UseSSL, "use TLS for the object store")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	app, err := NewApplication(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create application", zap.Error(err))
	}
	defer app.Cleanup()

	app.server.Start()
	logger.Info("Halcyon started", zap.String("addr", cfg.HTTPAddr))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.server.Shutdown(ctx); err != nil {
		logger.Error("Server shutdown failed", zap.Error(err))
	}
}

func NewApplication(cfg *config.Config, logger *zap.Logger) (*Application, error) {
	app := &Application{config: cfg, logger: logger}

	if cfg.ObjectStore.Endpoint != "" {
		resolver, err := store.NewMinIOResolver(cfg.ObjectStore, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create URL resolver: %w", err)
		}
		app.resolver = resolver
	}

	// The catalog is optional. Without it sessions build their rendition
	// ladder from manifest-parsed events alone.
	var catalog store.AssetCatalog
	if cfg.Database.URL != "" {
		var resolver store.URLResolver
		if app.resolver != nil {
			resolver = app.resolver
		}
		pg, err := store.OpenPostgresCatalog(cfg.Database, resolver, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open asset catalog: %w", err)
		}
		app.catalog = pg
		catalog = pg
	}

	app.hub = bridge.NewHub(cfg.Stability, cfg.TelemetryInterval, catalog, logger)

	quality := api.NewQualityHandler(app.hub, logger)
	telemetry := api.NewTelemetryHandler(app.hub, logger)
	app.server = api.NewServer(cfg.HTTPAddr, quality, telemetry, app.hub.HandleWS, logger)

	return app, nil
}

func (app *Application) Cleanup() {
	if app.hub != nil {
		app.hub.CloseAll()
	}
	if app.catalog != nil {
		if err := app.catalog.Close(); err != nil {
			app.logger.Error("Failed to close asset catalog", zap.Error(err))
		}
	}
}
