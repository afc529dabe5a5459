// Package store provides the persistence adapters behind the platform's
// asset catalog: rendition ladders in PostgreSQL and playlist objects in
// MinIO-compatible object storage.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
	"go.uber.org/zap"

	"github.com/halcyontv/halcyon/internal/player"
)

// ErrAssetNotFound is returned when an asset has no renditions.
var ErrAssetNotFound = errors.New("store: asset not found")

// AssetCatalog supplies rendition ladders for assets. The playback
// controller consumes this through server-initiated sessions; tests and
// the demo path run without it.
type AssetCatalog interface {
	RenditionsForAsset(ctx context.Context, assetID string) ([]player.RawLevel, error)
}

// URLResolver turns a stored playlist key into a fetchable URL.
type URLResolver interface {
	PlaylistURL(ctx context.Context, key string) (string, error)
}

// PostgresConfig contains database connection settings.
type PostgresConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// PostgresCatalog implements AssetCatalog using PostgreSQL.
type PostgresCatalog struct {
	db       *sqlx.DB
	resolver URLResolver
	logger   *zap.Logger
}

// OpenPostgresCatalog connects to the database and verifies the
// connection. The resolver may be nil, in which case playlist keys pass
// through verbatim as URLs.
func OpenPostgresCatalog(cfg PostgresConfig, resolver URLResolver, logger *zap.Logger) (*PostgresCatalog, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sqlx.Connect("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	return &PostgresCatalog{
		db:       db,
		resolver: resolver,
		logger:   logger.Named("catalog-store"),
	}, nil
}

// renditionRow mirrors one row of the renditions table.
type renditionRow struct {
	Name        string `db:"name"`
	Width       int    `db:"width"`
	Height      int    `db:"height"`
	Bitrate     int64  `db:"bitrate"`
	PlaylistKey string `db:"playlist_key"`
}

// RenditionsForAsset loads the rendition ladder of one asset, lowest
// bitrate first, resolving playlist keys to URLs when a resolver is
// configured.
func (s *PostgresCatalog) RenditionsForAsset(ctx context.Context, assetID string) ([]player.RawLevel, error) {
	var rows []renditionRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT name, width, height, bitrate, playlist_key
		FROM renditions
		WHERE asset_id = $1
		ORDER BY bitrate ASC`, assetID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAssetNotFound
		}
		return nil, fmt.Errorf("failed to query renditions for %s: %w", assetID, err)
	}
	if len(rows) == 0 {
		return nil, ErrAssetNotFound
	}

	levels, err := rowsToLevels(ctx, rows, s.resolver)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("loaded rendition ladder",
		zap.String("asset", assetID), zap.Int("levels", len(levels)))
	return levels, nil
}

// rowsToLevels maps database rows to engine-level descriptors.
func rowsToLevels(ctx context.Context, rows []renditionRow, resolver URLResolver) ([]player.RawLevel, error) {
	levels := make([]player.RawLevel, 0, len(rows))
	for _, row := range rows {
		url := row.PlaylistKey
		if resolver != nil {
			resolved, err := resolver.PlaylistURL(ctx, row.PlaylistKey)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve playlist %s: %w", row.PlaylistKey, err)
			}
			url = resolved
		}
		levels = append(levels, player.RawLevel{
			Width:   row.Width,
			Height:  row.Height,
			Bitrate: row.Bitrate,
			Name:    row.Name,
			URL:     url,
		})
	}
	return levels, nil
}

// HealthCheck pings the database.
func (s *PostgresCatalog) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresCatalog) Close() error {
	return s.db.Close()
}
