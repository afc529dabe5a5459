package store

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	minio "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// ObjectStoreConfig contains object-storage connection settings.
type ObjectStoreConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	Bucket          string
	Region          string

	// URLExpiry bounds how long a presigned playlist URL stays valid.
	URLExpiry time.Duration

	// MaxRetries bounds presign retries on transient failures.
	MaxRetries   uint64
	RetryBackoff time.Duration
}

// MinIOResolver implements URLResolver by presigning GET URLs for playlist
// objects.
type MinIOResolver struct {
	client *minio.Client
	config ObjectStoreConfig
	logger *zap.Logger
}

// NewMinIOResolver creates a resolver against a MinIO-compatible endpoint.
func NewMinIOResolver(cfg ObjectStoreConfig, logger *zap.Logger) (*MinIOResolver, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.URLExpiry <= 0 {
		cfg.URLExpiry = time.Hour
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 200 * time.Millisecond
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	return &MinIOResolver{
		client: client,
		config: cfg,
		logger: logger.Named("minio-store"),
	}, nil
}

// PlaylistURL presigns a GET URL for the given playlist object, retrying
// transient failures with exponential backoff.
func (r *MinIOResolver) PlaylistURL(ctx context.Context, key string) (string, error) {
	var presigned *url.URL

	operation := func() error {
		u, err := r.client.PresignedGetObject(ctx, r.config.Bucket, key, r.config.URLExpiry, nil)
		if err != nil {
			r.logger.Warn("presign attempt failed",
				zap.String("key", key), zap.Error(err))
			return err
		}
		presigned = u
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.config.RetryBackoff
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, r.config.MaxRetries), ctx)

	if err := backoff.Retry(operation, policy); err != nil {
		return "", fmt.Errorf("failed to presign playlist %s: %w", key, err)
	}
	return presigned.String(), nil
}
