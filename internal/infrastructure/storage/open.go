package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"

	"AdobeDigest/internal/config"
	"AdobeDigest/internal/ports"
)

// ErrUnknownBackend is returned by Open for unsupported tracking.backend values.
var ErrUnknownBackend = errors.New("unknown tracking backend")

// Open builds the tracking store selected by cfg. The returned closer is never nil.
func Open(ctx context.Context, cfg config.TrackingConfig, logger *slog.Logger) (ports.TrackingStore, func() error, error) {
	noop := func() error { return nil }
	backend := strings.ToLower(strings.TrimSpace(cfg.Backend))
	if logger != nil {
		logger.Debug("open tracking store", "backend", backend)
	}

	switch backend {
	case "", "json":
		return NewJSONStore(cfg.Path), noop, nil
	case "sqlite":
		store, err := OpenSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, noop, err
		}
		return store, store.Close, nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, noop, fmt.Errorf("ping redis %s: %w", cfg.Redis.Addr, err)
		}
		return NewRedisStore(client, cfg.Redis.Key), client.Close, nil
	case "s3":
		store, err := NewS3Store(ctx, cfg.S3)
		if err != nil {
			return nil, noop, err
		}
		return store, noop, nil
	default:
		return nil, noop, fmt.Errorf("%w: %s", ErrUnknownBackend, cfg.Backend)
	}
}
