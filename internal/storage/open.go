package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/giselles-ai/giselle-sub007/internal/config"
	"github.com/giselles-ai/giselle-sub007/internal/db"
)

// Open builds the Store selected by cfg. The returned close function
// releases driver connections.
func Open(ctx context.Context, cfg config.StorageConfig) (*Store, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Driver {
	case "", "memory":
		slog.Info("storage: using in-memory driver")
		return New(NewMemoryDriver()), noop, nil

	case "local":
		driver, err := NewLocalDriver(cfg.Dir)
		if err != nil {
			return nil, nil, err
		}
		slog.Info("storage: using local driver", "dir", cfg.Dir)
		return New(driver), noop, nil

	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, nil, fmt.Errorf("storage driver postgres needs database_url")
		}
		database, err := db.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := database.Migrate(ctx); err != nil {
			database.Close()
			return nil, nil, err
		}
		slog.Info("storage: using postgres driver")
		return New(NewPostgresDriver(database)), database.Close, nil

	case "redis":
		if cfg.RedisURL == "" {
			return nil, nil, fmt.Errorf("storage driver redis needs redis_url")
		}
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("parse redis url: %w", err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("ping redis: %w", err)
		}
		slog.Info("storage: using redis driver", "addr", opts.Addr)
		return New(NewRedisDriver(client, "giselle:")), client.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
}
