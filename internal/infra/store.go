package infra

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/userbook/userbook/internal/config"
	"github.com/userbook/userbook/internal/docstore"
)

// OpenStore opens the document store selected by cfg.StoreBackend. The
// caller owns the returned store and must Close it.
func OpenStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (docstore.Store, error) {
	switch cfg.StoreBackend {
	case config.BackendFile, "":
		store, err := docstore.Open(cfg.StorePath)
		if err != nil {
			return nil, err
		}
		logger.Info("store opened", "backend", config.BackendFile, "path", cfg.StorePath)
		return store, nil

	case config.BackendRedis:
		client, err := NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		logger.Info("store opened", "backend", config.BackendRedis, "prefix", cfg.RedisPrefix)
		return docstore.NewRedisStore(client, cfg.RedisPrefix), nil

	case config.BackendPostgres:
		pool, err := NewPostgresPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		store, err := docstore.NewPostgresStore(ctx, pool, cfg.StoreTable)
		if err != nil {
			pool.Close()
			return nil, err
		}
		logger.Info("store opened", "backend", config.BackendPostgres, "table", cfg.StoreTable)
		return store, nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}
