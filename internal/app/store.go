package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-pnl/internal/config"
	"github.com/rovshanmuradov/solana-pnl/internal/storage"
	"github.com/rovshanmuradov/solana-pnl/internal/storage/file"
	"github.com/rovshanmuradov/solana-pnl/internal/storage/memory"
	"github.com/rovshanmuradov/solana-pnl/internal/storage/postgres"
	"github.com/rovshanmuradov/solana-pnl/internal/storage/redis"
)

// OpenStore builds the wallet state store selected by cfg.Driver.
func OpenStore(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (storage.Store, error) {
	switch cfg.Driver {
	case "memory":
		return memory.New(), nil
	case "file", "":
		return file.New(cfg.Path, logger)
	case "postgres":
		return postgres.NewStore(cfg.PostgresURL, logger)
	case "redis":
		return redis.New(ctx, redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
