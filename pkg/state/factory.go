package state

import (
	"context"
	"fmt"

	"tgbridge/pkg/logger"
)

// NewKV creates a KV store for the configured backend.
func NewKV(ctx context.Context, log *logger.Logger, cfg *Config) (KV, error) {
	switch cfg.Backend {
	case BackendFile, "":
		return NewFileStore(log, cfg.FilePath)

	case BackendRedis:
		if cfg.RedisAddr == "" {
			return nil, fmt.Errorf("redis address is required")
		}
		return NewRedisStore(ctx, log, &RedisStoreConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.RedisPrefix,
		})

	case BackendMemory:
		return NewMemoryStore(), nil

	default:
		return nil, fmt.Errorf("unknown backend type: %s", cfg.Backend)
	}
}
