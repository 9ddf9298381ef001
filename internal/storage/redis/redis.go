package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/makkenzo/device-license-api/internal/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Enabled reports whether a Redis address is configured at all.
func Enabled(cfg *config.RedisConfig) bool {
	return cfg.Addr != ""
}

func NewRedisClient(ctx context.Context, cfg *config.RedisConfig, logger *zap.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", cfg.Addr, err)
	}

	logger.Info("Successfully connected to Redis", zap.String("addr", cfg.Addr), zap.Int("db", cfg.DB))
	return client, nil
}
