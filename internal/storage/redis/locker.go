package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/makkenzo/device-license-api/internal/ierr"
	"github.com/makkenzo/device-license-api/internal/lock"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const lockKeyPrefix = "license:lock:"

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker is a lock.Locker shared by every replica talking to the same Redis.
// A lock expires after ttl even if its holder dies.
type Locker struct {
	client       *redis.Client
	ttl          time.Duration
	wait         time.Duration
	pollInterval time.Duration
	logger       *zap.Logger
}

func NewLocker(client *redis.Client, ttl, wait time.Duration, logger *zap.Logger) *Locker {
	return &Locker{
		client:       client,
		ttl:          ttl,
		wait:         wait,
		pollInterval: 25 * time.Millisecond,
		logger:       logger.Named("RedisLocker"),
	}
}

var _ lock.Locker = (*Locker)(nil)

func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := lockKeyPrefix + key
	token := uuid.NewString()

	waitCtx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()

	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(waitCtx, redisKey, token, l.ttl).Result()
		if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
			l.logger.Error("Failed to acquire redis lock", zap.String("lock_key", redisKey), zap.Error(err))
			return nil, fmt.Errorf("%w: acquire lock: %v", ierr.ErrStorage, err)
		}
		if ok {
			return func() { l.release(redisKey, token) }, nil
		}

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			l.logger.Warn("Timed out waiting for redis lock", zap.String("lock_key", redisKey), zap.Duration("wait", l.wait))
			return nil, fmt.Errorf("%w: %s", ierr.ErrLockTimeout, key)
		case <-ticker.C:
		}
	}
}

func (l *Locker) release(redisKey, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := releaseScript.Run(ctx, l.client, []string{redisKey}, token).Err(); err != nil {
		l.logger.Error("Failed to release redis lock", zap.String("lock_key", redisKey), zap.Error(err))
	}
}
