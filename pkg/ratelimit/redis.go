package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter is a fixed-window counter backed by a shared Redis instance,
// for multi-instance deployments where per-process windows would multiply
// the effective limit.
type RedisLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
}

func NewRedisLimiter(client *redis.Client, limit int, windowDur time.Duration) *RedisLimiter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if windowDur <= 0 {
		windowDur = DefaultWindow
	}
	return &RedisLimiter{client: client, limit: limit, window: windowDur}
}

// Allow increments the window counter for key, creating it with the window
// TTL on first use. Redis failures fail open: a degraded limiter must not
// take down webhook ingestion.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	redisKey := "ratelimit:" + key

	count, err := l.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return true, 0, err
	}
	if count == 1 {
		l.client.Expire(ctx, redisKey, l.window)
	}

	if int(count) > l.limit {
		ttl, err := l.client.TTL(ctx, redisKey).Result()
		if err != nil || ttl < 0 {
			ttl = l.window
		}
		return false, ttl, nil
	}
	return true, 0, nil
}
