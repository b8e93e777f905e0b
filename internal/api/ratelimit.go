package api

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter is a fixed-window counter per client kept in Redis, so every
// replica of the service shares the same budget.
type RateLimiter struct {
	client redis.Cmdable
	limit  int64
	window time.Duration
	prefix string
}

// NewRateLimiter allows limit requests per window. Windows shorter than a second are rounded up.
func NewRateLimiter(client redis.Cmdable, limit int, window time.Duration) *RateLimiter {
	if window < time.Second {
		window = time.Second
	}
	return &RateLimiter{
		client: client,
		limit:  int64(limit),
		window: window,
		prefix: "ratelimit:valuations:",
	}
}

// Allow counts one request for key. It returns the remaining budget of the
// current window.
func (l *RateLimiter) Allow(ctx context.Context, key string) (bool, int64, error) {
	bucket := time.Now().Unix() / int64(l.window.Seconds())
	redisKey := fmt.Sprintf("%s%s:%d", l.prefix, key, bucket)

	count, err := l.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, 0, fmt.Errorf("rate limit incr: %w", err)
	}
	if count == 1 {
		if err := l.client.Expire(ctx, redisKey, l.window).Err(); err != nil {
			return false, 0, fmt.Errorf("rate limit expire: %w", err)
		}
	}

	remaining := l.limit - count
	if remaining < 0 {
		remaining = 0
	}
	return count <= l.limit, remaining, nil
}
