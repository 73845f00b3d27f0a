package redis

import (
	"context"
	"fmt"
	"time"
)

// RateLimiter throttles prompt submissions with a fixed-window counter
// per client key. The first increment in a window sets the expiry, so
// stale counters clean themselves up.
type RateLimiter struct {
	client RedisClient
	limit  int
	window time.Duration
}

func NewRateLimiter(client RedisClient, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{client: client, limit: limit, window: window}
}

// Allow reports whether the client identified by key may submit another
// prompt inside the current window.
func (r *RateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	count, err := r.client.Incr(ctx, promptKey(key))
	if err != nil {
		return false, err
	}
	if count == 1 {
		if err := r.client.Expire(ctx, promptKey(key), r.window); err != nil {
			return false, err
		}
	}
	return count <= int64(r.limit), nil
}

func promptKey(client string) string {
	return fmt.Sprintf("rate:prompt:%s", client)
}
