package security

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter throttles join attempts per citizen with a fixed window in
// Redis, so the limit holds across every instance of the service.
type RateLimiter struct {
	redis  *redis.Client
	limit  int
	window time.Duration
}

func NewRateLimiter(redisClient *redis.Client, limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = 5
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{redis: redisClient, limit: limit, window: window}
}

// Allow reports whether the key may perform another operation inside the
// current window. The INCR+EXPIRE pair runs pipelined so the window always
// gets a TTL even under concurrent first hits.
func (r *RateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	bucket := fmt.Sprintf("ratelimit:%s:%d", key, time.Now().Unix()/int64(r.window.Seconds()))

	pipe := r.redis.TxPipeline()
	count := pipe.Incr(ctx, bucket)
	pipe.Expire(ctx, bucket, r.window)
	if _, err := pipe.Exec(ctx); err != nil {
		// Fail open: a Redis hiccup should not lock citizens out.
		return true, err
	}

	return count.Val() <= int64(r.limit), nil
}
