package security

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"
)

// RateLimiter throttles lock requests per customer with a fixed window
// counter in Redis. Anonymous callers fall back to their IP.
type RateLimiter struct {
	redis     *redis.Client
	limit     int
	window    time.Duration
	keyPrefix string
}

func NewRateLimiter(redisClient *redis.Client, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		redis:     redisClient,
		limit:     limit,
		window:    window,
		keyPrefix: "ratelimit:lock",
	}
}

// LimitLockRequests is route middleware for the seat locking endpoints.
func (r *RateLimiter) LimitLockRequests(e *core.RequestEvent) error {
	caller := e.RealIP()
	if e.Auth != nil {
		caller = e.Auth.Id
	}

	key := fmt.Sprintf("%s:%s", r.keyPrefix, caller)
	ctx := e.Request.Context()

	count, err := r.redis.Incr(ctx, key).Result()
	if err != nil {
		// Never let a throttle outage take down locking.
		slog.Warn("rate limiter unavailable, allowing request", "error", err)
		return e.Next()
	}
	if count == 1 {
		r.redis.Expire(ctx, key, r.window)
	}

	if count > int64(r.limit) {
		return apis.NewTooManyRequestsError("Too many lock requests, slow down", nil)
	}

	return e.Next()
}
