package rateLimit

import (
	"context"
	"time"

	"github.com/abhayrajpersonal/Turfex-sub001/internal/observability"
)

type Counter interface {
	IncrWindow(ctx context.Context, key string, period time.Duration) (int64, error)
}

type RateLimiter struct {
	counter Counter
	logger  observability.Logger
}

func NewRateLimiter(counter Counter, logger observability.Logger) *RateLimiter {
	return &RateLimiter{counter: counter, logger: logger.WithField("component", "ratelimit")}
}

// Allow reports whether key has made at most rate calls in the current
// period. When the counter cannot be reached the request is let through.
func (rl *RateLimiter) Allow(ctx context.Context, key string, rate int, period time.Duration) bool {
	if rl == nil || rl.counter == nil || rate <= 0 {
		return true
	}
	n, err := rl.counter.IncrWindow(ctx, "rl:"+key, period)
	if err != nil {
		rl.logger.WithError(err).WithField("key", key).Warn("rate limiter unavailable, allowing request")
		return true
	}
	if n > int64(rate) {
		observability.RateLimitExceeded.Inc()
		return false
	}
	return true
}
