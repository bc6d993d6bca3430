package redis

import (
	"context"
	"time"
)

// counter is the subset of Cache the limiter needs.
type counter interface {
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// RateLimiter is a fixed-window counter shared by every API instance.
type RateLimiter struct {
	cache  counter
	limit  int
	window time.Duration
	now    func() time.Time
}

// NewRateLimiter allows limit requests per window per identifier.
func NewRateLimiter(cache counter, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{cache: cache, limit: limit, window: window, now: time.Now}
}

// Allow counts one request for identifier and reports whether it fits.
func (l *RateLimiter) Allow(ctx context.Context, identifier string) (bool, error) {
	bucket := l.now().UnixNano() / int64(l.window)
	n, err := l.cache.IncrWithTTL(ctx, RateLimitKey(identifier, bucket), l.window)
	if err != nil {
		return false, err
	}
	return n <= int64(l.limit), nil
}
