// Package ratelimit provides a Redis-backed sliding window limiter for the
// public quote endpoints.
package ratelimit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingWindow trims expired entries, records the new hit, and returns the
// current count in one round trip.
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
redis.call('ZADD', key, now, ARGV[3])
redis.call('PEXPIRE', key, window)
return redis.call('ZCARD', key)
`)

// Decision is the outcome of a rate limit check.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Limiter counts hits per key within a sliding window.
type Limiter struct {
	Client redis.Scripter
	Prefix string
	Window time.Duration
	Max    int
}

// Allow records a hit for key and reports whether it stays within the limit.
// A nil client or non-positive limit disables rate limiting.
func (l Limiter) Allow(ctx context.Context, key string) (Decision, error) {
	if l.Client == nil || l.Max <= 0 || l.Window <= 0 {
		return Decision{Allowed: true, Limit: l.Max, Remaining: l.Max}, nil
	}

	now := time.Now()
	decision := Decision{Limit: l.Max, ResetAt: now.Add(l.Window)}
	count, err := slidingWindow.Run(ctx, l.Client,
		[]string{l.Prefix + key},
		now.UnixMilli(), l.Window.Milliseconds(), uuid.NewString(),
	).Int()
	if err != nil {
		return decision, err
	}

	decision.Allowed = count <= l.Max
	decision.Remaining = l.Max - count
	if decision.Remaining < 0 {
		decision.Remaining = 0
	}
	return decision, nil
}
