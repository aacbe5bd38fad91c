// Package ratelimit enforces each API key's max_queries_per_ip_per_hour
// budget with a Redis INCR+EXPIRE counter per (key, ip, hour-bucket).
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter checks and records query attempts against an hourly per-(key,ip)
// budget, the same INCR+EXPIRE shape used for per-IP login attempts
// elsewhere in this codebase, generalized from attempt-counting to a
// caller-supplied budget per check.
type Limiter struct {
	redis *redis.Client
}

// New constructs a Limiter against an already-connected Redis client.
func New(rdb *redis.Client) *Limiter {
	return &Limiter{redis: rdb}
}

// Result reports the outcome of a budget check.
type Result struct {
	Allowed   bool
	Remaining int64
	RetryAt   time.Time
}

// Allow increments the counter for (keyHash, ip) within the current
// UTC hour bucket and reports whether the request stays within maxPerHour.
// maxPerHour <= 0 disables the limit entirely (unlimited).
func (l *Limiter) Allow(ctx context.Context, keyHash, ip string, maxPerHour int64) (Result, error) {
	if maxPerHour <= 0 {
		return Result{Allowed: true, Remaining: -1}, nil
	}

	bucket := time.Now().UTC().Format("2006010215")
	key := fmt.Sprintf("flapjack:ratelimit:%s:%s:%s", keyHash, ip, bucket)

	pipe := l.redis.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		return Result{}, fmt.Errorf("checking rate limit: %w", err)
	}

	count := incr.Val()
	if count > maxPerHour {
		ttl, err := l.redis.TTL(ctx, key).Result()
		if err != nil {
			return Result{}, fmt.Errorf("getting rate limit TTL: %w", err)
		}
		return Result{Allowed: false, Remaining: 0, RetryAt: time.Now().Add(ttl)}, nil
	}

	return Result{Allowed: true, Remaining: maxPerHour - count}, nil
}
