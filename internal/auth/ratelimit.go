package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter throttles calls to the submit/status/results surface using
// Redis INCR + EXPIRE, keyed "ui:rate:<scope>:<actor>" — scope distinguishes
// submit-job calls from results-polling calls so a burst of status checks
// never starves job submission.
type RateLimiter struct {
	redis      *redis.Client
	maxAttempt int
	window     time.Duration
}

// NewRateLimiter creates a rate limiter. maxAttempt is the max calls allowed
// per actor within the given window.
func NewRateLimiter(rdb *redis.Client, maxAttempt int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		redis:      rdb,
		maxAttempt: maxAttempt,
		window:     window,
	}
}

// RateLimitResult holds the result of a rate limit check.
type RateLimitResult struct {
	Allowed   bool
	Remaining int
	RetryAt   time.Time
}

// Check returns whether the given actor may make another call in scope.
func (rl *RateLimiter) Check(ctx context.Context, scope, actor string) (*RateLimitResult, error) {
	key := fmt.Sprintf("ui:rate:%s:%s", scope, actor)

	count, err := rl.redis.Get(ctx, key).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("checking rate limit: %w", err)
	}

	if count >= rl.maxAttempt {
		ttl, err := rl.redis.TTL(ctx, key).Result()
		if err != nil {
			return nil, fmt.Errorf("getting TTL: %w", err)
		}
		return &RateLimitResult{
			Allowed:   false,
			Remaining: 0,
			RetryAt:   time.Now().Add(ttl),
		}, nil
	}

	return &RateLimitResult{
		Allowed:   true,
		Remaining: rl.maxAttempt - count,
	}, nil
}

// Record counts one call against the actor's bucket in scope.
func (rl *RateLimiter) Record(ctx context.Context, scope, actor string) error {
	key := fmt.Sprintf("ui:rate:%s:%s", scope, actor)

	pipe := rl.redis.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, rl.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("recording rate limit: %w", err)
	}

	if incr.Val() == 1 {
		rl.redis.Expire(ctx, key, rl.window)
	}

	return nil
}

// Reset clears the rate limit counter for a given actor in scope.
func (rl *RateLimiter) Reset(ctx context.Context, scope, actor string) error {
	key := fmt.Sprintf("ui:rate:%s:%s", scope, actor)
	return rl.redis.Del(ctx, key).Err()
}
