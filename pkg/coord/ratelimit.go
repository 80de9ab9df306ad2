package coord

import (
	"context"
	"fmt"
	"math"
	"time"
)

// RateLimitResult is the outcome of a token-bucket check.
type RateLimitResult struct {
	Allowed      bool
	RetryAfterMS int64
}

// CheckRateLimit performs the atomic token-bucket check-and-consume for a
// domain. capacity is C, refillPerSec is R; the bucket's TTL is
// max(60, 2*C/R) seconds so idle domains don't leak state forever.
func (s *Store) CheckRateLimit(ctx context.Context, domain string, capacity, refillPerSec float64) (RateLimitResult, error) {
	ttlSec := int64(math.Max(60, 2*capacity/refillPerSec))
	nowMS := time.Now().UnixMilli()

	key := fmt.Sprintf("rate:%s", domain)
	res, err := s.tokenBucket.Run(ctx, s.rdb, []string{key}, capacity, refillPerSec, nowMS, ttlSec).Result()
	if err != nil {
		return RateLimitResult{}, fmt.Errorf("running token bucket script: %w", err)
	}

	vals, ok := res.([]interface{})
	if !ok || len(vals) != 2 {
		return RateLimitResult{}, fmt.Errorf("unexpected token bucket script result: %v", res)
	}

	allowed, _ := vals[0].(int64)
	retryAfter, _ := vals[1].(int64)

	return RateLimitResult{Allowed: allowed == 1, RetryAfterMS: retryAfter}, nil
}

// WaitRateLimit blocks up to maxWaitMS for the token bucket to allow the
// request, sleeping min(retry_after_ms, remaining) between each check.
// maxWaitMS=0 performs a single non-blocking check.
func (s *Store) WaitRateLimit(ctx context.Context, domain string, capacity, refillPerSec float64, maxWaitMS int64) (RateLimitResult, error) {
	deadline := time.Now().Add(time.Duration(maxWaitMS) * time.Millisecond)

	for {
		res, err := s.CheckRateLimit(ctx, domain, capacity, refillPerSec)
		if err != nil {
			return RateLimitResult{}, err
		}
		if res.Allowed {
			return res, nil
		}
		if maxWaitMS <= 0 {
			return res, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return res, nil
		}

		sleep := time.Duration(res.RetryAfterMS) * time.Millisecond
		if sleep > remaining {
			sleep = remaining
		}

		select {
		case <-ctx.Done():
			return RateLimitResult{}, ctx.Err()
		case <-time.After(sleep):
		}
	}
}
