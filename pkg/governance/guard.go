// Package governance implements the per-domain guard every outbound fetch
// passes through before a network attempt is made: token-bucket rate
// limiting, a failure-triggered circuit breaker, and LLM call budgets.
package governance

import (
	"context"
	"fmt"

	"github.com/proteus/scrapecore/pkg/coord"
)

// Deny codes returned by Guard. A nil error from Guard means proceed.
const (
	ReasonCircuitOpen = "circuit_open"
	ReasonRateLimited = "rate_limited"
)

// DenyError signals that a domain is currently governed against — the
// caller should surface Reason as the job's opaque error code, never a raw
// exception.
type DenyError struct {
	Reason       string
	RetryAfterMS int64
}

func (e *DenyError) Error() string {
	return fmt.Sprintf("governance: %s", e.Reason)
}

// Config holds the tunables for the rate limiter and breaker, normally
// sourced from internal/config.
type Config struct {
	RateLimitCapacity     float64
	RateLimitRefillPerSec float64
	BreakerThreshold      int64
	BreakerWindowSec      int64
	BreakerCooldownSec    int64
}

// Guard wraps the coordination store with the governance policy.
type Guard struct {
	store *coord.Store
	cfg   Config
}

// New creates a Guard against the given coordination store.
func New(store *coord.Store, cfg Config) *Guard {
	return &Guard{store: store, cfg: cfg}
}

// Check is the guard entry point, called before every outbound network
// attempt. It returns a *DenyError when the domain is breaker-open or
// rate-limited, nil otherwise. maxWaitMS, if > 0, lets a rate-limit denial
// block briefly rather than fail immediately.
func (g *Guard) Check(ctx context.Context, domain string, maxWaitMS int64) error {
	open, err := g.store.IsBreakerOpen(ctx, domain)
	if err != nil {
		return fmt.Errorf("checking circuit breaker: %w", err)
	}
	if open {
		return &DenyError{Reason: ReasonCircuitOpen}
	}

	var res coord.RateLimitResult
	if maxWaitMS > 0 {
		res, err = g.store.WaitRateLimit(ctx, domain, g.cfg.RateLimitCapacity, g.cfg.RateLimitRefillPerSec, maxWaitMS)
	} else {
		res, err = g.store.CheckRateLimit(ctx, domain, g.cfg.RateLimitCapacity, g.cfg.RateLimitRefillPerSec)
	}
	if err != nil {
		return fmt.Errorf("checking rate limit: %w", err)
	}
	if !res.Allowed {
		return &DenyError{Reason: ReasonRateLimited, RetryAfterMS: res.RetryAfterMS}
	}

	return nil
}

// CheckBreakerOnly checks the circuit breaker without consuming a rate-limit
// token, for callers (the browser engine tier) that bypass the token bucket
// but must still honor an open circuit.
func (g *Guard) CheckBreakerOnly(ctx context.Context, domain string) error {
	open, err := g.store.IsBreakerOpen(ctx, domain)
	if err != nil {
		return fmt.Errorf("checking circuit breaker: %w", err)
	}
	if open {
		return &DenyError{Reason: ReasonCircuitOpen}
	}
	return nil
}

// banIndicatingStatus reports whether an HTTP status code should count
// against the domain's circuit breaker.
func banIndicatingStatus(status int) bool {
	return status == 403 || status == 429
}

// RecordResponse feeds a fetch outcome back into the breaker. Only 403/429
// responses count as failures; every other status is a no-op.
func (g *Guard) RecordResponse(ctx context.Context, domain string, status int) (opened bool, err error) {
	if !banIndicatingStatus(status) {
		return false, nil
	}

	_, opened, err = g.store.RecordBreakerFailure(ctx, domain, g.cfg.BreakerWindowSec, g.cfg.BreakerThreshold, g.cfg.BreakerCooldownSec)
	if err != nil {
		return false, fmt.Errorf("recording breaker failure: %w", err)
	}
	return opened, nil
}
