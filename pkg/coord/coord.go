// Package coord is the coordination store (C1): priority queues, per-engine
// worker queues, per-domain rate-limit and breaker state, LLM and external
// budgets, identity bindings, and UI rate-limit counters — everything that
// needs atomic, low-latency, multi-worker-visible state lives here against
// Redis rather than Postgres.
package coord

import (
	_ "embed"

	"github.com/redis/go-redis/v9"
)

//go:embed lua/token_bucket.lua
var tokenBucketScript string

//go:embed lua/breaker_record_failure.lua
var breakerRecordFailureScript string

//go:embed lua/budget_check.lua
var budgetCheckScript string

// Store wraps a Redis client with the scripted operations the guard,
// identity manager, and dispatcher need.
type Store struct {
	rdb                *redis.Client
	tokenBucket        *redis.Script
	breakerRecordFail  *redis.Script
	budgetCheck        *redis.Script
}

// New wires a coordination Store against an existing Redis client.
func New(rdb *redis.Client) *Store {
	return &Store{
		rdb:               rdb,
		tokenBucket:       redis.NewScript(tokenBucketScript),
		breakerRecordFail: redis.NewScript(breakerRecordFailureScript),
		budgetCheck:       redis.NewScript(budgetCheckScript),
	}
}
