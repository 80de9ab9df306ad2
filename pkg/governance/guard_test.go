package governance

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/proteus/scrapecore/pkg/coord"
)

func newTestGuard(t *testing.T, cfg Config) *Guard {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return New(coord.New(rdb), cfg)
}

func TestGuard_RateLimitsThenDenies(t *testing.T) {
	g := newTestGuard(t, Config{RateLimitCapacity: 1, RateLimitRefillPerSec: 1})
	ctx := context.Background()

	require.NoError(t, g.Check(ctx, "example.com", 0))

	err := g.Check(ctx, "example.com", 0)
	var denyErr *DenyError
	require.ErrorAs(t, err, &denyErr)
	require.Equal(t, ReasonRateLimited, denyErr.Reason)
}

func TestGuard_OpensBreakerAfterThreshold(t *testing.T) {
	g := newTestGuard(t, Config{
		RateLimitCapacity:     100,
		RateLimitRefillPerSec: 100,
		BreakerThreshold:      2,
		BreakerWindowSec:      60,
		BreakerCooldownSec:    120,
	})
	ctx := context.Background()

	opened, err := g.RecordResponse(ctx, "bad.example", 403)
	require.NoError(t, err)
	require.False(t, opened)

	opened, err = g.RecordResponse(ctx, "bad.example", 403)
	require.NoError(t, err)
	require.True(t, opened)

	err = g.Check(ctx, "bad.example", 0)
	var denyErr *DenyError
	require.ErrorAs(t, err, &denyErr)
	require.Equal(t, ReasonCircuitOpen, denyErr.Reason)
}

func TestGuard_IgnoresNonBanStatuses(t *testing.T) {
	g := newTestGuard(t, Config{RateLimitCapacity: 100, RateLimitRefillPerSec: 100, BreakerThreshold: 1, BreakerWindowSec: 60, BreakerCooldownSec: 120})
	ctx := context.Background()

	opened, err := g.RecordResponse(ctx, "example.com", 500)
	require.NoError(t, err)
	require.False(t, opened)

	require.NoError(t, g.Check(ctx, "example.com", 0))
}

func TestGuard_CheckLLMBudget_DeniesAtTenantMax(t *testing.T) {
	g := newTestGuard(t, Config{RateLimitCapacity: 100, RateLimitRefillPerSec: 100})
	ctx := context.Background()

	cfg := LLMBudgetConfig{JobMax: 100, JobWindowSec: 3600, TenantMax: 1, TenantWindowSec: 3600}

	require.NoError(t, g.CheckLLMBudget(ctx, "job-1", "tenant-a", cfg))

	err := g.CheckLLMBudget(ctx, "job-2", "tenant-a", cfg)
	var denyErr *DenyError
	require.ErrorAs(t, err, &denyErr)
	require.Equal(t, ReasonLLMBudgetExceeded, denyErr.Reason)
}
