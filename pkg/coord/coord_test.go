package coord

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return New(rdb)
}

func TestPriorityQueue_StrictOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.PushPriority(ctx, PriorityLow, "low-job"))
	require.NoError(t, s.PushPriority(ctx, PriorityStandard, "std-job"))
	require.NoError(t, s.PushPriority(ctx, PriorityHigh, "high-job"))

	id, err := s.PopPriority(ctx)
	require.NoError(t, err)
	require.Equal(t, "high-job", id)

	id, err = s.PopPriority(ctx)
	require.NoError(t, err)
	require.Equal(t, "std-job", id)

	id, err = s.PopPriority(ctx)
	require.NoError(t, err)
	require.Equal(t, "low-job", id)

	id, err = s.PopPriority(ctx)
	require.NoError(t, err)
	require.Empty(t, id)
}

func TestCheckRateLimit_ConsumesTokenAndDenies(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	res, err := s.CheckRateLimit(ctx, "example.com", 1, 1)
	require.NoError(t, err)
	require.True(t, res.Allowed)

	res, err = s.CheckRateLimit(ctx, "example.com", 1, 1)
	require.NoError(t, err)
	require.False(t, res.Allowed)
	require.Greater(t, res.RetryAfterMS, int64(0))
}

func TestRecordBreakerFailure_OpensAtThreshold(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var opened bool
	for i := 0; i < 3; i++ {
		_, o, err := s.RecordBreakerFailure(ctx, "bad.example", 60, 3, 120)
		require.NoError(t, err)
		opened = o
	}
	require.True(t, opened)

	isOpen, err := s.IsBreakerOpen(ctx, "bad.example")
	require.NoError(t, err)
	require.True(t, isOpen)
}

func TestCheckLLMJobBudget_ExceedsAfterMax(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	exceeded, err := s.CheckLLMJobBudget(ctx, "job-1", 3600, 2)
	require.NoError(t, err)
	require.False(t, exceeded)

	exceeded, err = s.CheckLLMJobBudget(ctx, "job-1", 3600, 2)
	require.NoError(t, err)
	require.False(t, exceeded)

	exceeded, err = s.CheckLLMJobBudget(ctx, "job-1", 3600, 2)
	require.NoError(t, err)
	require.True(t, exceeded)
}

func TestBinding_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	b, err := s.GetBinding(ctx, "tenant-a", "example.com")
	require.NoError(t, err)
	require.Nil(t, b)

	err = s.SetBinding(ctx, "tenant-a", "example.com", Binding{IdentityID: "id-1", ProxyURL: "http://proxy"}, time.Minute)
	require.NoError(t, err)

	b, err = s.GetBinding(ctx, "tenant-a", "example.com")
	require.NoError(t, err)
	require.NotNil(t, b)
	require.Equal(t, "id-1", b.IdentityID)

	require.NoError(t, s.ClearBinding(ctx, "tenant-a", "example.com"))

	b, err = s.GetBinding(ctx, "tenant-a", "example.com")
	require.NoError(t, err)
	require.Nil(t, b)
}

func TestCheckUIRateLimit_DeniesOverMax(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	allowed, err := s.CheckUIRateLimit(ctx, "submit", "tenant-a", 60, 1)
	require.NoError(t, err)
	require.True(t, allowed)

	allowed, err = s.CheckUIRateLimit(ctx, "submit", "tenant-a", 60, 1)
	require.NoError(t, err)
	require.False(t, allowed)
}
