package identity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/proteus/scrapecore/internal/store"
)

func TestDecayedFailures_NoFailureYet(t *testing.T) {
	id := store.Identity{FailureCount: 3}
	require.Equal(t, float64(3), decayedFailures(id, time.Now(), 0.5))
}

func TestDecayedFailures_DecaysOverTime(t *testing.T) {
	failedAt := time.Now().Add(-4 * time.Hour)
	id := store.Identity{FailureCount: 3, LastFailedAt: &failedAt}
	got := decayedFailures(id, time.Now(), 0.5)
	require.InDelta(t, 1.0, got, 0.05)
}

func TestDecayedFailures_FloorsAtZero(t *testing.T) {
	failedAt := time.Now().Add(-100 * time.Hour)
	id := store.Identity{FailureCount: 1, LastFailedAt: &failedAt}
	require.Equal(t, float64(0), decayedFailures(id, time.Now(), 0.5))
}

func TestIsBanIndicating(t *testing.T) {
	require.True(t, IsBanIndicating("http_403"))
	require.True(t, IsBanIndicating("http_429"))
	require.True(t, IsBanIndicating("captcha_detected"))
	require.True(t, IsBanIndicating("challenge_script"))
	require.True(t, IsBanIndicating("blocked_title"))
	require.True(t, IsBanIndicating("vision_ocr_block"))
	require.False(t, IsBanIndicating("dns_failed"))
	require.False(t, IsBanIndicating("timeout"))
}

func TestMergeCookies_FreshWinsOnConflict(t *testing.T) {
	existing := []Cookie{{Name: "sid", Domain: "example.com", Path: "/", Value: "old"}}
	fresh := []Cookie{{Name: "sid", Domain: "example.com", Path: "/", Value: "new"}, {Name: "csrf", Domain: "example.com", Path: "/", Value: "tok"}}

	merged := mergeCookies(existing, fresh)
	require.Len(t, merged, 2)

	byName := map[string]Cookie{}
	for _, c := range merged {
		byName[c.Name] = c
	}
	require.Equal(t, "new", byName["sid"].Value)
	require.Equal(t, "tok", byName["csrf"].Value)
}

func TestHostOf(t *testing.T) {
	require.Equal(t, "example.com", hostOf("https://example.com/path"))
	require.Equal(t, "", hostOf("http://%zz"))
}
