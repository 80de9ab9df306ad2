package fetch

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/proteus/scrapecore/pkg/identity"
)

func TestFullJitterBackoff_WithinBounds(t *testing.T) {
	for attempt := 0; attempt < 5; attempt++ {
		d := fullJitterBackoff(attempt, 100, 1000)
		require.GreaterOrEqual(t, d, time.Duration(0))
		require.LessOrEqual(t, d, 1000*time.Millisecond)
	}
}

func TestFullJitterBackoff_CapsAtCeiling(t *testing.T) {
	d := fullJitterBackoff(10, 100, 500)
	require.LessOrEqual(t, d, 500*time.Millisecond)
}

func TestDomainMatches_ExactAndSuffix(t *testing.T) {
	require.True(t, domainMatches("example.com", "example.com"))
	require.True(t, domainMatches(".example.com", "shop.example.com"))
	require.False(t, domainMatches("example.com", "notexample.com"))
	require.True(t, domainMatches("", "anything.com"))
}

func TestFilterCookiesForHost(t *testing.T) {
	cookies := []identity.Cookie{
		{Name: "a", Domain: "example.com"},
		{Name: "b", Domain: "other.com"},
	}
	out := filterCookiesForHost(cookies, "example.com")
	require.Len(t, out, 1)
	require.Equal(t, "a", out[0].Name)
}

func TestReadLimited_TruncatesOverBudget(t *testing.T) {
	body, truncated, err := readLimited(strings.NewReader("abcdefghij"), 5)
	require.NoError(t, err)
	require.True(t, truncated)
	require.Equal(t, "abcde", string(body))
}

func TestReadLimited_NoTruncationUnderBudget(t *testing.T) {
	body, truncated, err := readLimited(strings.NewReader("abc"), 10)
	require.NoError(t, err)
	require.False(t, truncated)
	require.Equal(t, "abc", string(body))
}

func TestCubicBezier_EndpointsMatchControlPoints(t *testing.T) {
	require.InDelta(t, 0.0, cubicBezier(0, 10, 20, 0, 0), 0.0001)
	require.InDelta(t, 30.0, cubicBezier(0, 10, 20, 30, 1), 0.0001)
}

func TestRetryableStatus(t *testing.T) {
	require.True(t, retryableStatus[429])
	require.True(t, retryableStatus[503])
	require.False(t, retryableStatus[404])
	require.False(t, retryableStatus[200])
}
