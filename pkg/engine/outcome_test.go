package engine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsEscalatable(t *testing.T) {
	require.True(t, IsEscalatable("http_403"))
	require.True(t, IsEscalatable("http_429"))
	require.True(t, IsEscalatable("captcha_detected"))
	require.True(t, IsEscalatable("challenge_script"))
	require.True(t, IsEscalatable("empty_parse"))
	require.True(t, IsEscalatable("blocked_title"))
	require.True(t, IsEscalatable("vision_ocr_block"))
	require.False(t, IsEscalatable("dns_failed"))
	require.False(t, IsEscalatable("ssrf_blocked"))
	require.False(t, IsEscalatable(""))
}

func TestNextEngine_WalksForwardFromCurrent(t *testing.T) {
	got := NextEngine("fast", "https://example.com", 3, nil)
	require.Equal(t, "stealth", got)
}

func TestNextEngine_RespectsMaxDepth(t *testing.T) {
	got := NextEngine("stealth", "https://example.com", 1, nil)
	require.Equal(t, "", got)
}

func TestNextEngine_SkipsDisallowedTiers(t *testing.T) {
	allowed := func(tier, rawURL string) bool { return tier != "browser" }
	got := NextEngine("stealth", "https://example.com", 3, allowed)
	require.Equal(t, "external", got)
}

func TestNextEngine_NoneLeft(t *testing.T) {
	got := NextEngine("external", "https://example.com", 3, nil)
	require.Equal(t, "", got)
}

func TestNextEngine_UnknownCurrentStartsFromFirstTier(t *testing.T) {
	got := NextEngine("unknown", "https://example.com", 3, nil)
	require.Equal(t, "fast", got)
}

func TestDefaultPlugins(t *testing.T) {
	require.Equal(t, []string{"payload_transform"}, defaultPlugins("external"))
	require.Equal(t, []string{"custom_headers"}, defaultPlugins("fast"))
	require.Equal(t, []string{"custom_headers"}, defaultPlugins("stealth"))
	require.Equal(t, []string{"custom_headers"}, defaultPlugins("browser"))
}
