package dispatcher

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/proteus/scrapecore/pkg/engine"
)

func TestNormalizeEngine_KeepsAllowedRequest(t *testing.T) {
	policy := engine.PolicyConfig{StealthAllowDomains: []string{"example.com"}}
	got := normalizeEngine("stealth", "https://example.com/page", policy)
	require.Equal(t, "stealth", got)
}

func TestNormalizeEngine_DowngradesDisallowedStealthToFast(t *testing.T) {
	policy := engine.PolicyConfig{StealthAllowDomains: []string{"other.com"}}
	got := normalizeEngine("stealth", "https://example.com/page", policy)
	require.Equal(t, "fast", got)
}

func TestNormalizeEngine_DowngradesDisallowedExternalToFast(t *testing.T) {
	policy := engine.PolicyConfig{ExternalAllowDomains: []string{"example.com"}, ExternalAPIKey: ""}
	got := normalizeEngine("external", "https://example.com/page", policy)
	require.Equal(t, "fast", got)
}

func TestNormalizeEngine_NoRequestDefaultsToFast(t *testing.T) {
	policy := engine.PolicyConfig{}
	got := normalizeEngine("", "https://example.com/page", policy)
	require.Equal(t, "fast", got)
}

func TestNormalizeEngine_BrowserAlwaysAllowed(t *testing.T) {
	policy := engine.PolicyConfig{}
	got := normalizeEngine("browser", "https://example.com/page", policy)
	require.Equal(t, "browser", got)
}

func TestNormalizeEngine_KeepsAllowedExternal(t *testing.T) {
	policy := engine.PolicyConfig{ExternalAllowDomains: []string{"example.com"}, ExternalAPIKey: "key"}
	got := normalizeEngine("external", "https://example.com/page", policy)
	require.Equal(t, "external", got)
}
