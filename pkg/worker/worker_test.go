package worker

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/proteus/scrapecore/pkg/engine"
)

func TestDecideOutcome_Success(t *testing.T) {
	action, next := decideOutcome("fast", engine.Outcome{Data: map[string]any{"title": "x"}}, "https://example.com", 3, nil)
	require.Equal(t, actionSucceeded, action)
	require.Equal(t, "", next)
}

func TestDecideOutcome_NonEscalatableFailureFinalizesFailed(t *testing.T) {
	action, next := decideOutcome("fast", engine.Outcome{Reason: "ssrf_blocked", Escalate: false}, "https://example.com", 3, nil)
	require.Equal(t, actionFailed, action)
	require.Equal(t, "", next)
}

func TestDecideOutcome_EscalatableFailureAdvancesTier(t *testing.T) {
	action, next := decideOutcome("fast", engine.Outcome{Reason: "http_403", Escalate: true}, "https://example.com", 3, nil)
	require.Equal(t, actionEscalated, action)
	require.Equal(t, "stealth", next)
}

func TestDecideOutcome_EscalatableButNoFurtherTierFinalizesFailed(t *testing.T) {
	action, next := decideOutcome("external", engine.Outcome{Reason: "http_403", Escalate: true}, "https://example.com", 3, nil)
	require.Equal(t, actionFailed, action)
	require.Equal(t, "", next)
}

func TestDecideOutcome_RespectsMaxDepth(t *testing.T) {
	action, next := decideOutcome("fast", engine.Outcome{Reason: "http_403", Escalate: true}, "https://example.com", 0, nil)
	require.Equal(t, actionFailed, action)
	require.Equal(t, "", next)
}

func TestDecideOutcome_SkipsDisallowedTiers(t *testing.T) {
	allowed := func(tier, rawURL string) bool { return tier != "stealth" }
	action, next := decideOutcome("fast", engine.Outcome{Reason: "http_403", Escalate: true}, "https://example.com", 3, allowed)
	require.Equal(t, actionEscalated, action)
	require.Equal(t, "browser", next)
}
