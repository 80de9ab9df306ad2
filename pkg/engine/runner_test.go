package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/proteus/scrapecore/internal/store"
	"github.com/proteus/scrapecore/pkg/governance"
	"github.com/proteus/scrapecore/pkg/identity"
	"github.com/proteus/scrapecore/pkg/oracle"
	"github.com/proteus/scrapecore/pkg/plugin"
	"github.com/proteus/scrapecore/pkg/ssrf"
)

func TestHostOf(t *testing.T) {
	require.Equal(t, "example.com", hostOf("https://example.com/path?x=1"))
	require.Equal(t, "", hostOf("http://%zz"))
}

func TestMergeHeaders_OverridesWinOnConflict(t *testing.T) {
	base := map[string]string{"Accept": "text/html", "X-Base": "1"}
	overrides := map[string]string{"Accept": "application/json"}
	got := mergeHeaders(base, overrides)
	require.Equal(t, "application/json", got["Accept"])
	require.Equal(t, "1", got["X-Base"])
}

func TestMergeHeaders_NilInputsYieldEmptyMap(t *testing.T) {
	got := mergeHeaders(nil, nil)
	require.NotNil(t, got)
	require.Len(t, got, 0)
}

func TestCookiesToPluginMaps_Empty(t *testing.T) {
	require.Nil(t, cookiesToPluginMaps(nil))
}

func TestCookiesToPluginMaps_RoundTrip(t *testing.T) {
	cookies := []identity.Cookie{
		{Name: "sid", Value: "abc", Domain: "example.com", Path: "/", Secure: true, HTTPOnly: true},
	}
	maps := cookiesToPluginMaps(cookies)
	require.Len(t, maps, 1)
	require.Equal(t, "sid", maps[0]["name"])
	require.Equal(t, true, maps[0]["secure"])

	back := cookiesFromPluginMaps(maps, nil)
	require.Len(t, back, 1)
	require.Equal(t, cookies[0].Name, back[0].Name)
	require.Equal(t, cookies[0].Value, back[0].Value)
	require.Equal(t, cookies[0].Domain, back[0].Domain)
	require.Equal(t, cookies[0].Secure, back[0].Secure)
	require.Equal(t, cookies[0].HTTPOnly, back[0].HTTPOnly)
}

func TestCookiesFromPluginMaps_NilMapsReturnsFallback(t *testing.T) {
	fallback := []identity.Cookie{{Name: "sid"}}
	require.Equal(t, fallback, cookiesFromPluginMaps(nil, fallback))
}

func TestSelectorSpecs_UsesGroupQualifiedKey(t *testing.T) {
	group := "item"
	selectors := []store.Selector{
		{Field: "title", Required: true},
		{Field: "price", GroupName: &group, Required: false},
	}
	specs := selectorSpecs(selectors)
	require.Len(t, specs, 2)
	require.Equal(t, "title", specs[0].Key)
	require.True(t, specs[0].Required)
	require.Equal(t, "item.price", specs[1].Key)
	require.False(t, specs[1].Required)
}

func TestFailOutcome_SetsEscalateFromReason(t *testing.T) {
	got := failOutcome("http_429")
	require.Equal(t, "http_429", got.Reason)
	require.True(t, got.Escalate)

	got = failOutcome("ssrf_blocked")
	require.False(t, got.Escalate)
}

func TestSsrfCode(t *testing.T) {
	require.Equal(t, "private_ip", ssrfCode(&ssrf.Error{Code: "private_ip"}))
	require.Equal(t, "ssrf_blocked", ssrfCode(errors.New("boom")))
}

func TestGovernanceCode(t *testing.T) {
	require.Equal(t, governance.ReasonCircuitOpen, governanceCode(&governance.DenyError{Reason: governance.ReasonCircuitOpen}))
	require.Equal(t, "circuit_open", governanceCode(errors.New("boom")))
}

func TestPluginCode(t *testing.T) {
	require.Equal(t, "plugin_on_request_failed:custom_headers", pluginCode(&plugin.HookError{Code: "plugin_on_request_failed:custom_headers"}))
	require.Equal(t, "plugin_load_failed", pluginCode(errors.New("boom")))
}

func TestOracleCode(t *testing.T) {
	require.Equal(t, "llm_timeout", oracleCode(&oracle.OracleError{Code: "llm_timeout"}))
	require.Equal(t, oracle.CodeUnavailable, oracleCode(errors.New("boom")))
}
