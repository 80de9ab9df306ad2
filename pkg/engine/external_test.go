package engine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHostSuffixMatch_Exact(t *testing.T) {
	require.True(t, hostSuffixMatch("example.com", []string{"example.com"}))
}

func TestHostSuffixMatch_CaseInsensitive(t *testing.T) {
	require.True(t, hostSuffixMatch("Example.COM", []string{"example.com"}))
}

func TestHostSuffixMatch_Subdomain(t *testing.T) {
	require.True(t, hostSuffixMatch("api.example.com", []string{"example.com"}))
}

func TestHostSuffixMatch_NotOnList(t *testing.T) {
	require.False(t, hostSuffixMatch("other.com", []string{"example.com"}))
}

func TestHostSuffixMatch_EmptyListDeniesEverything(t *testing.T) {
	require.False(t, hostSuffixMatch("example.com", nil))
}

func TestHostSuffixMatch_IgnoresBlankEntries(t *testing.T) {
	require.True(t, hostSuffixMatch("example.com", []string{"", "  ", "example.com"}))
}

func TestExternalError_Error(t *testing.T) {
	err := &ExternalError{Code: "external_not_allowed"}
	require.Equal(t, "external: external_not_allowed", err.Error())
}
