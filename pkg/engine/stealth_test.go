package engine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDomainAllowed_ExactMatch(t *testing.T) {
	require.True(t, DomainAllowed("https://example.com/path", []string{"example.com"}))
}

func TestDomainAllowed_SubdomainSuffix(t *testing.T) {
	require.True(t, DomainAllowed("https://api.example.com/path", []string{"example.com"}))
}

func TestDomainAllowed_NotOnList(t *testing.T) {
	require.False(t, DomainAllowed("https://other.com/path", []string{"example.com"}))
}

func TestDomainAllowed_EmptyListAllowsNothing(t *testing.T) {
	require.False(t, DomainAllowed("https://example.com/path", nil))
}

func TestDomainAllowed_IgnoresBlankEntries(t *testing.T) {
	require.True(t, DomainAllowed("https://example.com/path", []string{"", "  ", "example.com"}))
}

func TestDomainAllowed_InvalidURL(t *testing.T) {
	require.False(t, DomainAllowed("http://%zz", []string{"example.com"}))
}

func TestDomainAllowed_SuffixDoesNotMatchUnrelatedDomain(t *testing.T) {
	require.False(t, DomainAllowed("https://notexample.com/path", []string{"example.com"}))
}
