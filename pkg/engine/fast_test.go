package engine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/proteus/scrapecore/pkg/fetch"
)

func TestFetchOutputFromResponse(t *testing.T) {
	resp := &fetch.Response{
		URL: "https://example.com", Status: 200, HTML: "<html></html>",
		Headers: map[string]string{"Content-Type": "text/html"}, ContentType: "text/html",
		Content: []byte("<html></html>"), Truncated: true,
	}
	out := fetchOutputFromResponse(resp)
	require.Equal(t, resp.URL, out.URL)
	require.Equal(t, resp.Status, out.Status)
	require.Equal(t, resp.HTML, out.HTML)
	require.Equal(t, resp.Headers, out.Headers)
	require.Equal(t, resp.Content, out.Content)
	require.Equal(t, resp.ContentType, out.ContentType)
	require.True(t, out.Truncated)
}

func TestFastTier_Name(t *testing.T) {
	tier := &FastTier{}
	require.Equal(t, "fast", tier.Name())
	require.True(t, tier.ConsumesIdentity())
}
