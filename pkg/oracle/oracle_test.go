package oracle

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/proteus/scrapecore/internal/store"
)

func strptr(s string) *string { return &s }

func TestTruncate_NoOpUnderLimit(t *testing.T) {
	require.Equal(t, "<html></html>", truncate("<html></html>", 1000))
}

func TestTruncate_KeepsHeadAndTail(t *testing.T) {
	html := strings.Repeat("a", 50) + strings.Repeat("b", 50)
	out := truncate(html, 40)
	require.Contains(t, out, "truncated")
	require.True(t, strings.HasPrefix(out, "aaaa"))
	require.True(t, strings.HasSuffix(out, "bbbb"))
	require.Less(t, len(out), len(html))
}

func TestAllowedKeys_FlatAndGroup(t *testing.T) {
	group := "reviews"
	selectors := []store.Selector{
		{Field: "title"},
		{GroupName: &group, Field: "author"},
	}
	keys := allowedKeys(selectors)
	require.True(t, keys["title"])
	require.True(t, keys["reviews.author"])
	require.False(t, keys["reviews.stars"])
}

func TestFilterSelectors_DropsUnallowedAndEmpty(t *testing.T) {
	selectors := []store.Selector{
		{Field: "title", DataType: store.DataTypeString, Required: true},
	}
	allowed := allowedKeys(selectors)
	hints := filterSelectors(map[string]string{
		"title":   "h2.title",
		"unknown": "div.x",
		"price":   "",
	}, allowed, selectors)
	require.Len(t, hints, 1)
	require.Equal(t, "title", hints[0].Key)
	require.Equal(t, "h2.title", hints[0].Selector)
}

func TestSchemaFields_IncludesGroupName(t *testing.T) {
	group := "reviews"
	selectors := []store.Selector{
		{Field: "title", DataType: store.DataTypeString, Required: true},
		{GroupName: &group, Field: "author", DataType: store.DataTypeString},
	}
	fields := schemaFields(selectors)
	require.Len(t, fields, 2)
	require.Equal(t, "title", fields[0].Field)
	require.Empty(t, fields[0].Group)
	require.Equal(t, "reviews", fields[1].Group)
}

func TestFindMatchingSelector_MatchesByID(t *testing.T) {
	html := `<html><body><h1 id="headline">Big News</h1></body></html>`
	sel := findMatchingSelector(html, "Big News")
	require.Equal(t, "#headline", sel)
}

func TestFindMatchingSelector_MatchesByClass(t *testing.T) {
	html := `<html><body><span class="price tag">$9.00</span></body></html>`
	sel := findMatchingSelector(html, "$9.00")
	require.Equal(t, "span.price", sel)
}

func TestFindMatchingSelector_NoMatchReturnsEmpty(t *testing.T) {
	html := `<html><body><span>nope</span></body></html>`
	sel := findMatchingSelector(html, "missing value")
	require.Empty(t, sel)
}

func TestInferSelectors_SkipsGroups(t *testing.T) {
	group := "reviews"
	selectors := []store.Selector{
		{GroupName: &group, Field: "author", DataType: store.DataTypeString},
	}
	html := `<html><body><span id="a">Alice</span></body></html>`
	hints := inferSelectors(html, "", map[string]any{"reviews": []map[string]any{}}, selectors)
	require.Empty(t, hints)
}
