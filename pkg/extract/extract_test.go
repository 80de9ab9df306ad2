package extract

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/proteus/scrapecore/internal/store"
)

func strptr(s string) *string { return &s }

const productHTML = `
<html><body>
<h1 class="title">Widget 3000</h1>
<span class="price">$1,299.50</span>
<a class="buy" href="/buy/widget-3000">Buy now</a>
<ul class="reviews">
  <li class="review"><span class="author">Alice</span><span class="stars">5</span></li>
  <li class="review"><span class="author">Bob</span><span class="stars">4</span></li>
</ul>
</body></html>`

func TestExtract_FlatCSSFields(t *testing.T) {
	selectors := []store.Selector{
		{Field: "title", Selector: "h1.title", DataType: store.DataTypeString, Required: true},
		{Field: "price", Selector: "span.price", DataType: store.DataTypeFloat, Required: true},
		{Field: "buy_url", Selector: "a.buy", Attribute: strptr("href"), DataType: store.DataTypeString},
	}

	result, err := Extract(productHTML, selectors, "https://shop.example.com/p/1")
	require.NoError(t, err)
	require.Empty(t, result.Errors)
	require.Equal(t, "Widget 3000", result.Data["title"])
	require.Equal(t, 1299.50, result.Data["price"])
	require.Equal(t, "https://shop.example.com/buy/widget-3000", result.Data["buy_url"])
}

func TestExtract_MissingRequiredField(t *testing.T) {
	selectors := []store.Selector{
		{Field: "sku", Selector: "span.sku", DataType: store.DataTypeString, Required: true},
	}
	result, err := Extract(productHTML, selectors, "")
	require.NoError(t, err)
	require.Contains(t, result.Errors, "missing:sku")
}

func TestExtract_TypeErrorOnBadCoercion(t *testing.T) {
	selectors := []store.Selector{
		{Field: "title", Selector: "h1.title", DataType: store.DataTypeInt, Required: true},
	}
	result, err := Extract(productHTML, selectors, "")
	require.NoError(t, err)
	require.Contains(t, result.Errors, "type:title")
}

func TestExtract_GroupCSS(t *testing.T) {
	group := "reviews"
	selectors := []store.Selector{
		{GroupName: &group, Field: "author", Selector: "span.author", ItemSelector: strptr("ul.reviews li.review"), DataType: store.DataTypeString, Required: true},
		{GroupName: &group, Field: "stars", Selector: "span.stars", ItemSelector: strptr("ul.reviews li.review"), DataType: store.DataTypeInt, Required: true},
	}
	result, err := Extract(productHTML, selectors, "")
	require.NoError(t, err)
	require.Empty(t, result.Errors)

	items, ok := result.Data["reviews"].([]map[string]any)
	require.True(t, ok)
	require.Len(t, items, 2)
	require.Equal(t, "Alice", items[0]["author"])
	require.Equal(t, int64(5), items[0]["stars"])
	require.Equal(t, "Bob", items[1]["author"])
	require.Equal(t, int64(4), items[1]["stars"])
}

func TestExtract_GroupDisagreeingItemSelectorSkipped(t *testing.T) {
	group := "reviews"
	selectors := []store.Selector{
		{GroupName: &group, Field: "author", Selector: "span.author", ItemSelector: strptr("li.review"), DataType: store.DataTypeString, Required: true},
		{GroupName: &group, Field: "stars", Selector: "span.stars", ItemSelector: strptr("li.other"), DataType: store.DataTypeInt, Required: true},
	}
	result, err := Extract(productHTML, selectors, "")
	require.NoError(t, err)
	require.Contains(t, result.Errors, "missing_group_selector:reviews")
}

func TestExtract_XPathDialect(t *testing.T) {
	selectors := []store.Selector{
		{Field: "title", Selector: "xpath://h1[@class='title']", DataType: store.DataTypeString, Required: true},
	}
	result, err := Extract(productHTML, selectors, "")
	require.NoError(t, err)
	require.Equal(t, "Widget 3000", result.Data["title"])
}

func TestExtract_PreservesJavascriptScheme(t *testing.T) {
	html := `<a class="buy" href="javascript:void(0)">Buy</a>`
	selectors := []store.Selector{
		{Field: "buy_url", Selector: "a.buy", Attribute: strptr("href"), DataType: store.DataTypeString},
	}
	result, err := Extract(html, selectors, "https://shop.example.com/")
	require.NoError(t, err)
	require.Equal(t, "javascript:void(0)", result.Data["buy_url"])
}

func TestNormalizeData_CoercesOracleStrings(t *testing.T) {
	selectors := []store.Selector{
		{Field: "price", DataType: store.DataTypeFloat, Required: true},
	}
	out, errs := NormalizeData(map[string]any{"price": "1,299.50"}, selectors)
	require.Empty(t, errs)
	require.Equal(t, 1299.50, out["price"])
}

func TestNormalizeData_MissingRequired(t *testing.T) {
	selectors := []store.Selector{
		{Field: "price", DataType: store.DataTypeFloat, Required: true},
	}
	_, errs := NormalizeData(map[string]any{}, selectors)
	require.Contains(t, errs, "missing:price")
}
