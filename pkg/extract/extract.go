// Package extract turns an HTML document into a structured record per a
// schema's active selectors: flat fields and grouped (list) item schemas,
// in either CSS (goquery) or XPath (antchfx) dialect.
package extract

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/proteus/scrapecore/internal/store"
)

// Result is the extracted record plus any field-level error codes. Data
// holds flat field values by field name and grouped lists under the group
// name (each entry a map[string]any for that item).
type Result struct {
	Data   map[string]any
	Errors []string
}

// scope binds a field selector evaluation to either a goquery selection or
// an xpath context node, whichever dialect is in play.
type scope struct {
	css *goquery.Selection
	xp  *html.Node
}

// document lazily parses the HTML string into whichever tree the selector
// set actually needs.
type document struct {
	raw     string
	cssDoc  *goquery.Document
	xpDoc   *html.Node
	cssErr  error
	xpErr   error
	cssDone bool
	xpDone  bool
}

func (d *document) root(dialect string) (scope, error) {
	switch dialect {
	case dialectCSS:
		if !d.cssDone {
			d.cssDoc, d.cssErr = goquery.NewDocumentFromReader(strings.NewReader(d.raw))
			d.cssDone = true
		}
		if d.cssErr != nil {
			return scope{}, fmt.Errorf("parsing html for css: %w", d.cssErr)
		}
		return scope{css: d.cssDoc.Selection}, nil
	case dialectXPath:
		if !d.xpDone {
			d.xpDoc, d.xpErr = htmlquery.Parse(strings.NewReader(d.raw))
			d.xpDone = true
		}
		if d.xpErr != nil {
			return scope{}, fmt.Errorf("parsing html for xpath: %w", d.xpErr)
		}
		return scope{xp: d.xpDoc}, nil
	default:
		return scope{}, fmt.Errorf("unknown selector dialect %q", dialect)
	}
}

// Extract runs every active selector against htmlStr. baseURL, if set,
// resolves relative href/src-style attribute values.
func Extract(htmlStr string, selectors []store.Selector, baseURL string) (Result, error) {
	doc := &document{raw: htmlStr}
	result := Result{Data: map[string]any{}}

	flat, groups, groupOrder := partition(selectors)

	for _, sel := range flat {
		value, errCode, err := resolveFlat(doc, sel, baseURL)
		if err != nil {
			return result, err
		}
		if errCode != "" {
			result.Errors = append(result.Errors, errCode)
			continue
		}
		if value != nil {
			result.Data[sel.Field] = value
		}
	}

	for _, groupName := range groupOrder {
		members := groups[groupName]
		itemSelector, valid := agreeingItemSelector(members)
		if !valid {
			for _, m := range members {
				if m.Required {
					result.Errors = append(result.Errors, fmt.Sprintf("missing_group_selector:%s", groupName))
				}
			}
			continue
		}

		items, errCodes, err := resolveGroup(doc, groupName, itemSelector, members, baseURL)
		if err != nil {
			return result, err
		}
		result.Errors = append(result.Errors, errCodes...)
		result.Data[groupName] = items
	}

	return result, nil
}

func partition(selectors []store.Selector) (flat []store.Selector, groups map[string][]store.Selector, order []string) {
	groups = map[string][]store.Selector{}
	for _, s := range selectors {
		if s.GroupName == nil {
			flat = append(flat, s)
			continue
		}
		name := *s.GroupName
		if _, ok := groups[name]; !ok {
			order = append(order, name)
		}
		groups[name] = append(groups[name], s)
	}
	return flat, groups, order
}

// agreeingItemSelector enforces the group invariant: every member selector
// must name the same item_selector.
func agreeingItemSelector(members []store.Selector) (string, bool) {
	if len(members) == 0 {
		return "", false
	}
	var item string
	for i, m := range members {
		if m.ItemSelector == nil {
			return "", false
		}
		if i == 0 {
			item = *m.ItemSelector
			continue
		}
		if *m.ItemSelector != item {
			return "", false
		}
	}
	return item, true
}

func resolveFlat(doc *document, sel store.Selector, baseURL string) (value any, errCode string, err error) {
	dialect, expr := parseSelector(sel.Selector)
	root, err := doc.root(dialect)
	if err != nil {
		return nil, "", err
	}

	matched, found := findFirst(dialect, expr, root)
	raw := ""
	if found {
		raw = extractValue(dialect, matched, sel.Attribute)
		if sel.Attribute != nil {
			raw = resolveAttribute(*sel.Attribute, raw, baseURL)
		}
	}

	if !found || raw == "" {
		if sel.Required {
			return nil, fmt.Sprintf("missing:%s", sel.Field), nil
		}
		return nil, "", nil
	}

	coerced, ok := coerce(raw, sel.DataType)
	if !ok {
		return nil, fmt.Sprintf("type:%s", sel.Field), nil
	}
	return coerced, "", nil
}

func resolveGroup(doc *document, groupName, itemSelectorRaw string, members []store.Selector, baseURL string) ([]map[string]any, []string, error) {
	dialect, expr := parseSelector(itemSelectorRaw)
	root, err := doc.root(dialect)
	if err != nil {
		return nil, nil, err
	}

	itemScopes, err := findItems(dialect, expr, root)
	if err != nil {
		return nil, nil, err
	}

	var items []map[string]any
	var errs []string

	for idx, item := range itemScopes {
		record := map[string]any{}
		for _, m := range members {
			fieldDialect, fieldExpr := parseSelector(m.Selector)
			fieldRoot := scopeAs(fieldDialect, item)

			matched, found := findFirst(fieldDialect, fieldExpr, fieldRoot)
			raw := ""
			if found {
				raw = extractValue(fieldDialect, matched, m.Attribute)
				if m.Attribute != nil {
					raw = resolveAttribute(*m.Attribute, raw, baseURL)
				}
			}

			if !found || raw == "" {
				if m.Required {
					errs = append(errs, fmt.Sprintf("missing:%s.%s:%d", groupName, m.Field, idx))
				}
				continue
			}

			coerced, ok := coerce(raw, m.DataType)
			if !ok {
				errs = append(errs, fmt.Sprintf("type:%s.%s:%d", groupName, m.Field, idx))
				continue
			}
			record[m.Field] = coerced
		}
		items = append(items, record)
	}

	return items, errs, nil
}
