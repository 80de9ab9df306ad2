package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// match is a single matched node, dialect-tagged so extractValue knows which
// accessor to use.
type match struct {
	css *goquery.Selection
	xp  *html.Node
}

// findFirst resolves the first node matching expr within root, per dialect.
func findFirst(dialect, expr string, root scope) (match, bool) {
	switch dialect {
	case dialectCSS:
		if root.css == nil {
			return match{}, false
		}
		sel := root.css.Find(expr)
		if sel.Length() == 0 {
			return match{}, false
		}
		return match{css: sel.First()}, true
	case dialectXPath:
		if root.xp == nil {
			return match{}, false
		}
		node, err := htmlquery.Query(root.xp, expr)
		if err != nil || node == nil {
			return match{}, false
		}
		return match{xp: node}, true
	default:
		return match{}, false
	}
}

// findItems resolves every node matching expr within root, as a per-item
// scope usable for further field resolution.
func findItems(dialect, expr string, root scope) ([]scope, error) {
	switch dialect {
	case dialectCSS:
		if root.css == nil {
			return nil, nil
		}
		sel := root.css.Find(expr)
		items := make([]scope, 0, sel.Length())
		sel.Each(func(_ int, s *goquery.Selection) {
			items = append(items, scope{css: s})
		})
		return items, nil
	case dialectXPath:
		if root.xp == nil {
			return nil, nil
		}
		nodes, err := htmlquery.QueryAll(root.xp, expr)
		if err != nil {
			return nil, err
		}
		items := make([]scope, 0, len(nodes))
		for _, n := range nodes {
			items = append(items, scope{xp: n})
		}
		return items, nil
	default:
		return nil, nil
	}
}

// scopeAs re-roots an item scope into the requested dialect's tree, so a
// group's field selectors may mix CSS and XPath even when the item selector
// itself uses the other dialect — both operate over the same underlying
// node tree.
func scopeAs(dialect string, item scope) scope {
	switch dialect {
	case dialectCSS:
		if item.css != nil {
			return item
		}
		if item.xp != nil {
			return scope{css: goquery.NewDocumentFromNode(item.xp).Selection}
		}
	case dialectXPath:
		if item.xp != nil {
			return item
		}
		if item.css != nil && len(item.css.Nodes) > 0 {
			return scope{xp: item.css.Nodes[0]}
		}
	}
	return scope{}
}

// extractValue reads either the named attribute or the trimmed text content
// off a matched node.
func extractValue(dialect string, m match, attribute *string) string {
	switch dialect {
	case dialectCSS:
		if attribute != nil {
			v, _ := m.css.Attr(*attribute)
			return strings.TrimSpace(v)
		}
		return strings.TrimSpace(m.css.Text())
	case dialectXPath:
		if attribute != nil {
			return strings.TrimSpace(htmlquery.SelectAttr(m.xp, *attribute))
		}
		return strings.TrimSpace(htmlquery.InnerText(m.xp))
	default:
		return ""
	}
}
