package oracle

import (
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// domSelector wraps a parsed document for best-effort selector inference.
type domSelector struct {
	doc *goquery.Document
}

func quickParse(htmlStr string) (*domSelector, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlStr))
	if err != nil {
		return nil, err
	}
	return &domSelector{doc: doc}, nil
}

// find walks every body descendant in document order and returns a CSS
// selector for the first node whose trimmed text content (descendant text
// included) equals value, or whose href, src, alt, title or value attribute
// does.
func (d *domSelector) find(value string) string {
	var found string
	d.doc.Find("body *").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if strings.TrimSpace(s.Text()) == value {
			found = selectorFor(s)
			return false
		}
		for _, attr := range []string{"href", "src", "alt", "title", "value"} {
			if v, ok := s.Attr(attr); ok && strings.TrimSpace(v) == value {
				found = selectorFor(s)
				return false
			}
		}
		return true
	})
	return found
}

// selectorFor builds a minimal CSS selector for a node: its id if present,
// else its tag qualified by the first class, else tag:nth-of-type(n).
func selectorFor(s *goquery.Selection) string {
	node := s.Nodes[0]
	tag := node.Data

	if id, ok := s.Attr("id"); ok && id != "" {
		return "#" + id
	}
	if class, ok := s.Attr("class"); ok && class != "" {
		classes := strings.Fields(class)
		if len(classes) > 0 {
			return tag + "." + classes[0]
		}
	}
	return tag + ":nth-of-type(" + strconv.Itoa(nthOfType(s)) + ")"
}

// nthOfType returns s's 1-based position among its siblings sharing its tag.
func nthOfType(s *goquery.Selection) int {
	node := s.Nodes[0]
	n := 1
	for sib := node.PrevSibling; sib != nil; sib = sib.PrevSibling {
		if sib.Type == node.Type && sib.Data == node.Data {
			n++
		}
	}
	return n
}
