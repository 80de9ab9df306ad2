package extract

import "strings"

// dialectCSS and dialectXPath are the two selector engines a selector
// string may request via its prefix. A bare selector (no prefix) is CSS.
const (
	dialectCSS   = "css"
	dialectXPath = "xpath"
)

// parseSelector splits a stored selector string into its dialect and
// expression, defaulting to CSS when no "css:"/"xpath:" prefix is present.
func parseSelector(raw string) (dialect, expr string) {
	if rest, ok := strings.CutPrefix(raw, "xpath:"); ok {
		return dialectXPath, rest
	}
	if rest, ok := strings.CutPrefix(raw, "css:"); ok {
		return dialectCSS, rest
	}
	return dialectCSS, raw
}
