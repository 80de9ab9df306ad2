package extract

import (
	"net/url"
	"strings"
)

var urlLikeAttributes = map[string]bool{
	"href":      true,
	"src":       true,
	"data-href": true,
	"data-url":  true,
	"data-src":  true,
}

// resolveAttribute resolves a URL-ish attribute value against baseURL,
// leaving fragments and non-HTTP schemes (javascript:, mailto:, tel:)
// untouched.
func resolveAttribute(attribute, value, baseURL string) string {
	if value == "" || baseURL == "" {
		return value
	}
	if !shouldResolve(attribute, value) {
		return value
	}
	if isPreservedScheme(value) || strings.HasPrefix(value, "#") {
		return value
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		return value
	}
	ref, err := url.Parse(value)
	if err != nil {
		return value
	}
	return base.ResolveReference(ref).String()
}

func shouldResolve(attribute, value string) bool {
	if urlLikeAttributes[strings.ToLower(attribute)] {
		return true
	}
	return strings.HasPrefix(value, "/") ||
		strings.HasPrefix(value, "http://") ||
		strings.HasPrefix(value, "https://") ||
		strings.HasPrefix(value, "//")
}

func isPreservedScheme(value string) bool {
	lower := strings.ToLower(value)
	for _, scheme := range []string{"javascript:", "mailto:", "tel:"} {
		if strings.HasPrefix(lower, scheme) {
			return true
		}
	}
	return false
}
