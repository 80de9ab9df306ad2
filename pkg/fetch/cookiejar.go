package fetch

import (
	"net/http"
	"strings"

	"github.com/proteus/scrapecore/pkg/identity"
)

// filterCookiesForHost returns the subset of cookies whose Domain matches
// host (bare or leading-dot suffix match), converted to net/http.Cookie for
// attaching to an outgoing request.
func filterCookiesForHost(cookies []identity.Cookie, host string) []*http.Cookie {
	var out []*http.Cookie
	for _, c := range cookies {
		if !domainMatches(c.Domain, host) {
			continue
		}
		out = append(out, &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			Secure:   c.Secure,
			HttpOnly: c.HTTPOnly,
		})
	}
	return out
}

func domainMatches(cookieDomain, host string) bool {
	if cookieDomain == "" {
		return true
	}
	cd := strings.TrimPrefix(strings.ToLower(cookieDomain), ".")
	host = strings.ToLower(host)
	return host == cd || strings.HasSuffix(host, "."+cd)
}

// cookiesFromResponse converts the cookies net/http parsed off Set-Cookie
// headers into the identity.Cookie shape the identity manager persists.
func cookiesFromResponse(resp *http.Response) []identity.Cookie {
	raw := resp.Cookies()
	out := make([]identity.Cookie, 0, len(raw))
	for _, c := range raw {
		out = append(out, identity.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			Secure:   c.Secure,
			HTTPOnly: c.HttpOnly,
		})
	}
	return out
}
