// Package ssrf guards every outbound fetch against server-side request
// forgery: scheme/credential checks, allow/deny-list matching, and a DNS
// resolution step that rejects private, loopback, link-local, multicast,
// reserved, and other non-public address classes unless explicitly allowed.
package ssrf

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Error codes, returned as the Code field of *Error — never a raw Go error
// crosses the job boundary.
const (
	CodeInvalidURL        = "invalid_url"
	CodeInvalidScheme     = "invalid_scheme"
	CodeDNSFailed         = "dns_failed"
	CodeDomainDenied      = "domain_denied"
	CodeDomainNotAllowed  = "domain_not_allowed"
	CodeSSRFBlocked       = "ssrf_blocked"
)

// Error is the opaque, user-visible rejection reason.
type Error struct {
	Code string
}

func (e *Error) Error() string {
	return fmt.Sprintf("ssrf: %s", e.Code)
}

// Resolver abstracts DNS lookups so tests can substitute a fixed resolver.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// Guard validates outbound URLs against the SSRF policy.
type Guard struct {
	AllowPrivateIPs bool
	AllowList       []string
	DenyList        []string
	Resolver        Resolver
}

// New creates a Guard with the given policy. A nil resolver falls back to
// net.DefaultResolver.
func New(allowPrivateIPs bool, allowList, denyList []string, resolver Resolver) *Guard {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	return &Guard{
		AllowPrivateIPs: allowPrivateIPs,
		AllowList:       allowList,
		DenyList:        denyList,
		Resolver:        resolver,
	}
}

// EnsureURLAllowed validates rawURL against scheme, credential, allow/deny
// list, and address-class rules. A nil return means the URL is safe to fetch.
func (g *Guard) EnsureURLAllowed(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return &Error{Code: CodeInvalidURL}
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return &Error{Code: CodeInvalidScheme}
	}

	if u.User != nil {
		return &Error{Code: CodeInvalidURL}
	}

	host := u.Hostname()
	if host == "" {
		return &Error{Code: CodeInvalidURL}
	}
	host = strings.TrimSuffix(host, ".")

	if matchesList(host, g.DenyList) {
		return &Error{Code: CodeDomainDenied}
	}

	if len(g.AllowList) > 0 && !matchesList(host, g.AllowList) {
		return &Error{Code: CodeDomainNotAllowed}
	}

	if isLocalHostname(host) {
		if g.AllowPrivateIPs {
			return nil
		}
		return &Error{Code: CodeSSRFBlocked}
	}

	addrs, err := g.Resolver.LookupHost(ctx, host)
	if err != nil || len(addrs) == 0 {
		return &Error{Code: CodeDNSFailed}
	}

	if g.AllowPrivateIPs {
		return nil
	}

	for _, a := range addrs {
		ip := net.ParseIP(stripZone(a))
		if ip == nil {
			continue
		}
		if isDisallowedAddress(ip) {
			return &Error{Code: CodeSSRFBlocked}
		}
	}

	return nil
}

// matchesList reports whether host matches any entry in list, where an
// entry of "*.foo" matches any subdomain of foo (not foo itself) and any
// other entry must match exactly.
func matchesList(host string, list []string) bool {
	host = strings.ToLower(host)
	for _, entry := range list {
		entry = strings.ToLower(strings.TrimSpace(entry))
		if entry == "" {
			continue
		}
		if strings.HasPrefix(entry, "*.") {
			suffix := entry[1:] // ".foo"
			if strings.HasSuffix(host, suffix) && host != suffix[1:] {
				return true
			}
			continue
		}
		if host == entry {
			return true
		}
	}
	return false
}

// isLocalHostname reports whether host is a well-known local name not
// resolvable to a meaningful public address.
func isLocalHostname(host string) bool {
	h := strings.ToLower(host)
	if h == "localhost" {
		return true
	}
	for _, suffix := range []string{".local", ".localhost", ".internal"} {
		if strings.HasSuffix(h, suffix) {
			return true
		}
	}
	return false
}

// isDisallowedAddress reports whether ip falls into any non-public address
// class that should never be reachable from a scraping fetch.
func isDisallowedAddress(ip net.IP) bool {
	return ip.IsPrivate() ||
		ip.IsLoopback() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsMulticast() ||
		ip.IsUnspecified() ||
		isReserved(ip)
}

// isReserved reports whether ip falls in IANA-reserved ranges not already
// covered by net.IP's private/loopback/link-local checks (0.0.0.0/8,
// 100.64.0.0/10 CGNAT, 192.0.0.0/24, 192.0.2.0/24 TEST-NET-1, 198.18.0.0/15
// benchmarking, 198.51.100.0/24 TEST-NET-2, 203.0.113.0/24 TEST-NET-3,
// 240.0.0.0/4 reserved).
func isReserved(ip net.IP) bool {
	for _, cidr := range []string{
		"0.0.0.0/8",
		"100.64.0.0/10",
		"192.0.0.0/24",
		"192.0.2.0/24",
		"198.18.0.0/15",
		"198.51.100.0/24",
		"203.0.113.0/24",
		"240.0.0.0/4",
	} {
		_, block, err := net.ParseCIDR(cidr)
		if err != nil {
			continue
		}
		if block.Contains(ip) {
			return true
		}
	}
	return false
}

// stripZone removes an IPv6 zone identifier (e.g. "fe80::1%eth0") before
// parsing, since net.ParseIP rejects zoned addresses.
func stripZone(addr string) string {
	if i := strings.IndexByte(addr, '%'); i >= 0 {
		return addr[:i]
	}
	return addr
}
