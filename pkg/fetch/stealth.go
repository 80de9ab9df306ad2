package fetch

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"
)

// FingerprintProfile describes the browser-like TLS/header shape the
// stealth fetcher presents. No pack dependency offers JA3/TLS-fingerprint
// spoofing, so this is built directly on crypto/tls.Config and
// http.Transport — a deliberate stdlib exception, documented in DESIGN.md.
type FingerprintProfile struct {
	UserAgent      string
	HeaderOrder    []string
	CipherSuites   []uint16
	MinTLSVersion  uint16
	ALPNProtocols  []string
}

// DefaultChromeProfile approximates a recent desktop Chrome's header order
// and TLS 1.3-preferring cipher list.
func DefaultChromeProfile() FingerprintProfile {
	return FingerprintProfile{
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		HeaderOrder: []string{
			"Host", "User-Agent", "Accept", "Accept-Language", "Accept-Encoding",
			"Referer", "Connection", "Cookie",
		},
		MinTLSVersion: tls.VersionTLS12,
		ALPNProtocols: []string{"h2", "http/1.1"},
	}
}

// StealthFetcher is the impersonating fetcher used exclusively by the
// stealth engine tier.
type StealthFetcher struct {
	cfg     Config
	profile FingerprintProfile
}

func NewStealth(cfg Config, profile FingerprintProfile) *StealthFetcher {
	return &StealthFetcher{cfg: cfg, profile: profile}
}

// Fetch delegates to the same attempt/retry logic as the plain fetcher but
// over a transport whose TLS settings come from the fingerprint profile,
// wrapped in orderedHeaderTransport (which does not change header wire
// order; see its doc).
func (f *StealthFetcher) Fetch(ctx context.Context, req Request) (*Response, error) {
	plain := &PlainFetcher{cfg: f.cfg}
	if req.UserAgent == "" {
		req.UserAgent = f.profile.UserAgent
	}

	client, err := plain.buildClient(req.ProxyURL)
	if err != nil {
		return nil, err
	}
	client.Transport = f.wrapTransport(client.Transport.(*http.Transport))

	var lastErr error
	for attempt := 0; attempt <= f.cfg.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(fullJitterBackoff(attempt-1, f.cfg.BackoffMS, f.cfg.BackoffMaxMS)):
			}
		}
		resp, err := plain.attempt(ctx, client, req)
		if err == nil && !retryableStatus[resp.Status] {
			return resp, nil
		}
		if err != nil {
			lastErr = err
			continue
		}
		lastErr = fmt.Errorf("retryable status %d", resp.Status)
		if attempt == f.cfg.Retries {
			return resp, nil
		}
	}
	return nil, lastErr
}

func (f *StealthFetcher) wrapTransport(base *http.Transport) http.RoundTripper {
	base.TLSClientConfig = &tls.Config{
		MinVersion: f.profile.effectiveMinVersion(),
		NextProtos: f.profile.effectiveALPN(),
		CipherSuites: f.profile.CipherSuites,
	}
	return &orderedHeaderTransport{base: base, order: f.profile.HeaderOrder}
}

func (p FingerprintProfile) effectiveMinVersion() uint16 {
	if p.MinTLSVersion == 0 {
		return tls.VersionTLS12
	}
	return p.MinTLSVersion
}

func (p FingerprintProfile) effectiveALPN() []string {
	if len(p.ALPNProtocols) == 0 {
		return []string{"h2", "http/1.1"}
	}
	return p.ALPNProtocols
}

// orderedHeaderTransport rewrites Request.Header into a new http.Header
// built by iterating order first, then any remaining keys. http.Header is a
// map and keeps no insertion order, and Go's HTTP/1.1 writer emits header
// fields sorted by key, so this rebuild does not change the order in which
// headers go out on the wire.
type orderedHeaderTransport struct {
	base  http.RoundTripper
	order []string
}

func (t *orderedHeaderTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ordered := make(http.Header, len(req.Header))
	seen := map[string]bool{}
	for _, key := range t.order {
		if v, ok := req.Header[http.CanonicalHeaderKey(key)]; ok {
			ordered[http.CanonicalHeaderKey(key)] = v
			seen[http.CanonicalHeaderKey(key)] = true
		}
	}
	for k, v := range req.Header {
		if !seen[k] {
			ordered[k] = v
		}
	}
	req.Header = ordered
	return t.base.RoundTrip(req)
}
