package engine

import (
	"context"
	"net/url"
	"strings"

	"github.com/proteus/scrapecore/pkg/fetch"
	"github.com/proteus/scrapecore/pkg/governance"
)

// StealthTier is the impersonating-fetch engine: same governance as fast,
// gated by a per-domain allow-list, falling back to fast when the domain
// isn't on it.
type StealthTier struct {
	fetcher      *fetch.StealthFetcher
	guard        *governance.Guard
	allowDomains []string
	fallback     *FastTier
	maxWaitMS    int64
}

func NewStealthTier(guard *governance.Guard, cfg fetch.Config, profile fetch.FingerprintProfile, allowDomains []string, fallback *FastTier, maxWaitMS int64) *StealthTier {
	return &StealthTier{
		fetcher: fetch.NewStealth(cfg, profile), guard: guard,
		allowDomains: allowDomains, fallback: fallback, maxWaitMS: maxWaitMS,
	}
}

func (t *StealthTier) Name() string { return "stealth" }

func (t *StealthTier) ConsumesIdentity() bool { return true }

func (t *StealthTier) CheckGovernance(ctx context.Context, tenant, domain string) error {
	return t.guard.Check(ctx, domain, t.maxWaitMS)
}

func (t *StealthTier) RecordOutcome(ctx context.Context, domain string, status int) error {
	_, err := t.guard.RecordResponse(ctx, domain, status)
	return err
}

func (t *StealthTier) Fetch(ctx context.Context, in FetchInput) (FetchOutput, error) {
	if !DomainAllowed(in.URL, t.allowDomains) {
		return t.fallback.Fetch(ctx, in)
	}
	resp, err := t.fetcher.Fetch(ctx, fetch.Request{
		URL: in.URL, Headers: in.Headers, Cookies: in.Cookies,
		ProxyURL: in.ProxyURL, UserAgent: in.UserAgent,
	})
	if err != nil {
		return FetchOutput{}, err
	}
	return fetchOutputFromResponse(resp), nil
}

// DomainAllowed reports whether rawURL's host matches one of allowDomains by
// exact match or dotted-suffix. An empty allow-list allows nothing.
func DomainAllowed(rawURL string, allowDomains []string) bool {
	if len(allowDomains) == 0 {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := u.Hostname()
	for _, d := range allowDomains {
		d = strings.TrimSpace(d)
		if d == "" {
			continue
		}
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}
