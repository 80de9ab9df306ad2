package engine

import (
	"context"

	"github.com/proteus/scrapecore/pkg/fetch"
	"github.com/proteus/scrapecore/pkg/governance"
)

// FastTier is the plain-HTTP engine: full governance (rate limit + breaker),
// no impersonation, no rendering.
type FastTier struct {
	fetcher   *fetch.PlainFetcher
	guard     *governance.Guard
	maxWaitMS int64
}

func NewFastTier(guard *governance.Guard, cfg fetch.Config, maxWaitMS int64) *FastTier {
	return &FastTier{fetcher: fetch.NewPlain(cfg), guard: guard, maxWaitMS: maxWaitMS}
}

func (t *FastTier) Name() string { return "fast" }

func (t *FastTier) ConsumesIdentity() bool { return true }

func (t *FastTier) CheckGovernance(ctx context.Context, tenant, domain string) error {
	return t.guard.Check(ctx, domain, t.maxWaitMS)
}

func (t *FastTier) RecordOutcome(ctx context.Context, domain string, status int) error {
	_, err := t.guard.RecordResponse(ctx, domain, status)
	return err
}

func (t *FastTier) Fetch(ctx context.Context, in FetchInput) (FetchOutput, error) {
	resp, err := t.fetcher.Fetch(ctx, fetch.Request{
		URL: in.URL, Headers: in.Headers, Cookies: in.Cookies,
		ProxyURL: in.ProxyURL, UserAgent: in.UserAgent,
	})
	if err != nil {
		return FetchOutput{}, err
	}
	return fetchOutputFromResponse(resp), nil
}

func fetchOutputFromResponse(resp *fetch.Response) FetchOutput {
	return FetchOutput{
		URL: resp.URL, Status: resp.Status, HTML: resp.HTML, Headers: resp.Headers,
		Cookies: resp.Cookies, Content: resp.Content, ContentType: resp.ContentType,
		Truncated: resp.Truncated,
	}
}
