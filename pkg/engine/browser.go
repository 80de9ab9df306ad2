package engine

import (
	"context"
	"encoding/json"

	"github.com/proteus/scrapecore/pkg/coord"
	"github.com/proteus/scrapecore/pkg/fetch"
	"github.com/proteus/scrapecore/pkg/governance"
)

// BrowserTier renders with a headless browser. It bypasses the token-bucket
// rate limiter but still honors the circuit breaker and SSRF guard.
type BrowserTier struct {
	runner *fetch.BrowserRunner
	coord  *coord.Store
	cfg    governance.Config
}

func NewBrowserTier(runner *fetch.BrowserRunner, coordStore *coord.Store, cfg governance.Config) *BrowserTier {
	return &BrowserTier{runner: runner, coord: coordStore, cfg: cfg}
}

func (t *BrowserTier) Name() string { return "browser" }

func (t *BrowserTier) ConsumesIdentity() bool { return true }

func (t *BrowserTier) CheckGovernance(ctx context.Context, tenant, domain string) error {
	open, err := t.coord.IsBreakerOpen(ctx, domain)
	if err != nil {
		return err
	}
	if open {
		return &governance.DenyError{Reason: governance.ReasonCircuitOpen}
	}
	return nil
}

func (t *BrowserTier) RecordOutcome(ctx context.Context, domain string, status int) error {
	if status != 403 && status != 429 {
		return nil
	}
	_, _, err := t.coord.RecordBreakerFailure(ctx, domain, t.cfg.BreakerWindowSec, t.cfg.BreakerThreshold, t.cfg.BreakerCooldownSec)
	return err
}

func (t *BrowserTier) Fetch(ctx context.Context, in FetchInput) (FetchOutput, error) {
	fp := fetch.Fingerprint{
		UserAgent:      in.UserAgent,
		ViewportWidth:  int64(in.Fingerprint.Viewport[0]),
		ViewportHeight: int64(in.Fingerprint.Viewport[1]),
		Locale:         in.Fingerprint.Locale,
		Timezone:       in.Fingerprint.Timezone,
		ExtraHeaders:   in.Headers,
	}

	result, err := t.runner.Render(ctx, fp, in.ProxyURL, in.Cookies, in.StorageState, []fetch.PageRequest{
		{URL: in.URL, Humanize: true, ScrollSteps: 3},
	})
	if err != nil {
		return FetchOutput{}, err
	}

	out := FetchOutput{
		Cookies:      result.Cookies,
		Screenshot:   result.Screenshot,
		StorageState: result.StorageState,
		Status:       200,
	}
	if len(result.Snapshots) > 0 {
		last := result.Snapshots[len(result.Snapshots)-1]
		out.URL = last.URL
		out.HTML = last.HTML
		out.Status = last.Status
		out.Headers = last.Headers
		out.Content = []byte(last.HTML)
		out.ContentType = "text/html"
	}
	if har, err := json.Marshal(result.HAR); err == nil {
		out.HAR = har
	}
	return out, nil
}
