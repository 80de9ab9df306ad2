package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/proteus/scrapecore/pkg/coord"
)

// ExternalConfig tunes the third-party scraping API tier.
type ExternalConfig struct {
	Endpoint           string
	APIKey             string
	AllowDomains       []string
	BudgetCalls        int64
	BudgetCost         float64
	WindowSec          int64
	BreakerThreshold   int64
	BreakerWindowSec   int64
	BreakerCooldownSec int64
	TimeoutMS          int
}

// externalCallCost is the fixed per-call cost charged against the cost
// budget; the provider contract has no per-call pricing signal to read.
const externalCallCost = 1.0

// ExternalError is an opaque user-visible rejection/failure reason for the
// external tier, mirroring ssrf.Error / governance.DenyError's shape.
type ExternalError struct {
	Code string
}

func (e *ExternalError) Error() string { return fmt.Sprintf("external: %s", e.Code) }

// ExternalTier calls a third-party scraping API. It never acquires an
// identity or proxy — the provider manages its own network presentation.
type ExternalTier struct {
	client *http.Client
	coord  *coord.Store
	cfg    ExternalConfig
}

func NewExternalTier(coordStore *coord.Store, cfg ExternalConfig) *ExternalTier {
	timeout := time.Duration(cfg.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ExternalTier{client: &http.Client{Timeout: timeout}, coord: coordStore, cfg: cfg}
}

func (t *ExternalTier) Name() string { return "external" }

func (t *ExternalTier) ConsumesIdentity() bool { return false }

func (t *ExternalTier) CheckGovernance(ctx context.Context, tenant, domain string) error {
	if t.cfg.Endpoint == "" {
		return &ExternalError{Code: "external_disabled"}
	}
	if t.cfg.APIKey == "" {
		return &ExternalError{Code: "external_api_key_missing"}
	}
	if !hostSuffixMatch(domain, t.cfg.AllowDomains) {
		return &ExternalError{Code: "external_not_allowed"}
	}

	open, err := t.coord.IsExternalBreakerOpen(ctx, domain)
	if err != nil {
		return fmt.Errorf("checking external breaker: %w", err)
	}
	if open {
		return &ExternalError{Code: "external_circuit_open"}
	}

	exceeded, err := t.coord.CheckExternalCallBudget(ctx, tenant, t.cfg.WindowSec, t.cfg.BudgetCalls)
	if err != nil {
		return fmt.Errorf("checking external call budget: %w", err)
	}
	if exceeded {
		return &ExternalError{Code: "external_budget_exceeded"}
	}

	exceeded, err = t.coord.CheckExternalCostBudget(ctx, tenant, t.cfg.WindowSec, t.cfg.BudgetCost, externalCallCost)
	if err != nil {
		return fmt.Errorf("checking external cost budget: %w", err)
	}
	if exceeded {
		return &ExternalError{Code: "external_budget_exceeded"}
	}

	return nil
}

func (t *ExternalTier) RecordOutcome(ctx context.Context, domain string, status int) error {
	if status != 403 && status != 429 && status < 500 {
		return nil
	}
	_, _, err := t.coord.RecordExternalBreakerFailure(ctx, domain, t.cfg.BreakerWindowSec, t.cfg.BreakerThreshold, t.cfg.BreakerCooldownSec)
	return err
}

type externalRequest struct {
	URL string `json:"url"`
}

type externalResponse struct {
	Status  int               `json:"status"`
	HTML    string            `json:"html"`
	Headers map[string]string `json:"headers"`
}

func (t *ExternalTier) Fetch(ctx context.Context, in FetchInput) (FetchOutput, error) {
	payload, err := json.Marshal(externalRequest{URL: in.URL})
	if err != nil {
		return FetchOutput{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return FetchOutput{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.cfg.APIKey)

	resp, err := t.client.Do(req)
	if err != nil {
		return FetchOutput{}, &ExternalError{Code: "external_provider_unavailable"}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return FetchOutput{}, &ExternalError{Code: "external_auth_failed"}
	}

	var out externalResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return FetchOutput{}, &ExternalError{Code: "external_provider_response_invalid"}
	}

	return FetchOutput{
		URL: in.URL, Status: out.Status, HTML: out.HTML, Headers: out.Headers,
		Content: []byte(out.HTML), ContentType: "text/html",
	}, nil
}

// hostSuffixMatch reports whether host equals or is a subdomain of one of
// list's entries. An empty list allows nothing.
func hostSuffixMatch(host string, list []string) bool {
	if len(list) == 0 {
		return false
	}
	for _, d := range list {
		d = strings.TrimSpace(d)
		if d == "" {
			continue
		}
		if strings.EqualFold(host, d) || strings.HasSuffix(strings.ToLower(host), "."+strings.ToLower(d)) {
			return true
		}
	}
	return false
}
