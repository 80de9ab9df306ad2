// Package oracle calls the extraction oracle: an external LLM endpoint used
// to recover data and selector hints when deterministic extraction fails.
// The oracle's own internals are out of scope here — this package only
// implements the HTTP contract, budget enforcement, and local fallback
// inference.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/proteus/scrapecore/internal/store"
	"github.com/proteus/scrapecore/internal/telemetry"
	"github.com/proteus/scrapecore/pkg/candidate"
	"github.com/proteus/scrapecore/pkg/extract"
	"github.com/proteus/scrapecore/pkg/governance"
)

// Config tunes the oracle client.
type Config struct {
	Endpoint  string
	APIKey    string
	MaxChars  int
	TimeoutMS int
	Budget    governance.LLMBudgetConfig
}

// Client is the extraction oracle HTTP client.
type Client struct {
	httpClient *http.Client
	guard      *governance.Guard
	cfg        Config
}

func New(guard *governance.Guard, cfg Config) *Client {
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = 20000
	}
	timeout := time.Duration(cfg.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		guard:      guard,
		cfg:        cfg,
	}
}

// Result is a successful oracle recovery: normalized data plus the selector
// hints (empty when the oracle returned none and local inference also found
// nothing) to feed into the candidate registry.
type Result struct {
	Data   map[string]any
	Hints  []candidate.Hint
	Errors []string
}

// fieldSchema describes one flat or grouped field for the oracle's
// structured-response prompt.
type fieldSchema struct {
	Field    string        `json:"field"`
	Group    string        `json:"group,omitempty"`
	DataType string        `json:"data_type"`
	Required bool          `json:"required"`
}

type oracleRequest struct {
	HTML   string        `json:"html"`
	Fields []fieldSchema `json:"fields"`
}

type oracleResponse struct {
	Success   bool              `json:"success"`
	Data      map[string]any    `json:"data"`
	Selectors map[string]string `json:"selectors"`
	Error     string            `json:"error"`
}

// Recover asks the oracle to recover data for schemaID's selectors from
// html. It enforces the per-job/per-tenant LLM budget first via guard.
func (c *Client) Recover(ctx context.Context, jobID, tenant, schemaID, html, baseURL string, selectors []store.Selector) (*Result, error) {
	if err := c.guard.CheckLLMBudget(ctx, jobID, tenant, c.cfg.Budget); err != nil {
		return nil, err
	}

	allowed := allowedKeys(selectors)
	req := oracleRequest{
		HTML:   truncate(html, c.cfg.MaxChars),
		Fields: schemaFields(selectors),
	}

	resp, err := c.call(ctx, req)
	if err != nil {
		telemetry.OracleCallsTotal.WithLabelValues("unavailable").Inc()
		return nil, &OracleError{Code: CodeUnavailable, Cause: err}
	}

	if !resp.Success {
		telemetry.OracleCallsTotal.WithLabelValues("failed").Inc()
		return nil, &OracleError{Code: CodeFailed, Cause: fmt.Errorf("%s", resp.Error)}
	}

	normalized, normErrs := extract.NormalizeData(resp.Data, selectors)
	if len(normErrs) > 0 {
		telemetry.OracleCallsTotal.WithLabelValues("validation_failed").Inc()
		return nil, &OracleError{Code: CodeValidationFailed, Cause: fmt.Errorf("normalizing oracle data: %v", normErrs)}
	}

	hints := filterSelectors(resp.Selectors, allowed, selectors)
	if len(hints) == 0 {
		hints = inferSelectors(html, baseURL, normalized, selectors)
	}

	telemetry.OracleCallsTotal.WithLabelValues("success").Inc()
	return &Result{Data: normalized, Hints: hints}, nil
}

func (c *Client) call(ctx context.Context, req oracleRequest) (*oracleResponse, error) {
	if c.cfg.Endpoint == "" {
		return nil, fmt.Errorf("no oracle endpoint configured")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshalling oracle request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building oracle request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("X-API-Key", c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("calling oracle: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("oracle returned HTTP %d", resp.StatusCode)
	}

	var out oracleResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding oracle response: %w", err)
	}
	return &out, nil
}

// schemaFields lowers the active selectors into the oracle's field
// description, one entry per flat field or group field.
func schemaFields(selectors []store.Selector) []fieldSchema {
	fields := make([]fieldSchema, 0, len(selectors))
	for _, s := range selectors {
		f := fieldSchema{Field: s.Field, DataType: s.DataType, Required: s.Required}
		if s.GroupName != nil {
			f.Group = *s.GroupName
		}
		fields = append(fields, f)
	}
	return fields
}

// allowedKeys is the set of "<field>" / "<group>.<field>" keys the oracle
// may legitimately return selector hints for.
func allowedKeys(selectors []store.Selector) map[string]bool {
	out := map[string]bool{}
	for _, s := range selectors {
		if s.GroupName != nil {
			out[*s.GroupName+"."+s.Field] = true
		} else {
			out[s.Field] = true
		}
	}
	return out
}

// truncate keeps the head half and tail half of html with a marker between,
// bounded to maxChars total.
func truncate(html string, maxChars int) string {
	if maxChars <= 0 || len(html) <= maxChars {
		return html
	}
	const marker = "\n<!-- ...truncated... -->\n"
	budget := maxChars - len(marker)
	if budget <= 0 {
		return html[:maxChars]
	}
	head := budget / 2
	tail := budget - head
	return html[:head] + marker + html[len(html)-tail:]
}

// filterSelectors keeps only oracle-returned selector hints whose key
// corresponds to a currently active selector, and attaches that selector's
// item_selector/attribute/data_type/required so the candidate registry can
// key on the full promotion tuple.
func filterSelectors(raw map[string]string, allowed map[string]bool, selectors []store.Selector) []candidate.Hint {
	byKey := map[string]store.Selector{}
	for _, s := range selectors {
		key := s.Field
		if s.GroupName != nil {
			key = *s.GroupName + "." + s.Field
		}
		byKey[key] = s
	}

	var hints []candidate.Hint
	for key, sel := range raw {
		if !allowed[key] || sel == "" {
			continue
		}
		match, ok := byKey[key]
		if !ok {
			continue
		}
		hints = append(hints, candidate.Hint{
			Key:          key,
			Selector:     sel,
			ItemSelector: match.ItemSelector,
			Attribute:    match.Attribute,
			DataType:     match.DataType,
			Required:     match.Required,
		})
	}
	return hints
}

// inferSelectors is the best-effort local fallback when the oracle returns
// valid data but no usable selector hints: it walks the document looking for
// a node whose text or attribute value matches the recovered value.
func inferSelectors(html, baseURL string, data map[string]any, selectors []store.Selector) []candidate.Hint {
	var hints []candidate.Hint
	for _, s := range selectors {
		if s.GroupName != nil {
			continue
		}
		value, ok := data[s.Field]
		if !ok {
			continue
		}
		text := fmt.Sprintf("%v", value)
		if text == "" {
			continue
		}
		if found := findMatchingSelector(html, text); found != "" {
			hints = append(hints, candidate.Hint{
				Key:      s.Field,
				Selector: found,
				DataType: s.DataType,
				Required: s.Required,
			})
		}
	}
	return hints
}

// findMatchingSelector walks body descendants looking for a node whose
// trimmed text content or one of a few attributes equals value, returning
// the CSS selector selectorFor builds for it, or "" if none matches.
func findMatchingSelector(htmlStr, value string) string {
	sel, err := quickParse(htmlStr)
	if err != nil {
		return ""
	}
	return sel.find(strings.TrimSpace(value))
}
