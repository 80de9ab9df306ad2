package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// PlainFetcher is the fast-tier HTTP fetcher: stdlib net/http, retried on
// timeout, transport error, or a retryable status.
type PlainFetcher struct {
	cfg Config
}

func NewPlain(cfg Config) *PlainFetcher {
	return &PlainFetcher{cfg: cfg}
}

// Fetch performs req, retrying per cfg.Retries with full-jitter exponential
// backoff on transport failure or a retryable status code.
func (f *PlainFetcher) Fetch(ctx context.Context, req Request) (*Response, error) {
	client, err := f.buildClient(req.ProxyURL)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt <= f.cfg.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(fullJitterBackoff(attempt-1, f.cfg.BackoffMS, f.cfg.BackoffMaxMS)):
			}
		}

		resp, err := f.attempt(ctx, client, req)
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

func (f *PlainFetcher) attempt(ctx context.Context, client *http.Client, req Request) (*Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if req.UserAgent != "" {
		httpReq.Header.Set("User-Agent", req.UserAgent)
	}
	if parsed, err := url.Parse(req.URL); err == nil {
		for _, c := range filterCookiesForHost(req.Cookies, parsed.Host) {
			httpReq.AddCookie(c)
		}
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", req.URL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	limit := f.cfg.maxBytes()
	body, truncated, err := readLimited(resp.Body, limit)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	headers := map[string]string{}
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}

	finalURL := req.URL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	return &Response{
		URL:         finalURL,
		Status:      resp.StatusCode,
		HTML:        string(body),
		Headers:     headers,
		Cookies:     cookiesFromResponse(resp),
		Content:     body,
		ContentType: resp.Header.Get("Content-Type"),
		Truncated:   truncated,
	}, nil
}

func (f *PlainFetcher) buildClient(proxyURL string) (*http.Client, error) {
	transport := &http.Transport{}
	if proxyURL != "" {
		parsed, err := url.Parse(proxyURL)
		if err != nil {
			return nil, fmt.Errorf("parsing proxy url: %w", err)
		}
		transport.Proxy = http.ProxyURL(parsed)
	}
	return &http.Client{
		Timeout:   f.cfg.timeout(),
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return fmt.Errorf("stopped after 10 redirects")
			}
			return nil
		},
	}, nil
}

// readLimited reads up to limit+1 bytes so truncation can be detected
// without buffering the whole (possibly huge) body.
func readLimited(r io.Reader, limit int64) ([]byte, bool, error) {
	body, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, false, err
	}
	if int64(len(body)) > limit {
		return body[:limit], true, nil
	}
	return body, false, nil
}
