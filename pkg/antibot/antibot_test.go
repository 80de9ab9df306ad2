package antibot

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDetect_StatusCodes(t *testing.T) {
	require.Equal(t, "http_403", Detect(403, nil, "http://example.com", ""))
	require.Equal(t, "http_429", Detect(429, nil, "http://example.com", ""))
}

func TestDetect_BlockedURL(t *testing.T) {
	require.Equal(t, "blocked_url", Detect(200, nil, "http://example.com/access-denied", ""))
}

func TestDetect_BlockedTitle(t *testing.T) {
	body := "<html><head><title>Attention Required! | Cloudflare</title></head></html>"
	require.Equal(t, "blocked_title", Detect(200, nil, "http://example.com", body))
}

func TestDetect_Captcha(t *testing.T) {
	body := `<div class="g-recaptcha" data-sitekey="x"></div>`
	require.Equal(t, "captcha_detected", Detect(200, nil, "http://example.com", body))
}

func TestDetect_ChallengeScript(t *testing.T) {
	body := `<script src="/cdn-cgi/challenge-platform/h/g/orchestrate/chl_page"></script>`
	require.Equal(t, "challenge_script", Detect(200, nil, "http://example.com", body))
}

func TestDetect_BlockedHeaderName(t *testing.T) {
	headers := map[string]string{"cf-mitigated": "challenge"}
	require.Equal(t, "blocked_header", Detect(200, headers, "http://example.com", "<html></html>"))
}

func TestDetect_BlockedHeaderValue(t *testing.T) {
	headers := map[string]string{"X-Custom": "bot detected"}
	require.Equal(t, "blocked_header", Detect(200, headers, "http://example.com", "<html></html>"))
}

func TestDetect_NoMatch(t *testing.T) {
	require.Equal(t, "", Detect(200, map[string]string{"content-type": "text/html"}, "http://example.com/product/1", "<html><title>Widget</title></html>"))
}

func TestDetect_OrderStatusBeatsBody(t *testing.T) {
	body := `<div class="g-recaptcha"></div>`
	require.Equal(t, "http_403", Detect(403, nil, "http://example.com", body))
}

func TestDetectEmptyParse_ReturnsEmptyWhenRequiredFieldMissing(t *testing.T) {
	selectors := []SelectorSpec{{Key: "title", Required: true}}
	got := DetectEmptyParse(200, map[string]any{}, selectors, nil)
	require.Equal(t, "empty_parse", got)
}

func TestDetectEmptyParse_OKWhenRequiredFieldPresent(t *testing.T) {
	selectors := []SelectorSpec{{Key: "title", Required: true}}
	got := DetectEmptyParse(200, map[string]any{"title": "Widget"}, selectors, nil)
	require.Equal(t, "", got)
}

func TestDetectEmptyParse_IgnoresWhenNoRequiredSelectors(t *testing.T) {
	selectors := []SelectorSpec{{Key: "title", Required: false}}
	got := DetectEmptyParse(200, map[string]any{}, selectors, nil)
	require.Equal(t, "", got)
}

func TestDetectEmptyParse_SkipsOnInfrastructureError(t *testing.T) {
	selectors := []SelectorSpec{{Key: "title", Required: true}}
	got := DetectEmptyParse(200, map[string]any{}, selectors, []string{"parsel_unavailable"})
	require.Equal(t, "", got)
}

func TestDetectEmptyParse_IgnoresNonMatchingStatus(t *testing.T) {
	selectors := []SelectorSpec{{Key: "title", Required: true}}
	got := DetectEmptyParse(500, map[string]any{}, selectors, nil)
	require.Equal(t, "", got)
}
