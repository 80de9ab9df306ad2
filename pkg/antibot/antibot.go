// Package antibot classifies a fetch response as blocked, challenged, or
// empty using pure pattern matching over status, headers, URL, and body —
// no network calls, no state.
package antibot

import (
	"regexp"
	"strings"
)

var (
	urlPattern = regexp.MustCompile(`(?i)(captcha|challenge|verify|blocked|denied|unusual-traffic|access-denied)`)

	titlePattern = regexp.MustCompile(`(?i)(access denied|attention required|just a moment|verify you are human|robot check|unusual traffic|request blocked|service unavailable|forbidden)`)

	captchaBodyPattern = regexp.MustCompile(`(?i)(g-recaptcha|hcaptcha|recaptcha|turnstile|captcha)`)

	challengeBodyPattern = regexp.MustCompile(`(?i)(cf-chl|challenge-platform|datadome|perimeterx|distil|incapsula)`)

	titleTagPattern = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)

	blockedHeaderNames = map[string]bool{
		"cf-mitigated":   true,
		"cf-chl-bypass":  true,
		"cf-chl-out":     true,
		"x-sucuri-block": true,
		"x-distil-cs":    true,
		"x-datadome":     true,
	}

	headerValuePattern = regexp.MustCompile(`(?i)(captcha|challenge|blocked|bot|verify)`)
)

// Detect classifies a single response. It returns "" when nothing matched.
// Checks run in the order documented in spec §4.7; the first match wins.
func Detect(status int, headers map[string]string, url, body string) string {
	if status == 403 {
		return "http_403"
	}
	if status == 429 {
		return "http_429"
	}

	if urlPattern.MatchString(url) {
		return "blocked_url"
	}

	if title := extractTitle(body); title != "" && titlePattern.MatchString(title) {
		return "blocked_title"
	}

	if captchaBodyPattern.MatchString(body) {
		return "captcha_detected"
	}

	if challengeBodyPattern.MatchString(body) {
		return "challenge_script"
	}

	if headerIndicatesBlock(headers) {
		return "blocked_header"
	}

	return ""
}

func extractTitle(body string) string {
	m := titleTagPattern.FindStringSubmatch(body)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

func headerIndicatesBlock(headers map[string]string) bool {
	for name, value := range headers {
		if blockedHeaderNames[strings.ToLower(name)] {
			return true
		}
		if headerValuePattern.MatchString(value) {
			return true
		}
	}
	return false
}

// Required field codes that detect_empty_parse treats as "infrastructure",
// not a content-signal worth escalating over.
const codeParselUnavailable = "parsel_unavailable"

// SelectorSpec is the minimal shape detect_empty_parse needs from a selector
// to decide whether its absence counts as empty.
type SelectorSpec struct {
	Key      string
	Required bool
}

// DetectEmptyParse reports empty_parse when status is null (0) or 200, at
// least one selector is required, none of the required selectors produced a
// value in data, and parsing was not already aborted by an unrelated
// infrastructure error code.
func DetectEmptyParse(status int, data map[string]any, selectors []SelectorSpec, errs []string) string {
	if status != 0 && status != 200 {
		return ""
	}
	for _, e := range errs {
		if e == codeParselUnavailable {
			return ""
		}
	}

	hasRequired := false
	for _, s := range selectors {
		if s.Required {
			hasRequired = true
			if _, ok := data[s.Key]; ok {
				return ""
			}
		}
	}
	if !hasRequired {
		return ""
	}
	return "empty_parse"
}
