package engine

import "strings"

// Outcome is the result of running one job through one engine tier.
// Reason is empty on success, otherwise one of the user-visible error codes
// from the taxonomy. Escalate reports whether the worker loop should try the
// next engine tier rather than finalize the job as failed.
type Outcome struct {
	Data     map[string]any
	Errors   []string
	Reason   string
	Escalate bool
}

// Ordered tells by escalation depth; index is what router_max_depth bounds.
var Tiers = []string{"fast", "stealth", "browser", "external"}

// IsEscalatable reports whether reason is one of the escalation-eligible
// codes: blocking/challenge detections, empty parses, and vision failures.
func IsEscalatable(reason string) bool {
	switch reason {
	case "http_403", "http_429", "captcha_detected", "challenge_script", "empty_parse":
		return true
	}
	if strings.HasPrefix(reason, "blocked_") || strings.HasPrefix(reason, "vision_") {
		return true
	}
	return false
}

// AllowedFunc reports whether tier is usable for rawURL, per the per-engine
// allow-list policy (e.g. stealth/external domain allow-lists, external API
// key presence).
type AllowedFunc func(tier, rawURL string) bool

// NextEngine returns the first tier after current in Tiers whose index is
// <= maxDepth and for which allowed reports true. It returns "" if none
// qualifies, meaning the job should finalize failed instead of escalating.
func NextEngine(current, rawURL string, maxDepth int, allowed AllowedFunc) string {
	currentIdx := -1
	for i, t := range Tiers {
		if t == current {
			currentIdx = i
			break
		}
	}
	for i := currentIdx + 1; i < len(Tiers) && i <= maxDepth; i++ {
		if allowed == nil || allowed(Tiers[i], rawURL) {
			return Tiers[i]
		}
	}
	return ""
}

// PolicyConfig is the engine allow-list policy shared by the dispatcher
// (normalizing a job's initial engine) and the worker (computing the next
// engine on escalation). fast and browser have no allow-list; stealth and
// external are gated the same way their own tiers gate themselves.
type PolicyConfig struct {
	StealthAllowDomains  []string
	ExternalAllowDomains []string
	ExternalAPIKey       string
}

// Allowed reports whether tier may be used for rawURL under this policy.
func (c PolicyConfig) Allowed(tier, rawURL string) bool {
	switch tier {
	case "fast", "browser":
		return true
	case "stealth":
		return DomainAllowed(rawURL, c.StealthAllowDomains)
	case "external":
		return c.ExternalAPIKey != "" && DomainAllowed(rawURL, c.ExternalAllowDomains)
	default:
		return false
	}
}

// defaultPlugins returns each tier's baseline plugin chain, applied before
// any tenant- or schema-configured names. No per-engine default list is
// externally configurable — these are the compiled-in starting points every
// tenant/schema list is appended to.
func defaultPlugins(tier string) []string {
	switch tier {
	case "external":
		return []string{"payload_transform"}
	default:
		return []string{"custom_headers"}
	}
}
