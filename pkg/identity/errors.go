package identity

import "errors"

var (
	// ErrKeyMissing is returned by NewCipher when no encryption key is configured.
	ErrKeyMissing = errors.New("identity_key_missing")
	// ErrKeyLength is returned by NewCipher when the configured key isn't 32 raw bytes.
	ErrKeyLength = errors.New("identity_key_invalid_length")
	// ErrDecryptFailed wraps any authentication or framing failure on Open.
	ErrDecryptFailed = errors.New("identity_key_invalid")
	// ErrNoIdentity is returned by Acquire when a tenant has no active identity.
	ErrNoIdentity = errors.New("no_active_identity")
)

// banIndicatingCodes are the error codes that count against an identity's
// failure_count — everything else (network timeouts, parse errors) does not.
var banIndicatingCodes = map[string]bool{
	"http_403":          true,
	"http_429":          true,
	"captcha_detected":  true,
	"challenge_script":  true,
}

// IsBanIndicating reports whether code should be charged against the
// identity that produced it.
func IsBanIndicating(code string) bool {
	if banIndicatingCodes[code] {
		return true
	}
	return hasPrefix(code, "blocked_") || hasPrefix(code, "vision_")
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}
