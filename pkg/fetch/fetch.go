// Package fetch implements the three HTTP-level fetch tiers: a plain HTTP
// client, an impersonating ("stealth") client, and a headless browser
// renderer. All three share the same request/response shape so engine
// runners can treat them interchangeably.
package fetch

import (
	"time"

	"github.com/proteus/scrapecore/pkg/identity"
)

// Request is one fetch attempt's inputs.
type Request struct {
	URL       string
	Headers   map[string]string
	Cookies   []identity.Cookie
	ProxyURL  string
	UserAgent string
}

// Response is the shared fetch result shape spec §4.11 describes.
type Response struct {
	URL         string
	Status      int
	HTML        string
	Headers     map[string]string
	Cookies     []identity.Cookie
	Content     []byte
	ContentType string
	Truncated   bool
}

// Config tunes timeouts, byte caps, and retry/backoff for the plain and
// stealth fetchers.
type Config struct {
	MaxBytes      int64
	TimeoutMS     int
	Retries       int
	BackoffMS     int
	BackoffMaxMS  int
}

func (c Config) timeout() time.Duration {
	if c.TimeoutMS <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

func (c Config) maxBytes() int64 {
	if c.MaxBytes <= 0 {
		return 5 * 1024 * 1024
	}
	return c.MaxBytes
}

// retryableStatus is the set of response statuses worth retrying.
var retryableStatus = map[int]bool{
	408: true, 425: true, 429: true,
	500: true, 502: true, 503: true, 504: true,
}
