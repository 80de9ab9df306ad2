package plugin

import (
	"fmt"
	"net/url"
)

// HookError carries the job-abort code: plugin_<hook>_failed:<name> for a
// panicking/erroring hook, plugin_url_changed when a request hook rewrites
// the host.
type HookError struct {
	Code string
}

func (e *HookError) Error() string { return e.Code }

// ApplyRequest runs OnRequest across plugins in order. A nil hook result
// means "no change"; a returned error aborts with plugin_on_request_failed.
// Rewriting the URL's host aborts with plugin_url_changed regardless of
// which plugin did it.
func ApplyRequest(ctx *RequestContext, plugins []Plugin) (*RequestContext, error) {
	current := ctx
	for _, p := range plugins {
		before := current.URL
		next, err := callOnRequest(p, current)
		if err != nil {
			return ctx, &HookError{Code: fmt.Sprintf("plugin_on_request_failed:%s", p.Name())}
		}
		if next == nil {
			continue
		}
		if hostOf(next.URL) != hostOf(before) {
			return ctx, &HookError{Code: "plugin_url_changed"}
		}
		current = next
	}
	return current, nil
}

// ApplyResponse runs OnResponse across plugins in order.
func ApplyResponse(ctx *ResponseContext, plugins []Plugin) (*ResponseContext, error) {
	current := ctx
	for _, p := range plugins {
		next, err := callOnResponse(p, current)
		if err != nil {
			return ctx, &HookError{Code: fmt.Sprintf("plugin_on_response_failed:%s", p.Name())}
		}
		if next != nil {
			current = next
		}
	}
	return current, nil
}

// ApplyParse runs OnParse across plugins in order.
func ApplyParse(ctx *ParseContext, plugins []Plugin) (*ParseContext, error) {
	current := ctx
	for _, p := range plugins {
		next, err := callOnParse(p, current)
		if err != nil {
			return ctx, &HookError{Code: fmt.Sprintf("plugin_on_parse_failed:%s", p.Name())}
		}
		if next != nil {
			current = next
		}
	}
	return current, nil
}

// callOnRequest recovers a panicking hook the same way the reference
// implementation treats any exception: as a failed hook, not a crashed job.
func callOnRequest(p Plugin, ctx *RequestContext) (result *RequestContext, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("plugin panic: %v", r)
		}
	}()
	return p.OnRequest(ctx)
}

func callOnResponse(p Plugin, ctx *ResponseContext) (result *ResponseContext, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("plugin panic: %v", r)
		}
	}()
	return p.OnResponse(ctx)
}

func callOnParse(p Plugin, ctx *ParseContext) (result *ParseContext, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("plugin panic: %v", r)
		}
	}()
	return p.OnParse(ctx)
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Hostname()
}
