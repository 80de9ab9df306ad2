// Package proxy resolves the proxy a fetch should use for a given URL: a
// per-domain ProxyPolicy when one exists, otherwise the configured global
// default.
package proxy

import (
	"context"
	"fmt"
	"net/url"

	"github.com/proteus/scrapecore/internal/store"
)

// Decision sources, stamped for auditing per spec §4.5.
const (
	SourcePolicy  = "policy"
	SourceDefault = "default"
)

// Decision is the resolved proxy choice for one fetch.
type Decision struct {
	ProxyURL string // empty means direct (no proxy)
	Source   string
}

// Config holds the global fallback, normally sourced from internal/config.
type Config struct {
	DefaultMode string // direct|gateway
	GatewayURL  string
}

// Resolver looks up per-domain proxy policy and falls back to Config.
type Resolver struct {
	queries *store.Queries
	cfg     Config
}

// New builds a Resolver.
func New(queries *store.Queries, cfg Config) *Resolver {
	return &Resolver{queries: queries, cfg: cfg}
}

// ResolveURL derives the domain from rawURL and resolves its proxy decision.
// It satisfies pkg/identity.ProxyResolver.
func (r *Resolver) ResolveURL(ctx context.Context, rawURLOrDomain string) (string, error) {
	domain := rawURLOrDomain
	if u, err := url.Parse(rawURLOrDomain); err == nil && u.Hostname() != "" {
		domain = u.Hostname()
	}
	d, err := r.Resolve(ctx, domain)
	if err != nil {
		return "", err
	}
	return d.ProxyURL, nil
}

// Resolve returns the proxy Decision for domain.
func (r *Resolver) Resolve(ctx context.Context, domain string) (Decision, error) {
	policy, err := r.queries.GetProxyPolicy(ctx, domain)
	if err == nil && policy.Enabled {
		return r.fromPolicy(policy), nil
	}
	if err != nil && err != store.ErrNotFound {
		return Decision{}, fmt.Errorf("looking up proxy policy: %w", err)
	}
	return r.fromDefault(), nil
}

func (r *Resolver) fromPolicy(p store.ProxyPolicy) Decision {
	switch p.Mode {
	case store.ProxyModeDirect:
		return Decision{Source: SourcePolicy}
	case store.ProxyModeCustom:
		proxyURL := ""
		if p.ProxyURL != nil {
			proxyURL = *p.ProxyURL
		}
		return Decision{ProxyURL: proxyURL, Source: SourcePolicy}
	case store.ProxyModeGateway:
		return Decision{ProxyURL: r.cfg.GatewayURL, Source: SourcePolicy}
	default:
		return Decision{Source: SourcePolicy}
	}
}

func (r *Resolver) fromDefault() Decision {
	if r.cfg.DefaultMode == store.ProxyModeGateway && r.cfg.GatewayURL != "" {
		return Decision{ProxyURL: r.cfg.GatewayURL, Source: SourceDefault}
	}
	return Decision{Source: SourceDefault}
}
