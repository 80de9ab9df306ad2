// Package identity selects, binds, and decays the rotating browsing personas
// (fingerprint + cookies + storage state) that engines present to target
// sites. Cookies and storage state are sealed with Cipher before they ever
// reach the persistent store.
package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/proteus/scrapecore/internal/store"
	"github.com/proteus/scrapecore/pkg/coord"
)

// Fingerprint is the persona's client-visible surface: user agent, viewport,
// locale, timezone, extra headers, and permission grants presented to the
// target site and to the browser engine.
type Fingerprint struct {
	UserAgent   string            `json:"user_agent"`
	Viewport    [2]int            `json:"viewport"`
	Locale      string            `json:"locale"`
	Timezone    string            `json:"timezone"`
	Headers     map[string]string `json:"headers,omitempty"`
	Permissions []string          `json:"permissions,omitempty"`
}

// Cookie is one entry in a reconciled cookie set, keyed by (Name, Domain, Path).
type Cookie struct {
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Domain   string    `json:"domain"`
	Path     string    `json:"path"`
	Expires  time.Time `json:"expires,omitempty"`
	Secure   bool      `json:"secure,omitempty"`
	HTTPOnly bool      `json:"http_only,omitempty"`
}

// Config tunes identity selection decay and lifecycle thresholds, normally
// sourced from internal/config.
type Config struct {
	BindingTTL    time.Duration
	DecayPerHour  float64
	FailThreshold int64
}

// ProxyResolver supplies the proxy URL to bind alongside a freshly acquired
// identity. pkg/proxy.Resolver.ResolveURL satisfies this signature.
type ProxyResolver func(ctx context.Context, domain string) (proxyURL string, err error)

// Manager selects and rotates identities for outbound fetches.
type Manager struct {
	queries *store.Queries
	coord   *coord.Store
	cipher  *Cipher
	cfg     Config
}

// New builds a Manager. cipher may be nil if no IDENTITY_CIPHER_KEY is
// configured — cookie reconciliation then fails closed with ErrKeyMissing.
func New(queries *store.Queries, coordStore *coord.Store, cipher *Cipher, cfg Config) *Manager {
	return &Manager{queries: queries, coord: coordStore, cipher: cipher, cfg: cfg}
}

// Acquire picks the least-decayed active identity for tenant and stamps its
// use. Selection key: (decayed_failures, last_used_at, use_count, created_at, id).
func (m *Manager) Acquire(ctx context.Context, tenant string) (*store.Identity, error) {
	candidates, err := m.queries.ListActiveIdentities(ctx, tenant)
	if err != nil {
		return nil, fmt.Errorf("listing identities: %w", err)
	}
	if len(candidates) == 0 {
		return nil, ErrNoIdentity
	}

	now := time.Now()
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		da, db := decayedFailures(a, now, m.cfg.DecayPerHour), decayedFailures(b, now, m.cfg.DecayPerHour)
		if da != db {
			return da < db
		}
		la, lb := lastUsedOrZero(a), lastUsedOrZero(b)
		if !la.Equal(lb) {
			return la.Before(lb)
		}
		if a.UseCount != b.UseCount {
			return a.UseCount < b.UseCount
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID.String() < b.ID.String()
	})

	chosen := candidates[0]
	if err := m.queries.RecordIdentityUse(ctx, chosen.ID); err != nil {
		return nil, fmt.Errorf("recording identity use: %w", err)
	}
	return &chosen, nil
}

// decayedFailures applies a linear per-hour decay to failure_count based on
// time elapsed since last_failed_at, floored at zero.
func decayedFailures(id store.Identity, now time.Time, decayPerHour float64) float64 {
	if id.LastFailedAt == nil {
		return float64(id.FailureCount)
	}
	hours := now.Sub(*id.LastFailedAt).Hours()
	decayed := float64(id.FailureCount) - decayPerHour*hours
	if decayed < 0 {
		return 0
	}
	return decayed
}

func lastUsedOrZero(id store.Identity) time.Time {
	if id.LastUsedAt == nil {
		return time.Time{}
	}
	return *id.LastUsedAt
}

// Assignment is what a caller binds to a fetch attempt.
type Assignment struct {
	Identity *store.Identity
	ProxyURL string
}

// AcquireForURL is the canonical entry point. It derives domain from rawURL
// and reuses any live (tenant, domain) binding; otherwise it acquires a
// fresh identity and proxy decision and stores a new binding.
func (m *Manager) AcquireForURL(ctx context.Context, rawURL, tenant string, resolveProxy ProxyResolver) (*Assignment, error) {
	domain := hostOf(rawURL)
	if m.cfg.BindingTTL <= 0 || domain == "" {
		id, err := m.Acquire(ctx, tenant)
		if err != nil {
			return nil, err
		}
		proxyURL, err := resolveProxy(ctx, domain)
		if err != nil {
			return nil, fmt.Errorf("resolving proxy: %w", err)
		}
		return &Assignment{Identity: id, ProxyURL: proxyURL}, nil
	}

	binding, err := m.coord.GetBinding(ctx, tenant, domain)
	if err != nil {
		return nil, fmt.Errorf("getting binding: %w", err)
	}
	if binding != nil {
		id, err := m.usableIdentity(ctx, binding.IdentityID)
		if err != nil {
			return nil, err
		}
		if id != nil {
			if err := m.coord.SetBinding(ctx, tenant, domain, *binding, m.cfg.BindingTTL); err != nil {
				return nil, fmt.Errorf("refreshing binding: %w", err)
			}
			return &Assignment{Identity: id, ProxyURL: binding.ProxyURL}, nil
		}
		if err := m.coord.ClearBinding(ctx, tenant, domain); err != nil {
			return nil, fmt.Errorf("clearing stale binding: %w", err)
		}
	}

	id, err := m.Acquire(ctx, tenant)
	if err != nil {
		return nil, err
	}
	proxyURL, err := resolveProxy(ctx, domain)
	if err != nil {
		return nil, fmt.Errorf("resolving proxy: %w", err)
	}

	newBinding := coord.Binding{IdentityID: id.ID.String(), ProxyURL: proxyURL}
	if err := m.coord.SetBinding(ctx, tenant, domain, newBinding, m.cfg.BindingTTL); err != nil {
		return nil, fmt.Errorf("storing binding: %w", err)
	}
	return &Assignment{Identity: id, ProxyURL: proxyURL}, nil
}

// usableIdentity returns the identity if it exists and is still active, nil
// (without error) if it has since been deactivated or deleted.
func (m *Manager) usableIdentity(ctx context.Context, rawID string) (*store.Identity, error) {
	id, err := uuid.Parse(rawID)
	if err != nil {
		return nil, nil
	}
	rec, err := m.queries.GetIdentity(ctx, id)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("fetching bound identity: %w", err)
	}
	if !rec.Active {
		return nil, nil
	}
	return &rec, nil
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// RecordFailure charges a ban-indicating error against identity, deactivating
// it once failure_count reaches the configured threshold, and releases the
// (tenant, domain) binding so the next attempt rotates.
func (m *Manager) RecordFailure(ctx context.Context, identityID uuid.UUID, tenant, domain, code string) error {
	if !IsBanIndicating(code) {
		return nil
	}

	count, err := m.queries.RecordIdentityFailure(ctx, identityID)
	if err != nil {
		return fmt.Errorf("recording identity failure: %w", err)
	}
	if int64(count) >= m.cfg.FailThreshold {
		if err := m.queries.DeactivateIdentity(ctx, identityID); err != nil {
			return fmt.Errorf("deactivating identity: %w", err)
		}
	}
	if domain != "" {
		if err := m.coord.ClearBinding(ctx, tenant, domain); err != nil {
			return fmt.Errorf("releasing binding: %w", err)
		}
	}
	return nil
}

// ReconcileCookies decrypts the identity's stored cookie set (if any), merges
// in fresh cookies keyed by (Name, Domain, Path), and persists the union
// sealed with Cipher.
func (m *Manager) ReconcileCookies(ctx context.Context, id store.Identity, fresh []Cookie) error {
	if m.cipher == nil {
		return ErrKeyMissing
	}

	existing, err := m.decodeCookies(id.CookiesEncrypted)
	if err != nil {
		return err
	}

	merged := mergeCookies(existing, fresh)

	payload, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("marshalling cookies: %w", err)
	}
	sealed, err := m.cipher.Seal(payload)
	if err != nil {
		return fmt.Errorf("sealing cookies: %w", err)
	}
	if err := m.queries.UpdateIdentityCookies(ctx, id.ID, &sealed, id.StorageStateEncrypted); err != nil {
		return fmt.Errorf("persisting cookies: %w", err)
	}
	return nil
}

// Cookies decrypts and returns an identity's current reconciled cookie set.
func (m *Manager) Cookies(id store.Identity) ([]Cookie, error) {
	if m.cipher == nil {
		return nil, ErrKeyMissing
	}
	return m.decodeCookies(id.CookiesEncrypted)
}

// StorageState decrypts an identity's stored browser storage state, if any.
func (m *Manager) StorageState(id store.Identity) (string, error) {
	if id.StorageStateEncrypted == nil || *id.StorageStateEncrypted == "" {
		return "", nil
	}
	if m.cipher == nil {
		return "", ErrKeyMissing
	}
	raw, err := m.cipher.Open(*id.StorageStateEncrypted)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// UpdateStorageState seals and persists a fresh browser storage state blob.
func (m *Manager) UpdateStorageState(ctx context.Context, id store.Identity, state string) error {
	if m.cipher == nil {
		return ErrKeyMissing
	}
	sealed, err := m.cipher.Seal([]byte(state))
	if err != nil {
		return fmt.Errorf("sealing storage state: %w", err)
	}
	if err := m.queries.UpdateIdentityCookies(ctx, id.ID, id.CookiesEncrypted, &sealed); err != nil {
		return fmt.Errorf("persisting storage state: %w", err)
	}
	return nil
}

// DecodeFingerprint unmarshals an identity's stored fingerprint JSON.
func DecodeFingerprint(raw json.RawMessage) (Fingerprint, error) {
	var fp Fingerprint
	if len(raw) == 0 {
		return fp, nil
	}
	if err := json.Unmarshal(raw, &fp); err != nil {
		return Fingerprint{}, fmt.Errorf("unmarshalling fingerprint: %w", err)
	}
	return fp, nil
}

func (m *Manager) decodeCookies(encrypted *string) ([]Cookie, error) {
	if encrypted == nil || *encrypted == "" {
		return nil, nil
	}
	raw, err := m.cipher.Open(*encrypted)
	if err != nil {
		return nil, err
	}
	var cookies []Cookie
	if err := json.Unmarshal(raw, &cookies); err != nil {
		return nil, fmt.Errorf("unmarshalling cookies: %w", err)
	}
	return cookies, nil
}

// mergeCookies unions fresh into existing by (Name, Domain, Path), with
// fresh values winning on conflict.
func mergeCookies(existing, fresh []Cookie) []Cookie {
	type key struct{ name, domain, path string }
	byKey := make(map[key]Cookie, len(existing)+len(fresh))
	order := make([]key, 0, len(existing)+len(fresh))

	for _, c := range existing {
		k := key{c.Name, c.Domain, c.Path}
		if _, ok := byKey[k]; !ok {
			order = append(order, k)
		}
		byKey[k] = c
	}
	for _, c := range fresh {
		k := key{c.Name, c.Domain, c.Path}
		if _, ok := byKey[k]; !ok {
			order = append(order, k)
		}
		byKey[k] = c
	}

	merged := make([]Cookie, 0, len(order))
	for _, k := range order {
		merged = append(merged, byKey[k])
	}
	return merged
}
