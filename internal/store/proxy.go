package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Proxy resolution modes.
const (
	ProxyModeDirect = "direct"
	ProxyModeGateway = "gateway"
	ProxyModeCustom  = "custom"
)

// ProxyPolicy maps a domain to a proxy resolution mode.
type ProxyPolicy struct {
	ID        uuid.UUID
	Domain    string
	Mode      string
	ProxyURL  *string
	Enabled   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// GetProxyPolicy fetches the policy for a domain, if one has been configured.
func (q *Queries) GetProxyPolicy(ctx context.Context, domain string) (ProxyPolicy, error) {
	row := q.db.QueryRow(ctx, `
		SELECT id, domain, mode, proxy_url, enabled, created_at, updated_at
		FROM proxy_policies WHERE domain = $1
	`, domain)
	var p ProxyPolicy
	err := row.Scan(&p.ID, &p.Domain, &p.Mode, &p.ProxyURL, &p.Enabled, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ProxyPolicy{}, ErrNotFound
	}
	if err != nil {
		return ProxyPolicy{}, fmt.Errorf("scanning proxy policy: %w", err)
	}
	return p, nil
}

// UpsertProxyPolicy creates or replaces the policy for a domain — unique per domain.
func (q *Queries) UpsertProxyPolicy(ctx context.Context, id uuid.UUID, domain, mode string, proxyURL *string, enabled bool) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO proxy_policies (id, domain, mode, proxy_url, enabled)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (domain) DO UPDATE
		SET mode = EXCLUDED.mode, proxy_url = EXCLUDED.proxy_url, enabled = EXCLUDED.enabled, updated_at = now()
	`, id, domain, mode, proxyURL, enabled)
	if err != nil {
		return fmt.Errorf("upserting proxy policy: %w", err)
	}
	return nil
}
