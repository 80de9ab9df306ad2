package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// GetTenantPlugins fetches the per-tenant plugin list as raw JSON (a list of
// plugin names in execution order). Returns ErrNotFound if the tenant has
// never had a plugin list configured — callers should then fall back to the
// schema-level or global default chain.
func (q *Queries) GetTenantPlugins(ctx context.Context, tenant string) (json.RawMessage, error) {
	row := q.db.QueryRow(ctx, `SELECT plugins FROM tenant_plugins WHERE tenant = $1`, tenant)
	var plugins json.RawMessage
	err := row.Scan(&plugins)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning tenant plugins: %w", err)
	}
	return plugins, nil
}

// SetTenantPlugins creates or replaces the plugin list for a tenant.
func (q *Queries) SetTenantPlugins(ctx context.Context, tenant string, plugins json.RawMessage) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO tenant_plugins (tenant, plugins)
		VALUES ($1, $2)
		ON CONFLICT (tenant) DO UPDATE SET plugins = EXCLUDED.plugins, updated_at = now()
	`, tenant, plugins)
	if err != nil {
		return fmt.Errorf("setting tenant plugins: %w", err)
	}
	return nil
}
