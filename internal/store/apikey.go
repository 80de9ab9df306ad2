package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/proteus/scrapecore/internal/auth"
)

// GetAPIKeyByHash implements auth.APIKeyStore.
func (q *Queries) GetAPIKeyByHash(ctx context.Context, hash string) (auth.APIKeyRecord, error) {
	row := q.db.QueryRow(ctx, `
		SELECT id, tenant_id, key_prefix, expires_at FROM api_keys WHERE key_hash = $1
	`, hash)
	var rec auth.APIKeyRecord
	err := row.Scan(&rec.ID, &rec.TenantID, &rec.KeyPrefix, &rec.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return auth.APIKeyRecord{}, ErrNotFound
	}
	if err != nil {
		return auth.APIKeyRecord{}, fmt.Errorf("scanning api key: %w", err)
	}
	return rec, nil
}

// TouchAPIKeyLastUsed implements auth.APIKeyStore.
func (q *Queries) TouchAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.Exec(ctx, `UPDATE api_keys SET last_used_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("touching api key last used: %w", err)
	}
	return nil
}

// CreateAPIKeyParams holds the fields for provisioning a new tenant API key.
type CreateAPIKeyParams struct {
	ID        uuid.UUID
	TenantID  uuid.UUID
	KeyHash   string
	KeyPrefix string
	ExpiresAt *time.Time
}

// CreateAPIKey inserts a new API key row. Only the hash is stored; the raw
// key is returned to the caller once and never persisted.
func (q *Queries) CreateAPIKey(ctx context.Context, p CreateAPIKeyParams) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO api_keys (id, tenant_id, key_hash, key_prefix, expires_at)
		VALUES ($1, $2, $3, $4, $5)
	`, p.ID, p.TenantID, p.KeyHash, p.KeyPrefix, p.ExpiresAt)
	if err != nil {
		return fmt.Errorf("creating api key: %w", err)
	}
	return nil
}
