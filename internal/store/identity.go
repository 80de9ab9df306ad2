package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Identity is a rotating browsing persona scoped to a tenant. Cookies and
// storage state are sealed client-side (pkg/identity) before they ever reach
// this package — the store only persists ciphertext.
type Identity struct {
	ID                    uuid.UUID
	Tenant                string
	Label                 *string
	Fingerprint           json.RawMessage
	CookiesEncrypted      *string
	StorageStateEncrypted *string
	Active                bool
	UseCount              int
	FailureCount          int
	LastUsedAt            *time.Time
	LastFailedAt          *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// ListActiveIdentities returns every active identity for a tenant, candidates
// for acquisition by the identity manager.
func (q *Queries) ListActiveIdentities(ctx context.Context, tenant string) ([]Identity, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, tenant, label, fingerprint, cookies_encrypted, storage_state_encrypted,
		       active, use_count, failure_count, last_used_at, last_failed_at, created_at, updated_at
		FROM identities WHERE tenant = $1 AND active = true
		ORDER BY use_count ASC
	`, tenant)
	if err != nil {
		return nil, fmt.Errorf("listing identities: %w", err)
	}
	defer rows.Close()

	var out []Identity
	for rows.Next() {
		var id Identity
		if err := rows.Scan(&id.ID, &id.Tenant, &id.Label, &id.Fingerprint, &id.CookiesEncrypted, &id.StorageStateEncrypted,
			&id.Active, &id.UseCount, &id.FailureCount, &id.LastUsedAt, &id.LastFailedAt, &id.CreatedAt, &id.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning identity: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// GetIdentity fetches a single identity by id.
func (q *Queries) GetIdentity(ctx context.Context, id uuid.UUID) (Identity, error) {
	row := q.db.QueryRow(ctx, `
		SELECT id, tenant, label, fingerprint, cookies_encrypted, storage_state_encrypted,
		       active, use_count, failure_count, last_used_at, last_failed_at, created_at, updated_at
		FROM identities WHERE id = $1
	`, id)
	var rec Identity
	err := row.Scan(&rec.ID, &rec.Tenant, &rec.Label, &rec.Fingerprint, &rec.CookiesEncrypted, &rec.StorageStateEncrypted,
		&rec.Active, &rec.UseCount, &rec.FailureCount, &rec.LastUsedAt, &rec.LastFailedAt, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Identity{}, ErrNotFound
	}
	if err != nil {
		return Identity{}, fmt.Errorf("scanning identity: %w", err)
	}
	return rec, nil
}

// RecordIdentityUse increments use_count and stamps last_used_at on acquisition.
func (q *Queries) RecordIdentityUse(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.Exec(ctx, `
		UPDATE identities SET use_count = use_count + 1, last_used_at = now(), updated_at = now() WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("recording identity use: %w", err)
	}
	return nil
}

// RecordIdentityFailure increments failure_count and stamps last_failed_at.
// The caller deactivates the identity once failure_count reaches the
// configured threshold.
func (q *Queries) RecordIdentityFailure(ctx context.Context, id uuid.UUID) (int, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE identities SET failure_count = failure_count + 1, last_failed_at = now(), updated_at = now()
		WHERE id = $1 RETURNING failure_count
	`, id)
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("recording identity failure: %w", err)
	}
	return count, nil
}

// DeactivateIdentity retires an identity after repeated failures.
func (q *Queries) DeactivateIdentity(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.Exec(ctx, `
		UPDATE identities SET active = false, updated_at = now() WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("deactivating identity: %w", err)
	}
	return nil
}

// UpdateIdentityCookies persists reconciled cookie/storage-state ciphertext.
func (q *Queries) UpdateIdentityCookies(ctx context.Context, id uuid.UUID, cookiesEncrypted, storageStateEncrypted *string) error {
	_, err := q.db.Exec(ctx, `
		UPDATE identities SET cookies_encrypted = $2, storage_state_encrypted = $3, updated_at = now() WHERE id = $1
	`, id, cookiesEncrypted, storageStateEncrypted)
	if err != nil {
		return fmt.Errorf("updating identity cookies: %w", err)
	}
	return nil
}

// CreateIdentityParams holds the fields for provisioning a new persona.
type CreateIdentityParams struct {
	ID          uuid.UUID
	Tenant      string
	Label       *string
	Fingerprint json.RawMessage
}

// CreateIdentity provisions a new active identity.
func (q *Queries) CreateIdentity(ctx context.Context, p CreateIdentityParams) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO identities (id, tenant, label, fingerprint, active, use_count, failure_count)
		VALUES ($1, $2, $3, $4, true, 0, 0)
	`, p.ID, p.Tenant, p.Label, p.Fingerprint)
	if err != nil {
		return fmt.Errorf("creating identity: %w", err)
	}
	return nil
}
