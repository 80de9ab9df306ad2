package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/proteus/scrapecore/internal/audit"
)

// CreateAuditLogEntry implements audit.Store.
func (q *Queries) CreateAuditLogEntry(ctx context.Context, e audit.Entry) error {
	id, err := uuid.NewRandom()
	if err != nil {
		return fmt.Errorf("generating audit entry id: %w", err)
	}

	var apiKeyID *uuid.UUID
	if e.APIKeyID != uuid.Nil {
		apiKeyID = &e.APIKeyID
	}

	_, err = q.db.Exec(ctx, `
		INSERT INTO audit_log (id, tenant_id, api_key_id, action, resource, resource_id, detail, ip_address, user_agent, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, id, e.TenantID, apiKeyID, e.Action, e.Resource, e.ResourceID, e.Detail, e.IPAddress, e.UserAgent, e.OccurredAt)
	if err != nil {
		return fmt.Errorf("inserting audit log entry: %w", err)
	}
	return nil
}

// ListAuditLog implements audit.ListStore.
func (q *Queries) ListAuditLog(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]audit.Entry, error) {
	rows, err := q.db.Query(ctx, `
		SELECT tenant_id, api_key_id, action, resource, resource_id, detail, ip_address, user_agent, occurred_at
		FROM audit_log WHERE tenant_id = $1
		ORDER BY occurred_at DESC
		LIMIT $2 OFFSET $3
	`, tenantID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing audit log: %w", err)
	}
	defer rows.Close()

	var out []audit.Entry
	for rows.Next() {
		var e audit.Entry
		var apiKeyID *uuid.UUID
		if err := rows.Scan(&e.TenantID, &apiKeyID, &e.Action, &e.Resource, &e.ResourceID, &e.Detail, &e.IPAddress, &e.UserAgent, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("scanning audit log entry: %w", err)
		}
		if apiKeyID != nil {
			e.APIKeyID = *apiKeyID
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
