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

// Data types a selector's extracted value is coerced to.
const (
	DataTypeString = "string"
	DataTypeInt    = "int"
	DataTypeFloat  = "float"
	DataTypeBool   = "bool"
)

// Schema is a named extraction contract.
type Schema struct {
	ID          string
	Name        string
	Description *string
	Plugins     json.RawMessage
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// GetSchema fetches a schema by id.
func (q *Queries) GetSchema(ctx context.Context, id string) (Schema, error) {
	row := q.db.QueryRow(ctx, `
		SELECT id, name, description, plugins, created_at, updated_at FROM schemas WHERE id = $1
	`, id)
	var s Schema
	err := row.Scan(&s.ID, &s.Name, &s.Description, &s.Plugins, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Schema{}, ErrNotFound
	}
	if err != nil {
		return Schema{}, fmt.Errorf("scanning schema: %w", err)
	}
	return s, nil
}

// UpsertSchema creates or replaces a schema definition.
func (q *Queries) UpsertSchema(ctx context.Context, id, name string, description *string, plugins json.RawMessage) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO schemas (id, name, description, plugins)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, description = EXCLUDED.description, plugins = EXCLUDED.plugins, updated_at = now()
	`, id, name, description, plugins)
	if err != nil {
		return fmt.Errorf("upserting schema: %w", err)
	}
	return nil
}

// Selector is an active extraction directive.
type Selector struct {
	ID           uuid.UUID
	SchemaID     *string
	GroupName    *string
	Field        string
	Selector     string
	ItemSelector *string
	Attribute    *string
	DataType     string
	Required     bool
	Active       bool
	CreatedAt    time.Time
}

// ListActiveSelectors returns every active selector for a schema, ordered so
// that selectors sharing a group are adjacent.
func (q *Queries) ListActiveSelectors(ctx context.Context, schemaID string) ([]Selector, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, schema_id, group_name, field, selector, item_selector, attribute, data_type, required, active, created_at
		FROM selectors WHERE schema_id = $1 AND active = true
		ORDER BY group_name NULLS FIRST, field
	`, schemaID)
	if err != nil {
		return nil, fmt.Errorf("listing selectors: %w", err)
	}
	defer rows.Close()

	var out []Selector
	for rows.Next() {
		var s Selector
		if err := rows.Scan(&s.ID, &s.SchemaID, &s.GroupName, &s.Field, &s.Selector, &s.ItemSelector, &s.Attribute, &s.DataType, &s.Required, &s.Active, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning selector: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// CreateSelectorParams holds the fields for materializing a promoted selector.
type CreateSelectorParams struct {
	ID           uuid.UUID
	SchemaID     *string
	GroupName    *string
	Field        string
	Selector     string
	ItemSelector *string
	Attribute    *string
	DataType     string
	Required     bool
}

// CreateSelector inserts a new active selector (used both for manual
// authoring and for candidate promotion).
func (q *Queries) CreateSelector(ctx context.Context, p CreateSelectorParams) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO selectors (id, schema_id, group_name, field, selector, item_selector, attribute, data_type, required, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, true)
	`, p.ID, p.SchemaID, p.GroupName, p.Field, p.Selector, p.ItemSelector, p.Attribute, p.DataType, p.Required)
	if err != nil {
		return fmt.Errorf("creating selector: %w", err)
	}
	return nil
}

// SelectorCandidate is a proposed selector awaiting promotion.
type SelectorCandidate struct {
	ID            uuid.UUID
	SchemaID      *string
	GroupName     *string
	Field         string
	Selector      string
	ItemSelector  *string
	Attribute     *string
	DataType      string
	Required      bool
	SuccessCount  int
	PromotedAt    *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// FindCandidate looks up a candidate matching the full (schema, group, field,
// selector, item_selector, attribute) tuple the promotion invariant keys on.
func (q *Queries) FindCandidate(ctx context.Context, schemaID, groupName *string, field, selector string, itemSelector, attribute *string) (SelectorCandidate, error) {
	row := q.db.QueryRow(ctx, `
		SELECT id, schema_id, group_name, field, selector, item_selector, attribute, data_type, required, success_count, promoted_at, created_at, updated_at
		FROM selector_candidates
		WHERE schema_id IS NOT DISTINCT FROM $1
		  AND group_name IS NOT DISTINCT FROM $2
		  AND field = $3
		  AND selector = $4
		  AND item_selector IS NOT DISTINCT FROM $5
		  AND attribute IS NOT DISTINCT FROM $6
		  AND promoted_at IS NULL
	`, schemaID, groupName, field, selector, itemSelector, attribute)
	var c SelectorCandidate
	err := row.Scan(&c.ID, &c.SchemaID, &c.GroupName, &c.Field, &c.Selector, &c.ItemSelector, &c.Attribute, &c.DataType, &c.Required, &c.SuccessCount, &c.PromotedAt, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return SelectorCandidate{}, ErrNotFound
	}
	if err != nil {
		return SelectorCandidate{}, fmt.Errorf("scanning selector candidate: %w", err)
	}
	return c, nil
}

// CreateCandidateParams holds the fields for a freshly observed candidate.
type CreateCandidateParams struct {
	ID           uuid.UUID
	SchemaID     *string
	GroupName    *string
	Field        string
	Selector     string
	ItemSelector *string
	Attribute    *string
	DataType     string
	Required     bool
}

// CreateCandidate inserts a new candidate with success_count 1.
func (q *Queries) CreateCandidate(ctx context.Context, p CreateCandidateParams) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO selector_candidates (id, schema_id, group_name, field, selector, item_selector, attribute, data_type, required, success_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 1)
	`, p.ID, p.SchemaID, p.GroupName, p.Field, p.Selector, p.ItemSelector, p.Attribute, p.DataType, p.Required)
	if err != nil {
		return fmt.Errorf("creating selector candidate: %w", err)
	}
	return nil
}

// IncrementCandidateSuccess bumps the confirmation counter for a candidate.
func (q *Queries) IncrementCandidateSuccess(ctx context.Context, id uuid.UUID) (int, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE selector_candidates SET success_count = success_count + 1, updated_at = now()
		WHERE id = $1 RETURNING success_count
	`, id)
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("incrementing candidate success: %w", err)
	}
	return count, nil
}

// MarkCandidatePromoted stamps promoted_at once a candidate crosses the
// confirmation threshold and its matching Selector has been materialized.
func (q *Queries) MarkCandidatePromoted(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.Exec(ctx, `
		UPDATE selector_candidates SET promoted_at = now(), updated_at = now() WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("marking candidate promoted: %w", err)
	}
	return nil
}
