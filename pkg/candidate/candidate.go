// Package candidate implements the selector candidate registry: it records
// oracle-suggested selectors and promotes one to active once it has been
// confirmed a configured number of times.
package candidate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/proteus/scrapecore/internal/store"
	"github.com/proteus/scrapecore/internal/telemetry"
)

// Config tunes the registry.
type Config struct {
	PromotionThreshold int
}

// Registry records oracle selector hints and promotes confirmed candidates.
type Registry struct {
	queries *store.Queries
	cfg     Config
}

func New(queries *store.Queries, cfg Config) *Registry {
	if cfg.PromotionThreshold <= 0 {
		cfg.PromotionThreshold = 3
	}
	return &Registry{queries: queries, cfg: cfg}
}

// Hint is one oracle-suggested selector for a single field or group field,
// keyed the way the oracle response maps it: "<field>" or "<group>.<field>".
type Hint struct {
	Key          string
	Selector     string
	ItemSelector *string
	Attribute    *string
	DataType     string
	Required     bool
}

// splitKey breaks a "<field>" or "<group>.<field>" hint key into its group
// name (nil for flat fields) and field name.
func splitKey(key string) (groupName *string, field string) {
	idx := strings.Index(key, ".")
	if idx < 0 {
		return nil, key
	}
	group := key[:idx]
	return &group, key[idx+1:]
}

// RecordAll records every hint from one oracle recovery against a schema,
// then runs the promotion pass over the candidates it touched.
func (r *Registry) RecordAll(ctx context.Context, schemaID string, hints []Hint) error {
	for _, h := range hints {
		if err := r.record(ctx, schemaID, h); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) record(ctx context.Context, schemaID string, h Hint) error {
	groupName, field := splitKey(h.Key)
	sid := schemaID

	existing, err := r.queries.FindCandidate(ctx, &sid, groupName, field, h.Selector, h.ItemSelector, h.Attribute)
	switch {
	case errors.Is(err, store.ErrNotFound):
		if err := r.queries.CreateCandidate(ctx, store.CreateCandidateParams{
			ID:           uuid.New(),
			SchemaID:     &sid,
			GroupName:    groupName,
			Field:        field,
			Selector:     h.Selector,
			ItemSelector: h.ItemSelector,
			Attribute:    h.Attribute,
			DataType:     h.DataType,
			Required:     h.Required,
		}); err != nil {
			return fmt.Errorf("creating candidate: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("finding candidate: %w", err)
	}

	count, err := r.queries.IncrementCandidateSuccess(ctx, existing.ID)
	if err != nil {
		return fmt.Errorf("incrementing candidate success: %w", err)
	}

	if count >= r.cfg.PromotionThreshold {
		return r.promote(ctx, schemaID, existing)
	}
	return nil
}

// promote materializes a confirmed candidate into an active Selector and
// marks the candidate promoted. It is idempotent against a concurrent
// promotion racing in: re-finding the candidate afterward returns
// ErrNotFound (promoted_at excludes it from FindCandidate's WHERE clause),
// so a duplicate active Selector is the only failure mode, and the caller
// treats this path as best-effort self-healing rather than a strict
// invariant enforced with locking.
func (r *Registry) promote(ctx context.Context, schemaID string, c store.SelectorCandidate) error {
	if err := r.queries.CreateSelector(ctx, store.CreateSelectorParams{
		ID:           uuid.New(),
		SchemaID:     c.SchemaID,
		GroupName:    c.GroupName,
		Field:        c.Field,
		Selector:     c.Selector,
		ItemSelector: c.ItemSelector,
		Attribute:    c.Attribute,
		DataType:     c.DataType,
		Required:     c.Required,
	}); err != nil {
		return fmt.Errorf("materializing promoted selector: %w", err)
	}
	if err := r.queries.MarkCandidatePromoted(ctx, c.ID); err != nil {
		return fmt.Errorf("marking candidate promoted: %w", err)
	}
	telemetry.CandidatesPromotedTotal.WithLabelValues(schemaID).Inc()
	return nil
}
