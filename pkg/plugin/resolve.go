package plugin

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/proteus/scrapecore/internal/store"
)

// NameSource resolves the tenant- and schema-level plugin lists from the
// persistent store.
type NameSource struct {
	queries *store.Queries
}

// NewNameSource builds a NameSource.
func NewNameSource(queries *store.Queries) *NameSource {
	return &NameSource{queries: queries}
}

// ResolveNames builds the ordered, normalized plugin name list: configured
// global defaults, then the tenant's list, then the schema's list.
// Duplicates are kept; Registry.LoadMany drops them when loading.
func (s *NameSource) ResolveNames(ctx context.Context, defaults []string, tenant, schemaID string) ([]string, error) {
	names := append([]string{}, defaults...)

	if tenant != "" {
		raw, err := s.queries.GetTenantPlugins(ctx, tenant)
		if err != nil && err != store.ErrNotFound {
			return nil, fmt.Errorf("fetching tenant plugins: %w", err)
		}
		if err == nil {
			tenantNames, err := decodePluginList(raw)
			if err != nil {
				return nil, err
			}
			names = append(names, tenantNames...)
		}
	}

	if schemaID != "" {
		schema, err := s.queries.GetSchema(ctx, schemaID)
		if err != nil && err != store.ErrNotFound {
			return nil, fmt.Errorf("fetching schema: %w", err)
		}
		if err == nil && len(schema.Plugins) > 0 {
			schemaNames, err := decodePluginList(schema.Plugins)
			if err != nil {
				return nil, err
			}
			names = append(names, schemaNames...)
		}
	}

	return normalizeNames(names), nil
}

// decodePluginList accepts either a JSON array of names or a JSON string of
// comma-separated names.
func decodePluginList(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}

	var csv string
	if err := json.Unmarshal(raw, &csv); err == nil {
		return parseCSV(csv), nil
	}

	return nil, fmt.Errorf("unrecognized plugin list encoding")
}

func parseCSV(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}
