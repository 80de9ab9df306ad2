package extract

import (
	"fmt"

	"github.com/proteus/scrapecore/internal/store"
)

// NormalizeData applies the same required/coercion rules Extract applies to
// parsed HTML to already-structured data (e.g. returned by the extraction
// oracle), producing the same missing:/type: error codes.
func NormalizeData(data map[string]any, selectors []store.Selector) (map[string]any, []string) {
	flat, groups, groupOrder := partition(selectors)
	out := map[string]any{}
	var errs []string

	for _, sel := range flat {
		value, present := data[sel.Field]
		if !present || value == nil || value == "" {
			if sel.Required {
				errs = append(errs, fmt.Sprintf("missing:%s", sel.Field))
			}
			continue
		}
		coerced, ok := coerceAny(value, sel.DataType)
		if !ok {
			errs = append(errs, fmt.Sprintf("type:%s", sel.Field))
			continue
		}
		out[sel.Field] = coerced
	}

	for _, groupName := range groupOrder {
		members := groups[groupName]
		raw, present := data[groupName]
		if !present {
			for _, m := range members {
				if m.Required {
					errs = append(errs, fmt.Sprintf("missing:%s.%s:0", groupName, m.Field))
				}
			}
			continue
		}
		items, ok := raw.([]any)
		if !ok {
			if asMaps, ok2 := raw.([]map[string]any); ok2 {
				items = make([]any, len(asMaps))
				for i, m := range asMaps {
					items[i] = m
				}
			}
		}

		var normalizedItems []map[string]any
		for idx, rawItem := range items {
			itemMap, ok := rawItem.(map[string]any)
			if !ok {
				continue
			}
			record := map[string]any{}
			for _, m := range members {
				value, present := itemMap[m.Field]
				if !present || value == nil || value == "" {
					if m.Required {
						errs = append(errs, fmt.Sprintf("missing:%s.%s:%d", groupName, m.Field, idx))
					}
					continue
				}
				coerced, ok := coerceAny(value, m.DataType)
				if !ok {
					errs = append(errs, fmt.Sprintf("type:%s.%s:%d", groupName, m.Field, idx))
					continue
				}
				record[m.Field] = coerced
			}
			normalizedItems = append(normalizedItems, record)
		}
		out[groupName] = normalizedItems
	}

	return out, errs
}

// coerceAny applies coerce's string-based rules when value is a string, and
// otherwise passes already-typed values through unchanged (the oracle may
// return native JSON numbers/bools).
func coerceAny(value any, dataType string) (any, bool) {
	if s, ok := value.(string); ok {
		return coerce(s, dataType)
	}
	switch dataType {
	case store.DataTypeInt:
		switch v := value.(type) {
		case int64:
			return v, true
		case int:
			return int64(v), true
		case float64:
			return int64(v), true
		}
		return nil, false
	case store.DataTypeFloat:
		if f, ok := value.(float64); ok {
			return f, true
		}
		return nil, false
	case store.DataTypeBool:
		if b, ok := value.(bool); ok {
			return b, true
		}
		return nil, false
	default:
		return value, true
	}
}
