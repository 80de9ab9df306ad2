package coord

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Binding maps a (tenant, domain) pair to the identity and proxy that should
// keep serving it, so anti-bot fingerprinting sees session continuity.
type Binding struct {
	IdentityID string `json:"identity_id"`
	ProxyURL   string `json:"proxy_url,omitempty"`
}

func bindingKey(tenant, domain string) string {
	return fmt.Sprintf("identity:binding:%s:%s", tenant, domain)
}

// GetBinding fetches the current binding for (tenant, domain), if any.
func (s *Store) GetBinding(ctx context.Context, tenant, domain string) (*Binding, error) {
	raw, err := s.rdb.Get(ctx, bindingKey(tenant, domain)).Result()
	if err != nil {
		if isRedisNil(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting identity binding: %w", err)
	}

	var b Binding
	if err := json.Unmarshal([]byte(raw), &b); err != nil {
		return nil, fmt.Errorf("unmarshalling identity binding: %w", err)
	}
	return &b, nil
}

// SetBinding stores (or refreshes) the binding for (tenant, domain) with the
// configured TTL.
func (s *Store) SetBinding(ctx context.Context, tenant, domain string, b Binding, ttl time.Duration) error {
	raw, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("marshalling identity binding: %w", err)
	}
	if err := s.rdb.Set(ctx, bindingKey(tenant, domain), raw, ttl).Err(); err != nil {
		return fmt.Errorf("setting identity binding: %w", err)
	}
	return nil
}

// ClearBinding releases the binding for (tenant, domain), forcing the next
// acquisition to rotate identity and proxy.
func (s *Store) ClearBinding(ctx context.Context, tenant, domain string) error {
	if err := s.rdb.Del(ctx, bindingKey(tenant, domain)).Err(); err != nil {
		return fmt.Errorf("clearing identity binding: %w", err)
	}
	return nil
}
