package coord

import (
	"context"
	"fmt"
	"time"
)

// CheckUIRateLimit increments the ui:rate:<scope>:<actor> counter and
// reports whether the actor is still within maxCalls for the window.
func (s *Store) CheckUIRateLimit(ctx context.Context, scope, actor string, windowSec int64, maxCalls int64) (bool, error) {
	key := fmt.Sprintf("ui:rate:%s:%s", scope, actor)

	count, err := s.rdb.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("incrementing UI rate limit: %w", err)
	}
	if count == 1 {
		if err := s.rdb.Expire(ctx, key, time.Duration(windowSec)*time.Second).Err(); err != nil {
			return false, fmt.Errorf("setting UI rate limit TTL: %w", err)
		}
	}

	return count <= maxCalls, nil
}
