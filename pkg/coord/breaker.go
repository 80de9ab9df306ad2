package coord

import (
	"context"
	"fmt"
)

// IsBreakerOpen reports whether the domain's circuit is currently open.
func (s *Store) IsBreakerOpen(ctx context.Context, domain string) (bool, error) {
	n, err := s.rdb.Exists(ctx, fmt.Sprintf("breaker:%s:open", domain)).Result()
	if err != nil {
		return false, fmt.Errorf("checking breaker open flag: %w", err)
	}
	return n == 1, nil
}

// RecordBreakerFailure increments the domain's failure counter (with TTL
// window_sec on first increment) and opens the breaker for cooldown_sec once
// the counter reaches threshold. Returns the new failure count and whether
// this call opened the breaker.
func (s *Store) RecordBreakerFailure(ctx context.Context, domain string, windowSec, threshold, cooldownSec int64) (count int64, opened bool, err error) {
	failuresKey := fmt.Sprintf("breaker:%s:failures", domain)
	openKey := fmt.Sprintf("breaker:%s:open", domain)

	res, err := s.breakerRecordFail.Run(ctx, s.rdb, []string{failuresKey, openKey}, windowSec, threshold, cooldownSec).Result()
	if err != nil {
		return 0, false, fmt.Errorf("running breaker script: %w", err)
	}

	vals, ok := res.([]interface{})
	if !ok || len(vals) != 2 {
		return 0, false, fmt.Errorf("unexpected breaker script result: %v", res)
	}

	count, _ = vals[0].(int64)
	openedInt, _ := vals[1].(int64)
	return count, openedInt == 1, nil
}
