package coord

import (
	"context"
	"fmt"
	"strconv"
)

// checkBudget runs the generic rolling-window counter increment against key,
// returning the new value and whether it now exceeds max.
func (s *Store) checkBudget(ctx context.Context, key string, windowSec int64, max, increment float64) (float64, bool, error) {
	res, err := s.budgetCheck.Run(ctx, s.rdb, []string{key}, windowSec, max, increment).Result()
	if err != nil {
		return 0, false, fmt.Errorf("running budget script: %w", err)
	}

	vals, ok := res.([]interface{})
	if !ok || len(vals) != 2 {
		return 0, false, fmt.Errorf("unexpected budget script result: %v", res)
	}

	raw, _ := vals[0].(string)
	newValue, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false, fmt.Errorf("parsing budget value %q: %w", raw, err)
	}

	exceededInt, _ := vals[1].(int64)
	return newValue, exceededInt == 1, nil
}

// CheckLLMJobBudget increments the per-job oracle call counter and reports
// whether it now exceeds the configured per-job max within windowSec.
func (s *Store) CheckLLMJobBudget(ctx context.Context, jobID string, windowSec int64, max int64) (bool, error) {
	_, exceeded, err := s.checkBudget(ctx, fmt.Sprintf("llm:job:%s", jobID), windowSec, float64(max), 1)
	return exceeded, err
}

// CheckLLMTenantBudget increments the per-tenant oracle call counter and
// reports whether it now exceeds the configured per-tenant max.
func (s *Store) CheckLLMTenantBudget(ctx context.Context, tenant string, windowSec int64, max int64) (bool, error) {
	_, exceeded, err := s.checkBudget(ctx, fmt.Sprintf("llm:tenant:%s", tenant), windowSec, float64(max), 1)
	return exceeded, err
}

// CheckExternalCallBudget increments the external-engine call counter for a
// tenant and reports whether it now exceeds the configured call budget.
func (s *Store) CheckExternalCallBudget(ctx context.Context, tenant string, windowSec int64, maxCalls int64) (bool, error) {
	_, exceeded, err := s.checkBudget(ctx, fmt.Sprintf("external:tenant:%s:calls", tenant), windowSec, float64(maxCalls), 1)
	return exceeded, err
}

// CheckExternalCostBudget increments the external-engine cost counter for a
// tenant by cost and reports whether it now exceeds the configured budget.
func (s *Store) CheckExternalCostBudget(ctx context.Context, tenant string, windowSec int64, maxCost, cost float64) (bool, error) {
	_, exceeded, err := s.checkBudget(ctx, fmt.Sprintf("external:tenant:%s:cost", tenant), windowSec, maxCost, cost)
	return exceeded, err
}

// RecordExternalBreakerFailure mirrors RecordBreakerFailure but under the
// external-API breaker's own key namespace, so an external provider outage
// never trips the ordinary per-domain breaker used by the fetch engines.
func (s *Store) RecordExternalBreakerFailure(ctx context.Context, domain string, windowSec, threshold, cooldownSec int64) (count int64, opened bool, err error) {
	failuresKey := fmt.Sprintf("external:breaker:%s:failures", domain)
	openKey := fmt.Sprintf("external:breaker:%s:open", domain)

	res, err := s.breakerRecordFail.Run(ctx, s.rdb, []string{failuresKey, openKey}, windowSec, threshold, cooldownSec).Result()
	if err != nil {
		return 0, false, fmt.Errorf("running external breaker script: %w", err)
	}

	vals, ok := res.([]interface{})
	if !ok || len(vals) != 2 {
		return 0, false, fmt.Errorf("unexpected external breaker script result: %v", res)
	}

	count, _ = vals[0].(int64)
	openedInt, _ := vals[1].(int64)
	return count, openedInt == 1, nil
}

// IsExternalBreakerOpen reports whether the external-API breaker for domain
// is currently open.
func (s *Store) IsExternalBreakerOpen(ctx context.Context, domain string) (bool, error) {
	n, err := s.rdb.Exists(ctx, fmt.Sprintf("external:breaker:%s:open", domain)).Result()
	if err != nil {
		return false, fmt.Errorf("checking external breaker open flag: %w", err)
	}
	return n == 1, nil
}
