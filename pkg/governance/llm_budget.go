package governance

import "context"

// LLMBudgetConfig bounds oracle (extraction LLM) calls per job and per tenant.
type LLMBudgetConfig struct {
	JobMax       int64
	JobWindowSec int64
	TenantMax    int64
	TenantWindowSec int64
}

// ReasonLLMBudgetExceeded is returned when either the per-job or per-tenant
// oracle call budget has been exhausted.
const ReasonLLMBudgetExceeded = "llm_budget_exceeded"

// CheckLLMBudget increments both the per-job and per-tenant oracle call
// counters and denies with ReasonLLMBudgetExceeded if either now exceeds its
// configured max within its window.
func (g *Guard) CheckLLMBudget(ctx context.Context, jobID, tenant string, cfg LLMBudgetConfig) error {
	jobExceeded, err := g.store.CheckLLMJobBudget(ctx, jobID, cfg.JobWindowSec, cfg.JobMax)
	if err != nil {
		return err
	}

	tenantExceeded, err := g.store.CheckLLMTenantBudget(ctx, tenant, cfg.TenantWindowSec, cfg.TenantMax)
	if err != nil {
		return err
	}

	if jobExceeded || tenantExceeded {
		return &DenyError{Reason: ReasonLLMBudgetExceeded}
	}
	return nil
}
