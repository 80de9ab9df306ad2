// Package dispatcher pops job ids from the priority queues and routes each
// to its per-engine worker queue.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/proteus/scrapecore/internal/store"
	"github.com/proteus/scrapecore/pkg/coord"
	"github.com/proteus/scrapecore/pkg/engine"
)

// Dispatcher is a single-logical-instance background loop: pop by strict
// priority, normalize the job's engine against policy, and enqueue it on
// the right per-engine worker queue. Horizontally safe because the
// underlying pops are atomic.
type Dispatcher struct {
	queries  *store.Queries
	coord    *coord.Store
	policy   engine.PolicyConfig
	logger   *slog.Logger
	interval time.Duration
}

func New(queries *store.Queries, coordStore *coord.Store, policy engine.PolicyConfig, logger *slog.Logger, interval time.Duration) *Dispatcher {
	return &Dispatcher{queries: queries, coord: coordStore, policy: policy, logger: logger, interval: interval}
}

// Run polls the priority queues until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	d.logger.Info("dispatcher started", "interval", d.interval)
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("dispatcher stopped")
			return
		case <-ticker.C:
			for {
				dispatched, err := d.tick(ctx)
				if err != nil {
					d.logger.Error("dispatch tick", "error", err)
					break
				}
				if !dispatched {
					break
				}
			}
		}
	}
}

// tick pops and dispatches at most one job. It returns (false, nil) when
// every priority queue is empty.
func (d *Dispatcher) tick(ctx context.Context) (bool, error) {
	rawID, err := d.coord.PopPriority(ctx)
	if err != nil {
		return false, fmt.Errorf("popping priority queue: %w", err)
	}
	if rawID == "" {
		return false, nil
	}

	jobID, err := uuid.Parse(rawID)
	if err != nil {
		d.logger.Error("dispatcher popped malformed job id", "raw_id", rawID, "error", err)
		return true, nil
	}

	job, err := d.queries.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			d.logger.Warn("dispatcher dropped missing job", "job_id", jobID)
			return true, nil
		}
		return false, fmt.Errorf("loading job %s: %w", jobID, err)
	}

	requested := ""
	if job.Engine != nil {
		requested = *job.Engine
	}
	chosen := normalizeEngine(requested, job.URL, d.policy)

	if err := d.queries.SetJobEngine(ctx, jobID, chosen); err != nil {
		return false, fmt.Errorf("assigning engine to job %s: %w", jobID, err)
	}
	if err := d.coord.PushEngine(ctx, chosen, jobID.String()); err != nil {
		return false, fmt.Errorf("enqueuing job %s on engine %s: %w", jobID, chosen, err)
	}

	d.logger.Info("job dispatched", "job_id", jobID, "engine", chosen, "requested_engine", requested)
	return true, nil
}

// normalizeEngine keeps requested if it's allowed for rawURL under policy,
// otherwise returns the first allowed tier starting from engine.Tiers[0].
func normalizeEngine(requested, rawURL string, policy engine.PolicyConfig) string {
	if requested != "" && policy.Allowed(requested, rawURL) {
		return requested
	}
	for _, tier := range engine.Tiers {
		if policy.Allowed(tier, rawURL) {
			return tier
		}
	}
	return engine.Tiers[0]
}
