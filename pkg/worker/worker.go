// Package worker consumes one engine tier's queue and drives each job
// through the engine runner, interpreting its Outcome into the Job/
// JobAttempt state machine: success, non-escalatable failure, or
// escalation to the next allowed engine tier.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/proteus/scrapecore/internal/store"
	"github.com/proteus/scrapecore/internal/telemetry"
	"github.com/proteus/scrapecore/pkg/coord"
	"github.com/proteus/scrapecore/pkg/engine"
)

// Worker drives a single engine tier's queue. Concurrency across tiers and
// within a tier comes from running multiple Workers, one goroutine each —
// every Worker itself handles one job at a time.
type Worker struct {
	queries    *store.Queries
	coord      *coord.Store
	runner     *engine.Runner
	engineName string
	policy     engine.PolicyConfig
	maxDepth   int
	pollSec    int
	logger     *slog.Logger
}

func New(queries *store.Queries, coordStore *coord.Store, runner *engine.Runner, engineName string, policy engine.PolicyConfig, maxDepth, pollSec int, logger *slog.Logger) *Worker {
	return &Worker{
		queries: queries, coord: coordStore, runner: runner, engineName: engineName,
		policy: policy, maxDepth: maxDepth, pollSec: pollSec, logger: logger,
	}
}

// Run blocks popping jobs from this engine's queue until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("worker started", "engine", w.engineName)
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker stopped", "engine", w.engineName)
			return
		default:
		}

		rawID, err := w.coord.PopEngine(ctx, w.engineName, w.pollSec)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			w.logger.Error("popping engine queue", "engine", w.engineName, "error", err)
			continue
		}
		if rawID == "" {
			continue
		}

		jobID, err := uuid.Parse(rawID)
		if err != nil {
			w.logger.Error("worker popped malformed job id", "engine", w.engineName, "raw_id", rawID, "error", err)
			continue
		}

		w.process(ctx, jobID)
	}
}

func (w *Worker) process(ctx context.Context, jobID uuid.UUID) {
	job, err := w.queries.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			w.logger.Warn("worker dropped missing job", "job_id", jobID)
			return
		}
		w.logger.Error("loading job", "job_id", jobID, "error", err)
		return
	}

	attemptID := uuid.New()
	if err := w.queries.AssignJobEngine(ctx, jobID, w.engineName); err != nil {
		w.logger.Error("assigning job engine", "job_id", jobID, "error", err)
		return
	}
	if err := w.queries.StartJobAttempt(ctx, attemptID, jobID, w.engineName); err != nil {
		w.logger.Error("starting job attempt", "job_id", jobID, "error", err)
		return
	}

	outcome, err := w.runner.Run(ctx, jobID)
	if err != nil {
		w.logger.Error("running engine", "job_id", jobID, "engine", w.engineName, "error", err)
		w.finalizeFailed(ctx, jobID, attemptID, "internal_error")
		return
	}

	action, next := decideOutcome(w.engineName, outcome, job.URL, w.maxDepth, w.policy.Allowed)
	switch action {
	case actionSucceeded:
		w.finalizeSucceeded(ctx, jobID, attemptID, outcome.Data)
	case actionEscalated:
		w.escalate(ctx, jobID, attemptID, next, outcome.Reason)
	default:
		w.finalizeFailed(ctx, jobID, attemptID, outcome.Reason)
	}
}

// Outcome→state-machine actions a worker can take after one engine attempt.
const (
	actionSucceeded = "succeeded"
	actionEscalated = "escalated"
	actionFailed    = "failed"
)

// decideOutcome turns an engine.Outcome into a state-machine action: succeed,
// escalate to next (only if a further allowed tier exists within maxDepth),
// or finalize failed.
func decideOutcome(engineName string, outcome engine.Outcome, jobURL string, maxDepth int, allowed engine.AllowedFunc) (action, next string) {
	if outcome.Reason == "" {
		return actionSucceeded, ""
	}
	if outcome.Escalate {
		if n := engine.NextEngine(engineName, jobURL, maxDepth, allowed); n != "" {
			return actionEscalated, n
		}
	}
	return actionFailed, ""
}

func (w *Worker) finalizeSucceeded(ctx context.Context, jobID, attemptID uuid.UUID, data map[string]any) {
	result, err := json.Marshal(data)
	if err != nil {
		w.logger.Error("marshaling job result", "job_id", jobID, "error", err)
		w.finalizeFailed(ctx, jobID, attemptID, "result_marshal_failed")
		return
	}
	if err := w.queries.CompleteJob(ctx, jobID, store.JobStateSucceeded, result, nil); err != nil {
		w.logger.Error("completing job", "job_id", jobID, "error", err)
	}
	if err := w.queries.EndJobAttempt(ctx, attemptID, store.AttemptSucceeded, nil); err != nil {
		w.logger.Error("ending job attempt", "job_id", jobID, "error", err)
	}
	telemetry.JobsCompletedTotal.WithLabelValues(w.engineName, "ok").Inc()
}

func (w *Worker) finalizeFailed(ctx context.Context, jobID, attemptID uuid.UUID, reason string) {
	if err := w.queries.CompleteJob(ctx, jobID, store.JobStateFailed, nil, &reason); err != nil {
		w.logger.Error("completing job", "job_id", jobID, "error", err)
	}
	if err := w.queries.EndJobAttempt(ctx, attemptID, store.AttemptFailed, &reason); err != nil {
		w.logger.Error("ending job attempt", "job_id", jobID, "error", err)
	}
	telemetry.JobsCompletedTotal.WithLabelValues(w.engineName, reason).Inc()
}

func (w *Worker) escalate(ctx context.Context, jobID, attemptID uuid.UUID, next, reason string) {
	if err := w.queries.EndJobAttempt(ctx, attemptID, store.AttemptEscalated, &reason); err != nil {
		w.logger.Error("ending job attempt", "job_id", jobID, "error", err)
	}
	if err := w.queries.EscalateJob(ctx, jobID, next); err != nil {
		w.logger.Error("escalating job", "job_id", jobID, "error", err)
		return
	}
	if err := w.coord.PushEngine(ctx, next, jobID.String()); err != nil {
		w.logger.Error("enqueuing escalated job", "job_id", jobID, "engine", next, "error", err)
		return
	}
	telemetry.JobsEscalatedTotal.WithLabelValues(w.engineName, next).Inc()
	w.logger.Info("job escalated", "job_id", jobID, "from_engine", w.engineName, "to_engine", next, "reason", reason)
}
