package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Job states, per the job lifecycle.
const (
	JobStateQueued     = "queued"
	JobStateRunning    = "running"
	JobStateSucceeded  = "succeeded"
	JobStateFailed     = "failed"
	JobStateEscalated  = "escalated"
	JobStateDeadLetter = "dead_letter"
)

// JobAttempt statuses, one per engine try.
const (
	AttemptRunning   = "running"
	AttemptSucceeded = "succeeded"
	AttemptFailed    = "failed"
	AttemptEscalated = "escalated"
)

// Job priorities.
const (
	PriorityHigh     = "high"
	PriorityStandard = "standard"
	PriorityLow      = "low"
)

// ErrNotFound is returned when a lookup by id finds no row.
var ErrNotFound = errors.New("not found")

// Job is the persistent unit of work.
type Job struct {
	ID        uuid.UUID
	URL       string
	State     string
	Priority  string
	SchemaID  *string
	Tenant    *string
	Engine    *string
	Result    json.RawMessage
	Error     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CreateJobParams holds the fields supplied when a job is submitted. Engine
// is the caller's optional preferred engine — the dispatcher still
// normalizes it against policy before the first attempt.
type CreateJobParams struct {
	ID       uuid.UUID
	URL      string
	Priority string
	SchemaID *string
	Tenant   *string
	Engine   *string
}

// CreateJob inserts a new job in the queued state.
func (q *Queries) CreateJob(ctx context.Context, p CreateJobParams) (Job, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO jobs (id, url, state, priority, schema_id, tenant, engine)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, url, state, priority, schema_id, tenant, engine, result, error, created_at, updated_at
	`, p.ID, p.URL, JobStateQueued, p.Priority, p.SchemaID, p.Tenant, p.Engine)
	return scanJob(row)
}

// GetJob fetches a job by id.
func (q *Queries) GetJob(ctx context.Context, id uuid.UUID) (Job, error) {
	row := q.db.QueryRow(ctx, `
		SELECT id, url, state, priority, schema_id, tenant, engine, result, error, created_at, updated_at
		FROM jobs WHERE id = $1
	`, id)
	return scanJob(row)
}

// SetJobEngine records the dispatcher's chosen engine tier, keeping the job
// queued for the matching per-engine worker to pick up.
func (q *Queries) SetJobEngine(ctx context.Context, id uuid.UUID, engine string) error {
	tag, err := q.db.Exec(ctx, `
		UPDATE jobs SET engine = $2, state = $3, updated_at = now() WHERE id = $1
	`, id, engine, JobStateQueued)
	if err != nil {
		return fmt.Errorf("setting job engine: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AssignJobEngine records which engine tier is handling the job and marks it running.
func (q *Queries) AssignJobEngine(ctx context.Context, id uuid.UUID, engine string) error {
	tag, err := q.db.Exec(ctx, `
		UPDATE jobs SET engine = $2, state = $3, updated_at = now() WHERE id = $1
	`, id, engine, JobStateRunning)
	if err != nil {
		return fmt.Errorf("assigning job engine: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CompleteJob records a terminal state with result or error.
func (q *Queries) CompleteJob(ctx context.Context, id uuid.UUID, state string, result json.RawMessage, errCode *string) error {
	tag, err := q.db.Exec(ctx, `
		UPDATE jobs SET state = $2, result = $3, error = $4, updated_at = now() WHERE id = $1
	`, id, state, result, errCode)
	if err != nil {
		return fmt.Errorf("completing job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// EscalateJob moves the job to the next engine tier and re-queues it,
// clearing any prior attempt's error.
func (q *Queries) EscalateJob(ctx context.Context, id uuid.UUID, nextEngine string) error {
	tag, err := q.db.Exec(ctx, `
		UPDATE jobs SET engine = $2, state = $3, error = NULL, updated_at = now() WHERE id = $1
	`, id, nextEngine, JobStateQueued)
	if err != nil {
		return fmt.Errorf("escalating job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanJob(row pgx.Row) (Job, error) {
	var j Job
	err := row.Scan(&j.ID, &j.URL, &j.State, &j.Priority, &j.SchemaID, &j.Tenant, &j.Engine, &j.Result, &j.Error, &j.CreatedAt, &j.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Job{}, ErrNotFound
	}
	if err != nil {
		return Job{}, fmt.Errorf("scanning job: %w", err)
	}
	return j, nil
}

// JobAttempt is an append-only record per (job, engine, try).
type JobAttempt struct {
	ID        uuid.UUID
	JobID     uuid.UUID
	Engine    string
	Status    string
	Error     *string
	StartedAt *time.Time
	EndedAt   *time.Time
}

// StartJobAttempt records the start of an engine attempt.
func (q *Queries) StartJobAttempt(ctx context.Context, id, jobID uuid.UUID, engine string) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO job_attempts (id, job_id, engine, status, started_at)
		VALUES ($1, $2, $3, $4, now())
	`, id, jobID, engine, AttemptRunning)
	if err != nil {
		return fmt.Errorf("starting job attempt: %w", err)
	}
	return nil
}

// EndJobAttempt records the terminal status of an engine attempt.
func (q *Queries) EndJobAttempt(ctx context.Context, id uuid.UUID, status string, errCode *string) error {
	_, err := q.db.Exec(ctx, `
		UPDATE job_attempts SET status = $2, error = $3, ended_at = now() WHERE id = $1
	`, id, status, errCode)
	if err != nil {
		return fmt.Errorf("ending job attempt: %w", err)
	}
	return nil
}

// ListJobAttempts returns every attempt recorded for a job, oldest first.
func (q *Queries) ListJobAttempts(ctx context.Context, jobID uuid.UUID) ([]JobAttempt, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, job_id, engine, status, error, started_at, ended_at
		FROM job_attempts WHERE job_id = $1 ORDER BY started_at ASC
	`, jobID)
	if err != nil {
		return nil, fmt.Errorf("listing job attempts: %w", err)
	}
	defer rows.Close()

	var out []JobAttempt
	for rows.Next() {
		var a JobAttempt
		if err := rows.Scan(&a.ID, &a.JobID, &a.Engine, &a.Status, &a.Error, &a.StartedAt, &a.EndedAt); err != nil {
			return nil, fmt.Errorf("scanning job attempt: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Artifact types.
const (
	ArtifactHTML       = "html"
	ArtifactScreenshot = "screenshot"
	ArtifactHAR        = "har"
	ArtifactOCR        = "ocr"
)

// Artifact references a stored blob produced while working a job.
type Artifact struct {
	ID        uuid.UUID
	JobID     uuid.UUID
	Type      string
	Location  string
	Checksum  *string
	CreatedAt time.Time
}

// UpsertArtifact replaces any existing artifact of the same (job, type) — at
// most one artifact per (job, type) is kept, per the data model invariant.
func (q *Queries) UpsertArtifact(ctx context.Context, id, jobID uuid.UUID, typ, location, checksum string) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO artifacts (id, job_id, type, location, checksum)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (job_id, type) DO UPDATE
		SET location = EXCLUDED.location, checksum = EXCLUDED.checksum, created_at = now()
	`, id, jobID, typ, location, checksum)
	if err != nil {
		return fmt.Errorf("upserting artifact: %w", err)
	}
	return nil
}

// ListArtifacts returns every artifact recorded for a job.
func (q *Queries) ListArtifacts(ctx context.Context, jobID uuid.UUID) ([]Artifact, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, job_id, type, location, checksum, created_at
		FROM artifacts WHERE job_id = $1
	`, jobID)
	if err != nil {
		return nil, fmt.Errorf("listing artifacts: %w", err)
	}
	defer rows.Close()

	var out []Artifact
	for rows.Next() {
		var a Artifact
		if err := rows.Scan(&a.ID, &a.JobID, &a.Type, &a.Location, &a.Checksum, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning artifact: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
