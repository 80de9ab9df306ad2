// Package store is the persistent job store: Postgres-backed CRUD for every
// entity in the data model (jobs, attempts, artifacts, schemas, selectors,
// selector candidates, proxy policies, identities, tenant plugin configs)
// plus the ambient API key and audit log tables. The coordination store
// (queues, counters, breakers, bindings) lives in pkg/coord against Redis
// instead — this package never reaches for Redis.
package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx, so Queries can run
// against either a pooled connection or an explicit transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Queries wraps a DBTX and exposes typed methods per entity.
type Queries struct {
	db DBTX
}

// New creates a Queries bound to the given pool or transaction.
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx returns a new Queries bound to tx, for callers that need several
// writes to commit atomically (e.g. promoting a candidate).
func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}

var _ DBTX = (*pgxpool.Pool)(nil)
var _ DBTX = (pgx.Tx)(nil)
