package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"plebchat/internal/runner"
)

const createRuns = `
CREATE TABLE IF NOT EXISTS runs (
	id          uuid PRIMARY KEY,
	agent_id    text        NOT NULL,
	status      text        NOT NULL,
	reply       text        NOT NULL DEFAULT '',
	error       text        NOT NULL DEFAULT '',
	started_at  timestamptz NOT NULL,
	finished_at timestamptz NOT NULL
);
CREATE INDEX IF NOT EXISTS runs_started_at_idx ON runs (started_at DESC);
`

const insertRun = `
INSERT INTO runs (id, agent_id, status, reply, error, started_at, finished_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

const selectRecent = `
SELECT id::text, agent_id, status, reply, error, started_at, finished_at
FROM runs
ORDER BY started_at DESC
LIMIT $1`

// DefaultRecentLimit applies when Recent is called without a positive
// limit.
const DefaultRecentLimit = 20

// DB is the part of pgxpool.Pool the store uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// RunStore records finished runs in the runs table.
type RunStore struct {
	db DB
}

var _ runner.RunStore = (*RunStore)(nil)

// NewRunStore wraps a pool.
func NewRunStore(db DB) *RunStore {
	return &RunStore{db: db}
}

// Migrate creates the runs table when it does not exist.
func (s *RunStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, createRuns); err != nil {
		return fmt.Errorf("postgres: migrate runs: %w", err)
	}
	return nil
}

// Record inserts one run.
func (s *RunStore) Record(ctx context.Context, rec runner.Record) error {
	_, err := s.db.Exec(ctx, insertRun,
		rec.ID.String(), rec.AgentID, rec.Status, rec.Reply, rec.Error, rec.StartedAt, rec.FinishedAt)
	if err != nil {
		return fmt.Errorf("postgres: insert run %s: %w", rec.ID, err)
	}
	return nil
}

// Recent returns the latest runs, newest first.
func (s *RunStore) Recent(ctx context.Context, limit int) ([]runner.Record, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	rows, err := s.db.Query(ctx, selectRecent, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: query runs: %w", err)
	}
	recs, err := pgx.CollectRows(rows, scanRecord)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan runs: %w", err)
	}
	return recs, nil
}

func scanRecord(row pgx.CollectableRow) (runner.Record, error) {
	var (
		rec      runner.Record
		id       string
		started  time.Time
		finished time.Time
	)
	if err := row.Scan(&id, &rec.AgentID, &rec.Status, &rec.Reply, &rec.Error, &started, &finished); err != nil {
		return runner.Record{}, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return runner.Record{}, fmt.Errorf("run id %q: %w", id, err)
	}
	rec.ID = parsed
	rec.StartedAt = started.UTC()
	rec.FinishedAt = finished.UTC()
	return rec, nil
}
