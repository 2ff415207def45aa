package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/clinicaltrials-harvester/internal/worker"
)

const defaultRunTable = "harvest_runs"

type queryPool interface {
	execer
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

// RunStore records harvest run history and implements worker.RunRecorder.
type RunStore struct {
	pool  queryPool
	table string
}

// NewRunStoreWithPool constructs a RunStore over an existing pool. The caller
// owns the pool.
func NewRunStoreWithPool(pool queryPool, table string) (*RunStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table, defaultRunTable)
	if err != nil {
		return nil, err
	}
	return &RunStore{pool: pool, table: name}, nil
}

// EnsureSchema creates the runs table when it does not exist.
func (s *RunStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	run_id        TEXT PRIMARY KEY,
	status        TEXT NOT NULL,
	started_at    TIMESTAMPTZ NOT NULL,
	finished_at   TIMESTAMPTZ,
	size_estimate INTEGER NOT NULL DEFAULT 0,
	counters      JSONB NOT NULL DEFAULT '{}'::jsonb,
	error_message TEXT
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s table: %w", s.table, err)
	}
	return nil
}

// StartRun inserts or refreshes the row for a starting run.
func (s *RunStore) StartRun(ctx context.Context, snap worker.Snapshot) error {
	counters, err := json.Marshal(snap.Counters)
	if err != nil {
		return fmt.Errorf("marshal counters: %w", err)
	}
	query := fmt.Sprintf(`
INSERT INTO %[1]s (run_id, status, started_at, size_estimate, counters)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (run_id) DO UPDATE
SET status = EXCLUDED.status
WHERE %[1]s.status <> EXCLUDED.status`, s.table)
	if _, err := s.pool.Exec(ctx, query, snap.RunID, string(snap.Status), snap.StartedAt, snap.SizeEstimate, counters); err != nil {
		return fmt.Errorf("failed to upsert run start: %w", err)
	}
	return nil
}

// FinishRun stores the final status, counters, and error of a run.
func (s *RunStore) FinishRun(ctx context.Context, snap worker.Snapshot) error {
	counters, err := json.Marshal(snap.Counters)
	if err != nil {
		return fmt.Errorf("marshal counters: %w", err)
	}
	var errMsg *string
	if snap.Error != "" {
		errMsg = &snap.Error
	}
	query := fmt.Sprintf(`
UPDATE %s
SET finished_at = $1, status = $2, counters = $3, error_message = $4
WHERE run_id = $5`, s.table)
	tag, err := s.pool.Exec(ctx, query, snap.FinishedAt, string(snap.Status), counters, errMsg, snap.RunID)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("complete run %s: %w", snap.RunID, worker.ErrRunNotFound)
	}
	return nil
}

// GetRun loads one run.
func (s *RunStore) GetRun(ctx context.Context, runID string) (worker.Snapshot, error) {
	query := fmt.Sprintf(`
SELECT run_id, status, started_at, finished_at, size_estimate, counters, error_message
FROM %s
WHERE run_id = $1`, s.table)
	snap, err := scanRun(s.pool.QueryRow(ctx, query, runID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return worker.Snapshot{}, worker.ErrRunNotFound
		}
		return worker.Snapshot{}, fmt.Errorf("failed to get run: %w", err)
	}
	return snap, nil
}

// ListRuns returns runs newest first, optionally filtered by status.
func (s *RunStore) ListRuns(ctx context.Context, status *worker.Status, limit, offset int) ([]worker.Snapshot, error) {
	query := fmt.Sprintf(`
SELECT run_id, status, started_at, finished_at, size_estimate, counters, error_message
FROM %s
WHERE ($1::text IS NULL OR status = $1)
ORDER BY started_at DESC
LIMIT $2 OFFSET $3`, s.table)
	var statusArg *string
	if status != nil {
		v := string(*status)
		statusArg = &v
	}
	rows, err := s.pool.Query(ctx, query, statusArg, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []worker.Snapshot{}
	for rows.Next() {
		snap, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		runs = append(runs, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return runs, nil
}

func scanRun(row pgx.Row) (worker.Snapshot, error) {
	var (
		snap       worker.Snapshot
		status     string
		finishedAt *time.Time
		counters   []byte
		errMsg     *string
	)
	if err := row.Scan(&snap.RunID, &status, &snap.StartedAt, &finishedAt, &snap.SizeEstimate, &counters, &errMsg); err != nil {
		return worker.Snapshot{}, err
	}
	snap.Status = worker.Status(status)
	if finishedAt != nil {
		snap.FinishedAt = *finishedAt
	}
	if errMsg != nil {
		snap.Error = *errMsg
	}
	if len(counters) > 0 {
		if err := json.Unmarshal(counters, &snap.Counters); err != nil {
			return worker.Snapshot{}, fmt.Errorf("decode counters: %w", err)
		}
	}
	return snap, nil
}
