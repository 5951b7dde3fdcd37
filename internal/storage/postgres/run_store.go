package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/hiparis-pubscraper/internal/store"
)

const defaultRunsTable = "hiparis_runs"

// RunStore implements store.RunRepository.
type RunStore struct {
	pool  txPool
	table string
}

// NewRunStoreWithPool constructs a RunStore on an existing pool.
func NewRunStoreWithPool(pool txPool, table string) (*RunStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = defaultRunsTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &RunStore{pool: pool, table: table}, nil
}

// EnsureSchema creates the runs table when missing.
func (s *RunStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id            UUID        PRIMARY KEY,
	started_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL,
	finished_at   TIMESTAMPTZ,
	status        TEXT        NOT NULL,
	step          INTEGER     NOT NULL DEFAULT 0,
	total         INTEGER     NOT NULL,
	records       INTEGER     NOT NULL DEFAULT 0,
	error_message TEXT
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create runs table: %w", err)
	}
	return nil
}

// UpsertRunStart inserts the run, or marks it running again if it exists.
func (s *RunStore) UpsertRunStart(ctx context.Context, runID uuid.UUID, startedAt time.Time, total int) error {
	query := fmt.Sprintf(`
INSERT INTO %s (id, started_at, updated_at, status, step, total, records)
VALUES ($1, $2, $2, $3, 0, $4, 0)
ON CONFLICT (id) DO UPDATE
SET status = EXCLUDED.status, updated_at = EXCLUDED.updated_at`, s.table)
	if _, err := s.pool.Exec(ctx, query, runID, startedAt, store.RunRunning, total); err != nil {
		return fmt.Errorf("upsert run start: %w", err)
	}
	return nil
}

// AdvanceRun moves the cursor and adds newly recorded publications.
func (s *RunStore) AdvanceRun(ctx context.Context, runID uuid.UUID, step, deltaRecords int, at time.Time) error {
	query := fmt.Sprintf(`
UPDATE %s
SET step = GREATEST(step, $1), records = records + $2, updated_at = $3
WHERE id = $4`, s.table)
	tag, err := s.pool.Exec(ctx, query, step, deltaRecords, at, runID)
	if err != nil {
		return fmt.Errorf("advance run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("advance run %s: %w", runID, store.ErrNotFound)
	}
	return nil
}

// SetRunStatus records a pause or resume.
func (s *RunStore) SetRunStatus(ctx context.Context, runID uuid.UUID, status store.RunStatus, at time.Time) error {
	query := fmt.Sprintf(`
UPDATE %s
SET status = $1,
	updated_at = $2,
	finished_at = CASE WHEN $1 = 'running' THEN NULL ELSE finished_at END,
	error_message = CASE WHEN $1 = 'running' THEN NULL ELSE error_message END
WHERE id = $3`, s.table)
	tag, err := s.pool.Exec(ctx, query, status, at, runID)
	if err != nil {
		return fmt.Errorf("set run status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("set run status %s: %w", runID, store.ErrNotFound)
	}
	return nil
}

// FinishRun records the end of the work loop.
func (s *RunStore) FinishRun(
	ctx context.Context,
	runID uuid.UUID,
	finishedAt time.Time,
	status store.RunStatus,
	step int,
	records *int,
	errMsg *string,
) error {
	query := fmt.Sprintf(`
UPDATE %s
SET finished_at = $1,
	updated_at = $1,
	status = $2,
	step = GREATEST(step, $3),
	records = COALESCE($4, records),
	error_message = $5
WHERE id = $6`, s.table)
	tag, err := s.pool.Exec(ctx, query, finishedAt, status, step, records, errMsg, runID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("finish run %s: %w", runID, store.ErrNotFound)
	}
	return nil
}

// GetRun loads one run.
func (s *RunStore) GetRun(ctx context.Context, runID uuid.UUID) (store.Run, error) {
	query := fmt.Sprintf(`
SELECT id::text, started_at, updated_at, finished_at, status, step, total, records, error_message
FROM %s
WHERE id = $1`, s.table)
	run, err := scanRun(s.pool.QueryRow(ctx, query, runID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Run{}, store.ErrNotFound
		}
		return store.Run{}, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// ListRuns returns runs newest first.
func (s *RunStore) ListRuns(ctx context.Context, status *store.RunStatus, limit, offset int) ([]store.Run, error) {
	query := fmt.Sprintf(`
SELECT id::text, started_at, updated_at, finished_at, status, step, total, records, error_message
FROM %s
WHERE ($1::text IS NULL OR status = $1)
ORDER BY started_at DESC
LIMIT $2 OFFSET $3`, s.table)
	var filter *string
	if status != nil {
		v := string(*status)
		filter = &v
	}
	rows, err := s.pool.Query(ctx, query, filter, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs := []store.Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

func scanRun(row pgx.Row) (store.Run, error) {
	var (
		run    store.Run
		id     string
		status string
	)
	if err := row.Scan(
		&id,
		&run.StartedAt,
		&run.UpdatedAt,
		&run.FinishedAt,
		&status,
		&run.Step,
		&run.Total,
		&run.Records,
		&run.Error,
	); err != nil {
		return store.Run{}, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return store.Run{}, fmt.Errorf("parse run id %q: %w", id, err)
	}
	run.ID = parsed
	run.Status = store.RunStatus(status)
	return run, nil
}
