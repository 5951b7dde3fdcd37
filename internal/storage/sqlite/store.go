// Package sqlite keeps the publication archive and the run history in a
// local SQLite file, for deployments without Postgres.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/JakeFAU/hiparis-pubscraper/internal/crawler"
	"github.com/JakeFAU/hiparis-pubscraper/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS publications (
	run_id          TEXT    NOT NULL,
	conference      TEXT    NOT NULL,
	title           TEXT    NOT NULL,
	matched_authors TEXT    NOT NULL,
	all_authors     TEXT    NOT NULL,
	paper           TEXT    NOT NULL,
	finished_at     INTEGER NOT NULL,
	PRIMARY KEY (run_id, conference, title)
);

CREATE TABLE IF NOT EXISTS runs (
	id            TEXT    PRIMARY KEY,
	started_at    INTEGER NOT NULL,
	updated_at    INTEGER NOT NULL,
	finished_at   INTEGER,
	status        TEXT    NOT NULL,
	step          INTEGER NOT NULL DEFAULT 0,
	total         INTEGER NOT NULL,
	records       INTEGER NOT NULL DEFAULT 0,
	error_message TEXT
);

CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
`

// Store implements crawler.RecordArchive and store.RunRepository.
// Timestamps are stored as Unix milliseconds.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer at a time; SQLite serializes them anyway.
	db.SetMaxOpenConns(1)
	s := &Store{db: db}
	if err := s.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// EnsureSchema creates the tables when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create sqlite schema: %w", err)
	}
	return nil
}

// SaveRun inserts every record of a run in one transaction.
func (s *Store) SaveRun(ctx context.Context, runID string, finishedAt time.Time, records []crawler.PublicationRecord) error {
	if runID == "" {
		return fmt.Errorf("run id is required")
	}
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin archive tx: %w", err)
	}
	const query = `
INSERT OR IGNORE INTO publications
	(run_id, conference, title, matched_authors, all_authors, paper, finished_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`
	for _, rec := range records {
		matched := rec.MatchedAuthors
		if matched == nil {
			matched = []string{}
		}
		encoded, err := json.Marshal(matched)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("encode matched authors: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query,
			runID, rec.Conference, rec.Title, string(encoded), rec.AllAuthors, rec.Paper, finishedAt.UnixMilli(),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert publication %q: %w", rec.Title, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit archive tx: %w", err)
	}
	return nil
}

// ArchivedRecords returns the archived records of a run ordered by title.
func (s *Store) ArchivedRecords(ctx context.Context, runID string) ([]crawler.PublicationRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT conference, title, matched_authors, all_authors, paper
FROM publications
WHERE run_id = ?
ORDER BY title`, runID)
	if err != nil {
		return nil, fmt.Errorf("query archive: %w", err)
	}
	defer rows.Close()

	var out []crawler.PublicationRecord
	for rows.Next() {
		var (
			rec     crawler.PublicationRecord
			matched string
		)
		if err := rows.Scan(&rec.Conference, &rec.Title, &matched, &rec.AllAuthors, &rec.Paper); err != nil {
			return nil, fmt.Errorf("scan archive row: %w", err)
		}
		if err := json.Unmarshal([]byte(matched), &rec.MatchedAuthors); err != nil {
			return nil, fmt.Errorf("decode matched authors: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate archive: %w", err)
	}
	return out, nil
}

// UpsertRunStart inserts the run, or marks it running again if it exists.
func (s *Store) UpsertRunStart(ctx context.Context, runID uuid.UUID, startedAt time.Time, total int) error {
	ts := startedAt.UnixMilli()
	if _, err := s.db.ExecContext(ctx, `
INSERT INTO runs (id, started_at, updated_at, status, step, total, records)
VALUES (?, ?, ?, ?, 0, ?, 0)
ON CONFLICT (id) DO UPDATE
SET status = excluded.status, updated_at = excluded.updated_at`,
		runID.String(), ts, ts, string(store.RunRunning), total,
	); err != nil {
		return fmt.Errorf("upsert run start: %w", err)
	}
	return nil
}

// AdvanceRun moves the cursor and adds newly recorded publications.
func (s *Store) AdvanceRun(ctx context.Context, runID uuid.UUID, step, deltaRecords int, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE runs
SET step = MAX(step, ?), records = records + ?, updated_at = ?
WHERE id = ?`, step, deltaRecords, at.UnixMilli(), runID.String())
	if err != nil {
		return fmt.Errorf("advance run: %w", err)
	}
	return requireRow(res, "advance run", runID)
}

// SetRunStatus records a pause or resume.
func (s *Store) SetRunStatus(ctx context.Context, runID uuid.UUID, status store.RunStatus, at time.Time) error {
	var query string
	if status == store.RunRunning {
		query = `UPDATE runs SET status = ?, updated_at = ?, finished_at = NULL, error_message = NULL WHERE id = ?`
	} else {
		query = `UPDATE runs SET status = ?, updated_at = ? WHERE id = ?`
	}
	res, err := s.db.ExecContext(ctx, query, string(status), at.UnixMilli(), runID.String())
	if err != nil {
		return fmt.Errorf("set run status: %w", err)
	}
	return requireRow(res, "set run status", runID)
}

// FinishRun records the end of the work loop.
func (s *Store) FinishRun(
	ctx context.Context,
	runID uuid.UUID,
	finishedAt time.Time,
	status store.RunStatus,
	step int,
	records *int,
	errMsg *string,
) error {
	var (
		rec sql.NullInt64
		msg sql.NullString
	)
	if records != nil {
		rec = sql.NullInt64{Int64: int64(*records), Valid: true}
	}
	if errMsg != nil {
		msg = sql.NullString{String: *errMsg, Valid: true}
	}
	ts := finishedAt.UnixMilli()
	res, err := s.db.ExecContext(ctx, `
UPDATE runs
SET finished_at = ?, updated_at = ?, status = ?, step = MAX(step, ?),
	records = COALESCE(?, records), error_message = ?
WHERE id = ?`, ts, ts, string(status), step, rec, msg, runID.String())
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return requireRow(res, "finish run", runID)
}

const runColumns = `id, started_at, updated_at, finished_at, status, step, total, records, error_message`

// GetRun loads one run.
func (s *Store) GetRun(ctx context.Context, runID uuid.UUID) (store.Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, runID.String())
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Run{}, store.ErrNotFound
		}
		return store.Run{}, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// ListRuns returns runs newest first.
func (s *Store) ListRuns(ctx context.Context, status *store.RunStatus, limit, offset int) ([]store.Run, error) {
	var filter sql.NullString
	if status != nil {
		filter = sql.NullString{String: string(*status), Valid: true}
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT `+runColumns+`
FROM runs
WHERE (? IS NULL OR status = ?)
ORDER BY started_at DESC
LIMIT ? OFFSET ?`, filter, filter, limit, offset)
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

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close sqlite: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (store.Run, error) {
	var (
		run              store.Run
		id, status       string
		started, updated int64
		finished         sql.NullInt64
		errMsg           sql.NullString
	)
	if err := row.Scan(&id, &started, &updated, &finished, &status, &run.Step, &run.Total, &run.Records, &errMsg); err != nil {
		return store.Run{}, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return store.Run{}, fmt.Errorf("parse run id %q: %w", id, err)
	}
	run.ID = parsed
	run.Status = store.RunStatus(status)
	run.StartedAt = time.UnixMilli(started).UTC()
	run.UpdatedAt = time.UnixMilli(updated).UTC()
	if finished.Valid {
		t := time.UnixMilli(finished.Int64).UTC()
		run.FinishedAt = &t
	}
	if errMsg.Valid {
		msg := errMsg.String
		run.Error = &msg
	}
	return run, nil
}

func requireRow(res sql.Result, op string, runID uuid.UUID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", op, runID, store.ErrNotFound)
	}
	return nil
}
