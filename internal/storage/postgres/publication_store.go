// Package postgres archives finished crawl results and run history in Postgres.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/hiparis-pubscraper/internal/crawler"
)

const defaultTable = "hiparis_publications"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for the archive.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type txPool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Begin(context.Context) (pgx.Tx, error)
	Close()
}

// PublicationStore implements crawler.RecordArchive.
type PublicationStore struct {
	pool  txPool
	table string
}

// NewPublicationStore connects using cfg.
func NewPublicationStore(ctx context.Context, cfg Config) (*PublicationStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewPublicationStoreWithPool(pool, cfg.Table)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewPublicationStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewPublicationStoreWithPool(pool txPool, table string) (*PublicationStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &PublicationStore{pool: pool, table: table}, nil
}

// EnsureSchema creates the archive table when missing.
func (s *PublicationStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	run_id          TEXT        NOT NULL,
	conference      TEXT        NOT NULL,
	title           TEXT        NOT NULL,
	matched_authors TEXT[]      NOT NULL,
	all_authors     TEXT        NOT NULL,
	paper           TEXT        NOT NULL,
	finished_at     TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (run_id, conference, title)
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create archive table: %w", err)
	}
	return nil
}

// SaveRun inserts every record of a run in one transaction.
func (s *PublicationStore) SaveRun(
	ctx context.Context,
	runID string,
	finishedAt time.Time,
	records []crawler.PublicationRecord,
) error {
	if runID == "" {
		return fmt.Errorf("run id is required")
	}
	if len(records) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin archive tx: %w", err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	run_id,
	conference,
	title,
	matched_authors,
	all_authors,
	paper,
	finished_at
) VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (run_id, conference, title) DO NOTHING`, s.table)
	for _, rec := range records {
		matched := rec.MatchedAuthors
		if matched == nil {
			matched = []string{}
		}
		if _, err := tx.Exec(ctx, query,
			runID,
			rec.Conference,
			rec.Title,
			matched,
			rec.AllAuthors,
			rec.Paper,
			finishedAt,
		); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("insert publication %q: %w", rec.Title, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit archive tx: %w", err)
	}
	return nil
}

// RunStore returns a run history store sharing this store's pool. The pool
// stays owned by the PublicationStore.
func (s *PublicationStore) RunStore(table string) (*RunStore, error) {
	return NewRunStoreWithPool(s.pool, table)
}

// Close releases the underlying pool resources.
func (s *PublicationStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}
