package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/hiparis-pubscraper/internal/store"
)

var runColumns = []string{"id", "started_at", "updated_at", "finished_at", "status", "step", "total", "records", "error_message"}

func newRunStore(t *testing.T) (*RunStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	runs, err := NewRunStoreWithPool(mock, "runs")
	require.NoError(t, err)
	return runs, mock
}

func TestNewRunStoreValidatesTable(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewRunStoreWithPool(mock, "runs; DROP TABLE x")
	require.ErrorContains(t, err, "invalid table name")
	_, err = NewRunStoreWithPool(nil, "")
	require.Error(t, err)

	runs, err := NewRunStoreWithPool(mock, "")
	require.NoError(t, err)
	require.Equal(t, defaultRunsTable, runs.table)
}

func TestRunStoreEnsureSchema(t *testing.T) {
	t.Parallel()
	runs, mock := newRunStore(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS runs").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	require.NoError(t, runs.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunStoreLifecycleWrites(t *testing.T) {
	t.Parallel()
	runs, mock := newRunStore(t)
	ctx := context.Background()
	id := uuid.New()
	at := time.Unix(1760000000, 0).UTC()
	records := 7
	msg := "browser gone"

	mock.ExpectExec("INSERT INTO runs").
		WithArgs(id, at, store.RunRunning, 12).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("UPDATE runs").
		WithArgs(3, 2, at, id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE runs").
		WithArgs(store.RunPaused, at, id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE runs").
		WithArgs(at, store.RunCompleted, 12, &records, (*string)(nil), id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE runs").
		WithArgs(at, store.RunFailed, 4, (*int)(nil), &msg, id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, runs.UpsertRunStart(ctx, id, at, 12))
	require.NoError(t, runs.AdvanceRun(ctx, id, 3, 2, at))
	require.NoError(t, runs.SetRunStatus(ctx, id, store.RunPaused, at))
	require.NoError(t, runs.FinishRun(ctx, id, at, store.RunCompleted, 12, &records, nil))
	require.NoError(t, runs.FinishRun(ctx, id, at, store.RunFailed, 4, nil, &msg))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunStoreUpdateOfUnknownRun(t *testing.T) {
	t.Parallel()
	runs, mock := newRunStore(t)

	mock.ExpectExec("UPDATE runs").WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	err := runs.AdvanceRun(context.Background(), uuid.New(), 1, 1, time.Now())
	require.ErrorIs(t, err, store.ErrNotFound)

	mock.ExpectExec("UPDATE runs").WillReturnError(errors.New("conn reset"))
	err = runs.SetRunStatus(context.Background(), uuid.New(), store.RunRunning, time.Now())
	require.ErrorContains(t, err, "conn reset")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunStoreGetRun(t *testing.T) {
	t.Parallel()
	runs, mock := newRunStore(t)
	id := uuid.New()
	started := time.Unix(1760000000, 0).UTC()
	finished := started.Add(time.Minute)

	mock.ExpectQuery("SELECT (.+) FROM runs").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(runColumns).
			AddRow(id.String(), started, finished, &finished, "completed", 4, 4, 9, (*string)(nil)))

	run, err := runs.GetRun(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, id, run.ID)
	require.Equal(t, store.RunCompleted, run.Status)
	require.Equal(t, 9, run.Records)
	require.NotNil(t, run.FinishedAt)
	require.True(t, finished.Equal(*run.FinishedAt))
	require.Nil(t, run.Error)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunStoreGetRunMissing(t *testing.T) {
	t.Parallel()
	runs, mock := newRunStore(t)

	mock.ExpectQuery("SELECT (.+) FROM runs").WillReturnError(pgx.ErrNoRows)
	_, err := runs.GetRun(context.Background(), uuid.New())
	require.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunStoreListRunsFiltersByStatus(t *testing.T) {
	t.Parallel()
	runs, mock := newRunStore(t)
	first, second := uuid.New(), uuid.New()
	at := time.Unix(1760000000, 0).UTC()
	msg := "timeout"
	failed := "failed"

	mock.ExpectQuery("SELECT (.+) FROM runs").
		WithArgs(&failed, 10, 5).
		WillReturnRows(pgxmock.NewRows(runColumns).
			AddRow(first.String(), at, at, &at, "failed", 2, 6, 1, &msg).
			AddRow(second.String(), at, at, &at, "failed", 0, 6, 0, &msg))

	status := store.RunFailed
	got, err := runs.ListRuns(context.Background(), &status, 10, 5)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, first, got[0].ID)
	require.Equal(t, "timeout", *got[0].Error)
	require.Equal(t, second, got[1].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunStoreListRunsEmpty(t *testing.T) {
	t.Parallel()
	runs, mock := newRunStore(t)

	mock.ExpectQuery("SELECT (.+) FROM runs").
		WithArgs((*string)(nil), 50, 0).
		WillReturnRows(pgxmock.NewRows(runColumns))

	got, err := runs.ListRuns(context.Background(), nil, 50, 0)
	require.NoError(t, err)
	require.Empty(t, got)
	require.NoError(t, mock.ExpectationsWereMet())
}
