package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/hiparis-pubscraper/internal/crawler"
	"github.com/JakeFAU/hiparis-pubscraper/internal/store"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "pubscraper.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), "")
	require.Error(t, err)
}

func TestSaveRunArchivesRecords(t *testing.T) {
	t.Parallel()
	s := openStore(t)
	ctx := context.Background()
	finished := time.Unix(1760000000, 0).UTC()
	records := []crawler.PublicationRecord{
		{Conference: "icml.cc", Title: "Paper B", AllAuthors: "X", Paper: crawler.DocumentNotFound},
		{Conference: "icml.cc", Title: "Paper A", MatchedAuthors: []string{"Jane Smith"}, AllAuthors: "Jane Smith, Bob Lee", Paper: "https://arxiv.org/pdf/1"},
	}

	require.NoError(t, s.SaveRun(ctx, "run-1", finished, records))
	// Saving the same run twice keeps one row per key.
	require.NoError(t, s.SaveRun(ctx, "run-1", finished, records))
	require.NoError(t, s.SaveRun(ctx, "run-2", finished, nil))
	require.Error(t, s.SaveRun(ctx, "", finished, records))

	got, err := s.ArchivedRecords(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "Paper A", got[0].Title)
	require.Equal(t, []string{"Jane Smith"}, got[0].MatchedAuthors)
	require.Equal(t, []string{}, got[1].MatchedAuthors)

	empty, err := s.ArchivedRecords(ctx, "run-2")
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestRunLifecycle(t *testing.T) {
	t.Parallel()
	s := openStore(t)
	ctx := context.Background()
	id := uuid.New()
	start := time.Unix(1760000000, 0).UTC()

	require.NoError(t, s.UpsertRunStart(ctx, id, start, 6))
	require.NoError(t, s.AdvanceRun(ctx, id, 2, 3, start.Add(time.Second)))
	require.NoError(t, s.AdvanceRun(ctx, id, 1, 1, start.Add(2*time.Second)))

	msg := "browser gone"
	require.NoError(t, s.FinishRun(ctx, id, start.Add(3*time.Second), store.RunFailed, 2, nil, &msg))
	run, err := s.GetRun(ctx, id)
	require.NoError(t, err)
	require.Equal(t, store.RunFailed, run.Status)
	require.Equal(t, 2, run.Step)
	require.Equal(t, 4, run.Records)
	require.Equal(t, 6, run.Total)
	require.NotNil(t, run.FinishedAt)
	require.Equal(t, "browser gone", *run.Error)
	require.True(t, start.Equal(run.StartedAt))

	require.NoError(t, s.SetRunStatus(ctx, id, store.RunRunning, start.Add(4*time.Second)))
	run, err = s.GetRun(ctx, id)
	require.NoError(t, err)
	require.Equal(t, store.RunRunning, run.Status)
	require.Nil(t, run.FinishedAt)
	require.Nil(t, run.Error)

	records := 5
	require.NoError(t, s.FinishRun(ctx, id, start.Add(5*time.Second), store.RunCompleted, 6, &records, nil))
	run, err = s.GetRun(ctx, id)
	require.NoError(t, err)
	require.Equal(t, store.RunCompleted, run.Status)
	require.Equal(t, 6, run.Step)
	require.Equal(t, 5, run.Records)
}

func TestRunUpdatesOfUnknownRun(t *testing.T) {
	t.Parallel()
	s := openStore(t)
	ctx := context.Background()

	require.ErrorIs(t, s.AdvanceRun(ctx, uuid.New(), 1, 1, time.Now()), store.ErrNotFound)
	require.ErrorIs(t, s.SetRunStatus(ctx, uuid.New(), store.RunPaused, time.Now()), store.ErrNotFound)
	_, err := s.GetRun(ctx, uuid.New())
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestListRunsNewestFirst(t *testing.T) {
	t.Parallel()
	s := openStore(t)
	ctx := context.Background()
	base := time.Unix(1760000000, 0).UTC()

	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	for i, id := range ids {
		require.NoError(t, s.UpsertRunStart(ctx, id, base.Add(time.Duration(i)*time.Minute), 1))
	}
	require.NoError(t, s.SetRunStatus(ctx, ids[1], store.RunPaused, base))

	all, err := s.ListRuns(ctx, nil, 10, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, ids[2], all[0].ID)
	require.Equal(t, ids[0], all[2].ID)

	paused := store.RunPaused
	filtered, err := s.ListRuns(ctx, &paused, 10, 0)
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	require.Equal(t, ids[1], filtered[0].ID)

	page, err := s.ListRuns(ctx, nil, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.Equal(t, ids[1], page[0].ID)
}
