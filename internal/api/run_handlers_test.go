package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/hiparis-pubscraper/internal/conference"
	"github.com/JakeFAU/hiparis-pubscraper/internal/config"
	"github.com/JakeFAU/hiparis-pubscraper/internal/crawler"
	"github.com/JakeFAU/hiparis-pubscraper/internal/roster"
	"github.com/JakeFAU/hiparis-pubscraper/internal/store"
)

func newRunsServer(repo store.RunRepository) *Server {
	deps := Deps{
		Crawler:     &fakeCrawler{state: crawler.StateIdle},
		Conferences: conference.NewRegistry(nil),
		Roster:      roster.NewStore(),
	}
	if repo != nil {
		deps.Runs = repo
	}
	return NewServer(deps, config.Config{}, zap.NewNop())
}

func serve(s *Server, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestListRunsPassesFilters(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	repo := &fakeRunRepo{runs: []store.Run{{ID: id, Status: store.RunFailed, Total: 4}}}
	rec := serve(newRunsServer(repo), "/v1/runs?status=FAILED&limit=1000&offset=2")

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, repo.lastStatus)
	require.Equal(t, store.RunFailed, *repo.lastStatus)
	require.Equal(t, maxRunLimit, repo.lastLimit)
	require.Equal(t, 2, repo.lastOffset)

	var payload struct {
		Runs []store.Run `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Len(t, payload.Runs, 1)
	require.Equal(t, id, payload.Runs[0].ID)
}

func TestListRunsRejectsBadQuery(t *testing.T) {
	t.Parallel()

	s := newRunsServer(&fakeRunRepo{})
	for _, path := range []string{"/v1/runs?status=done", "/v1/runs?limit=0", "/v1/runs?offset=-1"} {
		require.Equal(t, http.StatusBadRequest, serve(s, path).Code, path)
	}
}

func TestListRunsEmptyIsArray(t *testing.T) {
	t.Parallel()

	rec := serve(newRunsServer(&fakeRunRepo{}), "/v1/runs")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"runs":[]}`, rec.Body.String())
}

func TestRunsUnavailableWithoutHistory(t *testing.T) {
	t.Parallel()

	s := newRunsServer(nil)
	require.Equal(t, http.StatusServiceUnavailable, serve(s, "/v1/runs").Code)
	require.Equal(t, http.StatusServiceUnavailable, serve(s, "/v1/runs/"+uuid.NewString()).Code)
}

func TestGetRunStatusCodes(t *testing.T) {
	t.Parallel()

	known := uuid.New()
	repo := &fakeRunRepo{runs: []store.Run{{ID: known, Status: store.RunCompleted, Records: 3}}}
	s := newRunsServer(repo)

	rec := serve(s, "/v1/runs/"+known.String())
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"records":3`)

	require.Equal(t, http.StatusNotFound, serve(s, "/v1/runs/"+uuid.NewString()).Code)
	require.Equal(t, http.StatusBadRequest, serve(s, "/v1/runs/not-a-uuid").Code)

	repo.err = errors.New("conn reset")
	require.Equal(t, http.StatusInternalServerError, serve(s, "/v1/runs/"+known.String()).Code)
	require.Equal(t, http.StatusInternalServerError, serve(s, "/v1/runs").Code)
}

type fakeRunRepo struct {
	runs       []store.Run
	err        error
	lastStatus *store.RunStatus
	lastLimit  int
	lastOffset int
}

func (f *fakeRunRepo) UpsertRunStart(context.Context, uuid.UUID, time.Time, int) error {
	return nil
}

func (f *fakeRunRepo) AdvanceRun(context.Context, uuid.UUID, int, int, time.Time) error {
	return nil
}

func (f *fakeRunRepo) SetRunStatus(context.Context, uuid.UUID, store.RunStatus, time.Time) error {
	return nil
}

func (f *fakeRunRepo) FinishRun(context.Context, uuid.UUID, time.Time, store.RunStatus, int, *int, *string) error {
	return nil
}

func (f *fakeRunRepo) GetRun(_ context.Context, id uuid.UUID) (store.Run, error) {
	if f.err != nil {
		return store.Run{}, f.err
	}
	for _, run := range f.runs {
		if run.ID == id {
			return run, nil
		}
	}
	return store.Run{}, store.ErrNotFound
}

func (f *fakeRunRepo) ListRuns(_ context.Context, status *store.RunStatus, limit, offset int) ([]store.Run, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.lastStatus, f.lastLimit, f.lastOffset = status, limit, offset
	return f.runs, nil
}
