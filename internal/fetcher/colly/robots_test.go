package collyfetcher

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type scriptedTransport struct {
	errs  []error
	calls int
}

// RoundTrip replays errs in order; once they run out it answers 200.
func (s *scriptedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	s.calls++
	if s.calls <= len(s.errs) && s.errs[s.calls-1] != nil {
		return nil, s.errs[s.calls-1]
	}
	rec := httptest.NewRecorder()
	rec.WriteString("User-agent: *\nDisallow: /private")
	resp := rec.Result()
	resp.Request = req
	return resp, nil
}

func newTestRobotsTransport(errs ...error) (*robotsTransport, *scriptedTransport) {
	base := &scriptedTransport{errs: errs}
	rt := newRobotsTransport(base, zap.NewNop())
	rt.backoff = []time.Duration{0, 0, 0}
	return rt, base
}

func TestUnreachableRobotsFallsBackToAllowAll(t *testing.T) {
	t.Parallel()

	timeout := context.DeadlineExceeded
	rt, base := newTestRobotsTransport(timeout, timeout, timeout, timeout)

	resp, err := rt.RoundTrip(httptest.NewRequest(http.MethodGet, "https://neurips.cc/robots.txt", nil))
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck // test body
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	require.Equal(t, allowAllRobots, string(body))
	require.Equal(t, 4, base.calls)
	require.EqualValues(t, 1, rt.Fallbacks())
}

func TestRobotsRecoversAfterTransientTimeout(t *testing.T) {
	t.Parallel()

	rt, base := newTestRobotsTransport(errors.New("tls: handshake timeout"))

	resp, err := rt.RoundTrip(httptest.NewRequest(http.MethodGet, "https://icml.cc/robots.txt", nil))
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	require.Contains(t, string(body), "Disallow: /private")
	require.Equal(t, 2, base.calls)
	require.Zero(t, rt.Fallbacks())
}

func TestSearchPagesAreNotRetried(t *testing.T) {
	t.Parallel()

	rt, base := newTestRobotsTransport(context.DeadlineExceeded)

	_, err := rt.RoundTrip(httptest.NewRequest(http.MethodGet, "https://icml.cc/virtual/2025/papers.html?search=Ada", nil))
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, 1, base.calls)
}

func TestRobotsHardErrorSurfaces(t *testing.T) {
	t.Parallel()

	rt, base := newTestRobotsTransport(errors.New("connection refused"))

	_, err := rt.RoundTrip(httptest.NewRequest(http.MethodGet, "https://icml.cc/robots.txt", nil))
	require.ErrorContains(t, err, "connection refused")
	require.Equal(t, 1, base.calls)
	require.Zero(t, rt.Fallbacks())
}

func TestRobotsBackoffHonorsCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rt, _ := newTestRobotsTransport(context.DeadlineExceeded)
	rt.backoff = []time.Duration{time.Hour}

	req := httptest.NewRequest(http.MethodGet, "https://icml.cc/robots.txt", nil).WithContext(ctx)
	_, err := rt.RoundTrip(req)
	require.ErrorIs(t, err, context.Canceled)
}
