package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLimiter_Wait(t *testing.T) {
	t.Parallel()

	// 10 RPS = 1 token every 100ms, burst 1.
	l := New(Config{DefaultRPS: 10, DefaultBurst: 1}, nil)
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://icml.cc/virtual/2025/papers.html"))

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://icml.cc/virtual/2025/papers.html?search=x"))
	require.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestLimiter_DifferentHosts(t *testing.T) {
	t.Parallel()

	l := New(Config{DefaultRPS: 1, DefaultBurst: 1}, nil)
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://icml.cc/1"))

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://arxiv.org/search"))
	require.Less(t, time.Since(start), 50*time.Millisecond, "other host must not be blocked")
}

func TestLimiter_Unlimited(t *testing.T) {
	t.Parallel()

	l := New(Config{}, nil)
	for i := 0; i < 100; i++ {
		require.NoError(t, l.Wait(context.Background(), "https://icml.cc/"))
	}
}

func TestLimiter_CanceledContext(t *testing.T) {
	t.Parallel()

	l := New(Config{DefaultRPS: 0.001, DefaultBurst: 1}, nil)
	require.NoError(t, l.Wait(context.Background(), "https://icml.cc/"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, l.Wait(ctx, "https://icml.cc/"))
}
