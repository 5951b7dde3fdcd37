package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/hiparis-pubscraper/internal/progress"
)

func TestLogSinkLevels(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	sink := NewLogSink(zap.New(core))

	batch := []progress.Event{
		{RunID: [16]byte{1}, TS: time.Now(), Stage: progress.StageUnitDone, Conference: "icml.cc", Author: "Jane Smith", Step: 1, Total: 1, Records: 1},
		{RunID: [16]byte{1}, TS: time.Now(), Stage: progress.StageDocMissing, Conference: "icml.cc", Note: "Paper B"},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))
	require.NoError(t, sink.Close(context.Background()))

	entries := logs.All()
	require.Len(t, entries, 2)
	require.Equal(t, zapcore.InfoLevel, entries[0].Level)
	require.Equal(t, "Jane Smith", entries[0].ContextMap()["author"])
	require.Equal(t, zapcore.WarnLevel, entries[1].Level)
	require.Equal(t, "Paper B", entries[1].ContextMap()["note"])
}
