package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/hiparis-pubscraper/internal/progress"
)

func TestPrometheusSinkRecordsRunLifecycle(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	runID := [16]byte{7}
	now := time.Now()
	batch := []progress.Event{
		{RunID: runID, TS: now, Stage: progress.StageRunStart, Total: 2},
		{RunID: runID, TS: now, Stage: progress.StageDocFound, Conference: "icml.cc", Author: "Jane Smith", Total: 2},
		{RunID: runID, TS: now, Stage: progress.StageDocMissing, Conference: "icml.cc", Author: "Jane Smith", Total: 2},
		{RunID: runID, TS: now, Stage: progress.StageUnitDone, Conference: "icml.cc", Author: "Jane Smith", Step: 1, Total: 2, Records: 2, Dur: time.Second},
		{RunID: runID, TS: now, Stage: progress.StageRunPause, Step: 1, Total: 2},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsStarted))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.runsActive))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.runStep))
	require.Equal(t, 2.0, testutil.ToFloat64(sink.runTotal))
	require.Equal(t, 2.0, testutil.ToFloat64(sink.publications.WithLabelValues("icml.cc")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.documents.WithLabelValues("resolved")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.documents.WithLabelValues("missing")))
	require.Equal(t, 1, testutil.CollectAndCount(sink.unitDuration, "pubscraper_unit_duration_seconds"))

	resume := []progress.Event{
		{RunID: runID, TS: now, Stage: progress.StageRunResume, Step: 1, Total: 2},
		{RunID: runID, TS: now, Stage: progress.StageRunResume, Step: 1, Total: 2},
	}
	require.NoError(t, sink.Consume(context.Background(), resume))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsActive))

	done := []progress.Event{
		{RunID: runID, TS: now, Stage: progress.StageUnitSkip, Conference: "iccv.thecvf.com", Author: "Ada Lovelace", Step: 2, Total: 2},
		{RunID: runID, TS: now, Stage: progress.StageRunDone, Step: 2, Total: 2, Records: 2, Dur: time.Minute},
	}
	require.NoError(t, sink.Consume(context.Background(), done))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.runsActive))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsFinished.WithLabelValues("success")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.units.WithLabelValues("iccv.thecvf.com", "skipped")))
}

func TestPrometheusSinkRejectsDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}
