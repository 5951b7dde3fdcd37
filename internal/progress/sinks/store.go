package sinks

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/hiparis-pubscraper/internal/progress"
	"github.com/JakeFAU/hiparis-pubscraper/internal/store"
)

// StoreSink persists run history via a store.RunRepository. Unit events are
// collapsed per run so a batch costs one cursor update per run.
type StoreSink struct {
	repo   store.RunRepository
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for the provided repository.
func NewStoreSink(repo store.RunRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger.Named("runs")}
}

// Consume applies the batch in order. A run's pending unit delta is written
// before any run-level event of the same run.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	pending := make(map[uuid.UUID]*unitDelta)
	order := make([]uuid.UUID, 0, 1)

	for _, evt := range batch {
		runID := uuid.UUID(evt.RunID)
		switch evt.Stage {
		case progress.StageUnitDone, progress.StageUnitSkip:
			delta := pending[runID]
			if delta == nil {
				delta = &unitDelta{}
				pending[runID] = delta
				order = append(order, runID)
			}
			delta.add(evt)
		case progress.StageRunStart, progress.StageRunPause, progress.StageRunResume,
			progress.StageRunDone, progress.StageRunError:
			if err := s.flush(ctx, runID, pending[runID]); err != nil {
				return err
			}
			delete(pending, runID)
			if err := s.handleRunEvent(ctx, runID, evt); err != nil {
				return err
			}
		}
	}

	for _, runID := range order {
		if err := s.flush(ctx, runID, pending[runID]); err != nil {
			return err
		}
	}
	return nil
}

func (s *StoreSink) flush(ctx context.Context, runID uuid.UUID, delta *unitDelta) error {
	if delta == nil || delta.units == 0 {
		return nil
	}
	if err := s.repo.AdvanceRun(ctx, runID, delta.step, delta.records, delta.at); err != nil {
		return fmt.Errorf("advance run: %w", err)
	}
	return nil
}

func (s *StoreSink) handleRunEvent(ctx context.Context, runID uuid.UUID, evt progress.Event) error {
	switch evt.Stage {
	case progress.StageRunStart:
		if err := s.repo.UpsertRunStart(ctx, runID, evt.TS, evt.Total); err != nil {
			return fmt.Errorf("upsert run start: %w", err)
		}
	case progress.StageRunPause:
		if err := s.repo.SetRunStatus(ctx, runID, store.RunPaused, evt.TS); err != nil {
			return fmt.Errorf("pause run: %w", err)
		}
	case progress.StageRunResume:
		if err := s.repo.SetRunStatus(ctx, runID, store.RunRunning, evt.TS); err != nil {
			return fmt.Errorf("resume run: %w", err)
		}
	case progress.StageRunDone:
		records := evt.Records
		if err := s.repo.FinishRun(ctx, runID, evt.TS, store.RunCompleted, evt.Step, &records, nil); err != nil {
			return fmt.Errorf("finish run: %w", err)
		}
	case progress.StageRunError:
		var note *string
		if evt.Note != "" {
			msg := evt.Note
			note = &msg
		}
		if err := s.repo.FinishRun(ctx, runID, evt.TS, store.RunFailed, evt.Step, nil, note); err != nil {
			return fmt.Errorf("finish run: %w", err)
		}
		s.logger.Debug("run failure recorded", zap.String("run_id", runID.String()))
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}

type unitDelta struct {
	units   int
	step    int
	records int
	at      time.Time
}

func (d *unitDelta) add(evt progress.Event) {
	d.units++
	d.records += evt.Records
	if evt.Step > d.step {
		d.step = evt.Step
	}
	if d.at.IsZero() || evt.TS.After(d.at) {
		d.at = evt.TS
	}
}
