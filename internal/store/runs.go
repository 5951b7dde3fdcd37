package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound signals that the requested run does not exist.
var ErrNotFound = errors.New("run not found")

// RunStatus mirrors the runs status column.
type RunStatus string

// Run statuses persisted in the runs table.
const (
	RunRunning   RunStatus = "running"
	RunPaused    RunStatus = "paused"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// Valid reports whether s is a known status.
func (s RunStatus) Valid() bool {
	switch s {
	case RunRunning, RunPaused, RunCompleted, RunFailed:
		return true
	default:
		return false
	}
}

// Run is one crawl session as recorded in the history.
type Run struct {
	ID         uuid.UUID  `json:"id"`
	StartedAt  time.Time  `json:"started_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Status     RunStatus  `json:"status"`
	// Step counts finished (conference, author) units out of Total.
	Step    int `json:"step"`
	Total   int `json:"total"`
	Records int `json:"records"`
	// Error holds the message of the last failure, cleared on resume.
	Error *string `json:"error,omitempty"`
}

// RunRepository persists run history.
type RunRepository interface {
	// UpsertRunStart records a new running run.
	UpsertRunStart(ctx context.Context, runID uuid.UUID, startedAt time.Time, total int) error
	// AdvanceRun moves the cursor to step and adds deltaRecords publications.
	AdvanceRun(ctx context.Context, runID uuid.UUID, step, deltaRecords int, at time.Time) error
	// SetRunStatus flips a run between running and paused. Moving back to
	// running clears any previous finish time and error.
	SetRunStatus(ctx context.Context, runID uuid.UUID, status RunStatus, at time.Time) error
	// FinishRun marks the run completed or failed. A nil records keeps the
	// accumulated count.
	FinishRun(
		ctx context.Context,
		runID uuid.UUID,
		finishedAt time.Time,
		status RunStatus,
		step int,
		records *int,
		errMsg *string,
	) error

	// GetRun loads a single run or returns ErrNotFound.
	GetRun(ctx context.Context, runID uuid.UUID) (Run, error)
	// ListRuns returns runs newest first, filtered by an optional status.
	ListRuns(ctx context.Context, status *RunStatus, limit, offset int) ([]Run, error)
}
