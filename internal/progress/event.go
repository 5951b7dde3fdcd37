package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage denotes the milestone an Event represents.
type Stage string

// Run-level and unit-level stages.
const (
	StageRunStart   Stage = "RUN_START"
	StageRunPause   Stage = "RUN_PAUSE"
	StageRunResume  Stage = "RUN_RESUME"
	StageRunDone    Stage = "RUN_DONE"
	StageRunError   Stage = "RUN_ERROR"
	StageUnitDone   Stage = "UNIT_DONE"
	StageUnitSkip   Stage = "UNIT_SKIPPED"
	StageDocFound   Stage = "DOC_RESOLVED"
	StageDocMissing Stage = "DOC_MISSING"
)

// Event is one progress milestone of a crawl run.
type Event struct {
	// RunID is the 16-byte form of the run identifier.
	RunID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS    time.Time
	Stage Stage
	// Conference is the conference label; required on unit and document events.
	Conference string
	Author     string
	// Step and Total mirror the cursor after the event.
	Step  int
	Total int
	// Records is the number of publications the event added (unit events) or
	// holds in total (RUN_DONE).
	Records int
	// Dur is the unit or run wall time.
	Dur time.Duration
	// Note carries short human-readable context such as an error message.
	Note string
}

// IsUnit reports whether the stage is scoped to one (conference, author) unit.
func (s Stage) IsUnit() bool {
	switch s {
	case StageUnitDone, StageUnitSkip, StageDocFound, StageDocMissing:
		return true
	default:
		return false
	}
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunPause, StageRunResume, StageRunDone, StageRunError:
	case StageUnitDone, StageUnitSkip, StageDocFound, StageDocMissing:
		if e.Conference == "" {
			return fmt.Errorf("%s requires a conference", e.Stage)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	if e.Step < 0 || e.Total < 0 || e.Step > e.Total {
		return fmt.Errorf("step %d out of range for total %d", e.Step, e.Total)
	}
	return nil
}
