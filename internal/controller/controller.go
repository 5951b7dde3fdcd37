// Package controller runs the resumable crawl over conferences x authors.
//
// The Controller is a three-state machine (idle, running, paused). Start,
// Stop, Resume and Reset are the only transitions requested from outside;
// the work loop itself moves running to paused when the queue is exhausted
// or the run aborts. Stop is cooperative: the loop checks the state only
// between work units, so an in-flight unit always finishes and commits.
package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/hiparis-pubscraper/internal/clock/system"
	"github.com/JakeFAU/hiparis-pubscraper/internal/crawler"
	idgen "github.com/JakeFAU/hiparis-pubscraper/internal/id/uuid"
	"github.com/JakeFAU/hiparis-pubscraper/internal/progress"
	"github.com/JakeFAU/hiparis-pubscraper/internal/resolver"
)

// Options wires the controller's collaborators. Sources, Fetcher and Writer
// are required.
type Options struct {
	// BaseContext bounds every run; cancelling it aborts the active loop.
	BaseContext context.Context
	Sources     crawler.SourceFactory
	Fetcher     crawler.PublicationFetcher
	Resolver    crawler.DocumentResolver
	Retry       *crawler.LinearRetryPolicy
	Writer      crawler.ArtifactWriter
	// Publisher and Archive are optional completion hooks.
	Publisher crawler.Publisher
	Topic     string
	Archive   crawler.RecordArchive
	// Emitter receives progress events; it must not block.
	Emitter progress.Emitter
	Clock   crawler.Clock
	IDs     crawler.IDGenerator
	// MatchedOnly drops publications whose author list matches nobody on the roster.
	MatchedOnly bool
	Logger      *zap.Logger
}

// Controller owns one crawl session and the browsing session it uses.
type Controller struct {
	opts   Options
	logger *zap.Logger

	baseCtx    context.Context
	cancelBase context.CancelFunc

	// ctrlMu serializes signals; it may be held across session acquisition
	// and while Reset waits for the loop.
	ctrlMu sync.Mutex

	// mu guards the fields below and is never held across I/O.
	mu       sync.Mutex
	state    crawler.State
	sess     *session
	source   crawler.PageSource
	loopDone chan struct{}
	closed   bool
}

// New validates opts and returns an idle controller.
func New(opts Options) (*Controller, error) {
	if opts.Sources == nil {
		return nil, errors.New("source factory is required")
	}
	if opts.Fetcher == nil {
		return nil, errors.New("publication fetcher is required")
	}
	if opts.Writer == nil {
		return nil, errors.New("artifact writer is required")
	}
	if opts.Resolver == nil {
		opts.Resolver = resolver.NopResolver{}
	}
	if opts.Retry == nil {
		opts.Retry = crawler.NewLinearRetryPolicy(1, 2*time.Second)
	}
	if opts.Emitter == nil {
		opts.Emitter = progress.NopEmitter{}
	}
	if opts.Clock == nil {
		opts.Clock = system.New()
	}
	if opts.IDs == nil {
		opts.IDs = idgen.New()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	base := opts.BaseContext
	if base == nil {
		base = context.Background()
	}
	baseCtx, cancel := context.WithCancel(base)
	return &Controller{
		opts:       opts,
		logger:     opts.Logger.Named("controller"),
		baseCtx:    baseCtx,
		cancelBase: cancel,
		state:      crawler.StateIdle,
	}, nil
}

// State returns the current lifecycle state.
func (c *Controller) State() crawler.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Progress returns a snapshot of the current session.
func (c *Controller) Progress() Progress {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return Progress{State: c.state, Warnings: []string{}}
	}
	return c.sess.snapshot(c.state)
}

// Results returns a copy of the accumulated records in discovery order.
func (c *Controller) Results() []crawler.PublicationRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return nil
	}
	out := make([]crawler.PublicationRecord, len(c.sess.records))
	for i, rec := range c.sess.records {
		rec.MatchedAuthors = append([]string(nil), rec.MatchedAuthors...)
		out[i] = rec
	}
	return out
}

// Artifact returns the spreadsheet of the finished run.
func (c *Controller) Artifact() (crawler.Artifact, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil || c.sess.artifact == nil {
		return crawler.Artifact{}, crawler.ErrNoArtifact
	}
	return *c.sess.artifact, nil
}

// Start begins a new run over conferences x roster. It is valid only when
// idle. A browsing session that cannot be created yields a
// *crawler.FatalSessionError and leaves the controller idle.
func (c *Controller) Start(ctx context.Context, conferences []crawler.ConferenceSource, roster []string) error {
	c.ctrlMu.Lock()
	defer c.ctrlMu.Unlock()

	c.mu.Lock()
	state, closed := c.state, c.closed
	c.mu.Unlock()
	if closed {
		return errors.New("controller is closed")
	}
	if state != crawler.StateIdle {
		return fmt.Errorf("start from %s: %w", state, crawler.ErrInvalidTransition)
	}
	if len(conferences) == 0 {
		return crawler.ErrNoConferences
	}
	if len(roster) == 0 {
		return crawler.ErrEmptyRoster
	}
	runID, err := c.opts.IDs.NewID()
	if err != nil {
		return fmt.Errorf("generate run id: %w", err)
	}
	src, err := c.opts.Sources.NewSource(ctx)
	if err != nil {
		c.logger.Error("browsing session unavailable", zap.Error(err))
		return &crawler.FatalSessionError{Err: err}
	}

	now := c.opts.Clock.Now()
	sess := newSession(runID, idgen.Bytes(runID), conferences, roster, now)

	c.mu.Lock()
	c.sess = sess
	c.source = src
	c.state = crawler.StateRunning
	c.emitRunLocked(sess, progress.StageRunStart, 0, "")
	c.spawnLocked(src)
	c.mu.Unlock()

	c.logger.Info("crawl started",
		zap.String("run_id", runID),
		zap.Int("conferences", len(conferences)),
		zap.Int("authors", len(roster)),
	)
	return nil
}

// Stop asks the running loop to suspend at its next checkpoint.
func (c *Controller) Stop() error {
	c.ctrlMu.Lock()
	defer c.ctrlMu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != crawler.StateRunning {
		return fmt.Errorf("stop from %s: %w", c.state, crawler.ErrInvalidTransition)
	}
	c.state = crawler.StatePaused
	c.sess.updatedAt = c.opts.Clock.Now()
	c.logger.Info("stop requested", zap.String("run_id", c.sess.runID))
	return nil
}

// Resume continues a paused run from its cursor. It fails with
// crawler.ErrAlreadyComplete once the queue has been exhausted; after an
// aborted run it re-acquires a browsing session and retries from the last
// committed unit. A run that failed only at the spreadsheet write retries the
// write without opening a session.
func (c *Controller) Resume(ctx context.Context) error {
	c.ctrlMu.Lock()
	defer c.ctrlMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errors.New("controller is closed")
	}
	if c.state != crawler.StatePaused {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("resume from %s: %w", state, crawler.ErrInvalidTransition)
	}
	if c.sess.outcome.Finished() {
		c.mu.Unlock()
		return crawler.ErrAlreadyComplete
	}
	sess := c.sess
	if c.loopDone != nil {
		// The loop has not reached its checkpoint yet; it simply keeps going.
		c.state = crawler.StateRunning
		sess.updatedAt = c.opts.Clock.Now()
		step := sess.cursor.Step()
		c.mu.Unlock()
		c.logger.Info("stop withdrawn before checkpoint",
			zap.String("run_id", sess.runID), zap.Int("step", step))
		return nil
	}
	src := c.source
	// An exhausted cursor only has the spreadsheet write left.
	needSource := !sess.cursor.Done()
	c.mu.Unlock()

	if src == nil && needSource {
		var err error
		src, err = c.opts.Sources.NewSource(ctx)
		if err != nil {
			c.logger.Error("browsing session unavailable", zap.Error(err))
			return &crawler.FatalSessionError{Err: err}
		}
	}

	c.mu.Lock()
	now := c.opts.Clock.Now()
	c.source = src
	sess.outcome = crawler.OutcomeNone
	sess.errText = ""
	sess.notice = ""
	sess.resumedAt = now
	sess.updatedAt = now
	c.state = crawler.StateRunning
	step := sess.cursor.Step()
	c.emitRunLocked(sess, progress.StageRunResume, 0, "")
	c.spawnLocked(src)
	c.mu.Unlock()

	c.logger.Info("crawl resumed", zap.String("run_id", sess.runID), zap.Int("step", step))
	return nil
}

// Reset discards the paused session and returns to idle. It waits for an
// in-flight unit to finish before releasing the browsing session.
func (c *Controller) Reset(ctx context.Context) error {
	c.ctrlMu.Lock()
	defer c.ctrlMu.Unlock()

	c.mu.Lock()
	if c.state != crawler.StatePaused {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("reset from %s: %w", state, crawler.ErrInvalidTransition)
	}
	done := c.loopDone
	c.mu.Unlock()

	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return fmt.Errorf("wait for crawl loop: %w", ctx.Err())
		}
	}

	c.mu.Lock()
	src := c.source
	runID := c.sess.runID
	c.source = nil
	c.sess = nil
	c.state = crawler.StateIdle
	c.mu.Unlock()

	c.releaseSource(src)
	c.logger.Info("crawl reset", zap.String("run_id", runID))
	return nil
}

// Wait blocks until the work loop is not active.
func (c *Controller) Wait(ctx context.Context) error {
	c.mu.Lock()
	done := c.loopDone
	c.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for crawl loop: %w", ctx.Err())
	}
}

// Close aborts any active loop and releases the browsing session.
func (c *Controller) Close(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.cancelBase()
	if err := c.Wait(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	src := c.source
	c.source = nil
	c.mu.Unlock()
	c.releaseSource(src)
	return nil
}

func (c *Controller) spawnLocked(src crawler.PageSource) {
	done := make(chan struct{})
	c.loopDone = done
	go c.run(c.baseCtx, src, done)
}

func (c *Controller) releaseSource(src crawler.PageSource) {
	if src == nil {
		return
	}
	if err := src.Close(); err != nil {
		c.logger.Warn("close browsing session", zap.Error(err))
	}
}

// emitUnit reports a unit-scoped event; step is the cursor position the
// event describes.
func (c *Controller) emitUnit(
	sess *session,
	stage progress.Stage,
	u unit,
	step, records int,
	dur time.Duration,
	note string,
) {
	c.opts.Emitter.Emit(progress.Event{
		RunID:      sess.runKey,
		TS:         c.opts.Clock.Now(),
		Stage:      stage,
		Conference: u.conference.Label,
		Author:     u.author,
		Step:       step,
		Total:      u.total,
		Records:    records,
		Dur:        dur,
		Note:       note,
	})
}

// emitRunLocked reports a run-level event with the session cursor. Callers
// hold mu; emitters never block.
func (c *Controller) emitRunLocked(sess *session, stage progress.Stage, dur time.Duration, note string) {
	c.opts.Emitter.Emit(progress.Event{
		RunID:   sess.runKey,
		TS:      c.opts.Clock.Now(),
		Stage:   stage,
		Step:    sess.cursor.Step(),
		Total:   sess.cursor.Total(),
		Records: len(sess.records),
		Dur:     dur,
		Note:    note,
	})
}
