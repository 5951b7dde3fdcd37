package controller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/hiparis-pubscraper/internal/crawler"
	"github.com/JakeFAU/hiparis-pubscraper/internal/progress"
)

type action int

const (
	actionWork action = iota
	actionSuspend
	actionFinish
	actionAbort
)

// run is the work loop. It owns src while active and exits by suspending,
// finishing or aborting; each exit path clears loopDone and closes done.
func (c *Controller) run(ctx context.Context, src crawler.PageSource, done chan struct{}) {
	for {
		sess, u, act := c.checkpoint(ctx, done)
		switch act {
		case actionSuspend:
			c.logger.Info("crawl paused", zap.String("run_id", sess.runID))
			return
		case actionFinish:
			c.finish(ctx, sess, src, done)
			return
		case actionAbort:
			c.abort(sess, src, u, ctx.Err(), done)
			return
		}
		if err := c.processUnit(ctx, sess, src, u); err != nil {
			c.abort(sess, src, u, err, done)
			return
		}
	}
}

// checkpoint is the only place the loop observes Stop. Suspension happens
// under the same lock as the state check so a concurrent Resume either sees
// the loop still active or finds it fully stopped.
func (c *Controller) checkpoint(ctx context.Context, done chan struct{}) (*session, unit, action) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sess := c.sess
	if c.state != crawler.StateRunning {
		sess.pause(c.opts.Clock.Now())
		c.emitRunLocked(sess, progress.StageRunPause, 0, "")
		c.loopDone = nil
		close(done)
		return sess, unit{}, actionSuspend
	}
	if sess.cursor.Done() {
		return sess, unit{}, actionFinish
	}
	u := sess.current()
	if ctx.Err() != nil {
		return sess, u, actionAbort
	}
	sess.status = statusLine(u)
	sess.updatedAt = c.opts.Clock.Now()
	return sess, u, actionWork
}

// processUnit fetches one (conference, author) unit, resolves the documents
// of its new publications and commits everything at once. A returned error
// aborts the run; per-unit failures are absorbed as warnings.
func (c *Controller) processUnit(ctx context.Context, sess *session, src crawler.PageSource, u unit) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &crawler.UnhandledCrawlError{
				Conference: u.conference.Label,
				Author:     u.author,
				Err:        fmt.Errorf("panic: %v", r),
			}
		}
	}()
	started := c.opts.Clock.Now()

	var candidates []crawler.Candidate
	attempts, fetchErr := c.opts.Retry.Do(ctx, func(ctx context.Context, _ int) error {
		var ferr error
		candidates, ferr = c.opts.Fetcher.Fetch(ctx, src, u.conference, u.author)
		return ferr
	}, func(attempt int, err error, wait time.Duration) {
		c.warn(sess, fmt.Sprintf("Attempt %d failed for %s. Retrying in %g seconds...", attempt, u.author, wait.Seconds()),
			zap.String("conference", u.conference.Label), zap.Error(err))
	})
	if fetchErr != nil {
		if isFatal(ctx, fetchErr) {
			return unhandled(u, fetchErr)
		}
		c.warn(sess, fmt.Sprintf("No publications found for %s after %d attempts.", u.author, attempts),
			zap.String("conference", u.conference.Label), zap.Error(fetchErr))
		c.commit(sess, nil)
		c.emitUnit(sess, progress.StageUnitSkip, u, u.step, 0, c.opts.Clock.Now().Sub(started), fetchErr.Error())
		return nil
	}

	records := c.newRecords(sess, u, candidates)
	for i := range records {
		res := c.opts.Resolver.Resolve(ctx, src, records[i].Title)
		if res.Link == "" {
			res.Link = crawler.DocumentNotFound
		}
		if res.Err != nil && isFatal(ctx, res.Err) {
			return unhandled(u, res.Err)
		}
		records[i].Paper = res.Link
		switch {
		case res.Err != nil:
			c.warn(sess, fmt.Sprintf("Could not find PDF for: %s", records[i].Title), zap.Error(res.Err))
			c.emitUnit(sess, progress.StageDocMissing, u, u.step-1, 0, 0, records[i].Title)
		case res.Link == crawler.DocumentNotFound:
			c.emitUnit(sess, progress.StageDocMissing, u, u.step-1, 0, 0, records[i].Title)
		default:
			c.emitUnit(sess, progress.StageDocFound, u, u.step-1, 0, 0, records[i].Title)
		}
	}

	c.commit(sess, records)
	c.emitUnit(sess, progress.StageUnitDone, u, u.step, len(records), c.opts.Clock.Now().Sub(started), "")
	return nil
}

// newRecords turns candidates into records for keys not yet seen in this
// session or earlier in the same page.
func (c *Controller) newRecords(sess *session, u unit, candidates []crawler.Candidate) []crawler.PublicationRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	local := make(map[crawler.PublicationKey]struct{}, len(candidates))
	var out []crawler.PublicationRecord
	for _, cand := range candidates {
		key := crawler.PublicationKey{Title: cand.Title, Conference: u.conference.Label}
		if sess.registry.Seen(key) {
			continue
		}
		if _, dup := local[key]; dup {
			continue
		}
		local[key] = struct{}{}
		matched := crawler.MatchAuthors(cand.Authors, sess.roster)
		if c.opts.MatchedOnly && len(matched) == 0 {
			continue
		}
		out = append(out, crawler.PublicationRecord{
			Conference:     u.conference.Label,
			Title:          cand.Title,
			MatchedAuthors: matched,
			AllAuthors:     cand.Authors,
			Paper:          crawler.DocumentNotFound,
		})
	}
	return out
}

// commit records keys, appends records and advances the cursor atomically.
func (c *Controller) commit(sess *session, records []crawler.PublicationRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, rec := range records {
		if err := sess.registry.Record(rec.Key()); err != nil {
			c.logger.Error("duplicate publication reached commit", zap.String("title", rec.Title))
			continue
		}
		sess.records = append(sess.records, rec)
	}
	sess.cursor = sess.cursor.Advance()
	sess.updatedAt = c.opts.Clock.Now()
}

func (c *Controller) warn(sess *session, msg string, fields ...zap.Field) {
	c.logger.Warn(msg, append([]zap.Field{zap.String("run_id", sess.runID)}, fields...)...)
	c.mu.Lock()
	sess.warn(msg, c.opts.Clock.Now())
	c.mu.Unlock()
}

// finish releases the browsing session, writes the artifact and runs the
// completion hooks.
func (c *Controller) finish(ctx context.Context, sess *session, src crawler.PageSource, done chan struct{}) {
	c.mu.Lock()
	records := append([]crawler.PublicationRecord(nil), sess.records...)
	if c.source == src {
		c.source = nil
	}
	c.mu.Unlock()
	c.releaseSource(src)

	if len(records) == 0 {
		c.complete(sess, crawler.OutcomeEmpty, NoticeEmpty, nil, done)
		return
	}
	art, err := c.opts.Writer.WriteArtifact(ctx, sess.runID, records)
	if err != nil {
		c.fail(sess, fmt.Errorf("write spreadsheet: %w", err), done)
		return
	}
	c.runHooks(ctx, sess, art, records)
	c.complete(sess, crawler.OutcomeCompleted, NoticeCompleted, &art, done)
}

func (c *Controller) complete(
	sess *session,
	outcome crawler.Outcome,
	notice string,
	art *crawler.Artifact,
	done chan struct{},
) {
	c.mu.Lock()
	now := c.opts.Clock.Now()
	sess.outcome = outcome
	sess.notice = notice
	sess.artifact = art
	sess.pause(now)
	count := len(sess.records)
	c.state = crawler.StatePaused
	c.emitRunLocked(sess, progress.StageRunDone, sess.active, notice)
	c.loopDone = nil
	close(done)
	c.mu.Unlock()

	c.logger.Info("crawl finished",
		zap.String("run_id", sess.runID),
		zap.String("outcome", string(outcome)),
		zap.Int("records", count),
	)
}

// abort releases the browsing session and parks the run as failed. The unit
// in flight was not committed and is re-processed on resume.
func (c *Controller) abort(sess *session, src crawler.PageSource, u unit, err error, done chan struct{}) {
	if err == nil {
		err = errors.New("crawl aborted")
	}
	var unhandledErr *crawler.UnhandledCrawlError
	if !errors.As(err, &unhandledErr) {
		err = unhandled(u, err)
	}
	c.mu.Lock()
	if c.source == src {
		c.source = nil
	}
	c.mu.Unlock()
	c.releaseSource(src)
	c.fail(sess, err, done)
}

func (c *Controller) fail(sess *session, err error, done chan struct{}) {
	c.mu.Lock()
	sess.outcome = crawler.OutcomeFailed
	sess.errText = err.Error()
	sess.pause(c.opts.Clock.Now())
	c.state = crawler.StatePaused
	c.emitRunLocked(sess, progress.StageRunError, sess.active, err.Error())
	c.loopDone = nil
	close(done)
	c.mu.Unlock()

	c.logger.Error("crawl aborted", zap.String("run_id", sess.runID), zap.Error(err))
}

func isFatal(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	return errors.Is(err, crawler.ErrSourceUnavailable)
}

func unhandled(u unit, err error) error {
	return &crawler.UnhandledCrawlError{Conference: u.conference.Label, Author: u.author, Err: err}
}
