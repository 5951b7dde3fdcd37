package controller

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/hiparis-pubscraper/internal/crawler"
)

// CompletionMessage is published when a run produced a spreadsheet.
type CompletionMessage struct {
	RunID       string    `json:"run_id"`
	Records     int       `json:"records"`
	ArtifactURI string    `json:"artifact_uri"`
	SHA256      string    `json:"sha256"`
	FinishedAt  time.Time `json:"finished_at"`
}

// runHooks notifies and archives a finished run. Failures become warnings.
func (c *Controller) runHooks(
	ctx context.Context,
	sess *session,
	art crawler.Artifact,
	records []crawler.PublicationRecord,
) {
	finishedAt := c.opts.Clock.Now()
	if c.opts.Archive != nil {
		if err := c.opts.Archive.SaveRun(ctx, sess.runID, finishedAt, records); err != nil {
			c.warn(sess, fmt.Sprintf("Could not archive results: %v", err))
		}
	}
	if c.opts.Publisher != nil {
		msg := CompletionMessage{
			RunID:       sess.runID,
			Records:     len(records),
			ArtifactURI: art.URI,
			SHA256:      art.SHA256,
			FinishedAt:  finishedAt,
		}
		id, err := c.opts.Publisher.Publish(ctx, c.opts.Topic, msg)
		if err != nil {
			c.warn(sess, fmt.Sprintf("Could not publish completion event: %v", err))
			return
		}
		c.logger.Info("completion published", zap.String("run_id", sess.runID), zap.String("message_id", id))
	}
}
