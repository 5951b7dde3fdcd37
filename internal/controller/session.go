package controller

import (
	"fmt"
	"time"

	"github.com/JakeFAU/hiparis-pubscraper/internal/crawler"
)

// Notices shown when a run leaves the work loop.
const (
	NoticeCompleted = "Scraping completed!"
	NoticeEmpty     = "No publications found"
)

// Progress is a read-only snapshot of the controller.
type Progress struct {
	RunID       string                     `json:"run_id,omitempty"`
	State       crawler.State              `json:"state"`
	Outcome     crawler.Outcome            `json:"outcome,omitempty"`
	Step        int                        `json:"step"`
	Total       int                        `json:"total"`
	Cursor      crawler.Cursor             `json:"cursor"`
	Status      string                     `json:"status,omitempty"`
	Notice      string                     `json:"notice,omitempty"`
	Error       string                     `json:"error,omitempty"`
	Warnings    []string                   `json:"warnings"`
	Records     int                        `json:"records"`
	Conferences []crawler.ConferenceSource `json:"conferences,omitempty"`
	Authors     int                        `json:"authors"`
	Artifact    *crawler.Artifact          `json:"artifact,omitempty"`
	StartedAt   time.Time                  `json:"started_at,omitempty"`
	UpdatedAt   time.Time                  `json:"updated_at,omitempty"`
}

// session is everything one crawl accumulates between Start and Reset.
type session struct {
	runID       string
	runKey      [16]byte
	conferences []crawler.ConferenceSource
	roster      []string

	cursor   crawler.Cursor
	registry *crawler.Registry
	records  []crawler.PublicationRecord
	warnings []string
	status   string
	notice   string
	errText  string
	outcome  crawler.Outcome
	artifact *crawler.Artifact

	startedAt time.Time
	updatedAt time.Time
	// resumedAt marks the start of the current active stretch; active sums
	// the earlier ones.
	resumedAt time.Time
	active    time.Duration
}

func newSession(
	runID string,
	runKey [16]byte,
	conferences []crawler.ConferenceSource,
	roster []string,
	now time.Time,
) *session {
	return &session{
		runID:       runID,
		runKey:      runKey,
		conferences: append([]crawler.ConferenceSource(nil), conferences...),
		roster:      append([]string(nil), roster...),
		cursor:      crawler.NewCursor(len(conferences), len(roster)),
		registry:    crawler.NewRegistry(),
		startedAt:   now,
		updatedAt:   now,
		resumedAt:   now,
	}
}

type unit struct {
	conference crawler.ConferenceSource
	author     string
	step       int
	total      int
}

func (s *session) current() unit {
	return unit{
		conference: s.conferences[s.cursor.Conference],
		author:     s.roster[s.cursor.Author],
		step:       s.cursor.Step() + 1,
		total:      s.cursor.Total(),
	}
}

func statusLine(u unit) string {
	return fmt.Sprintf("Processing %s for %s (%d/%d)", u.author, u.conference.Label, u.step, u.total)
}

func (s *session) warn(msg string, now time.Time) {
	s.warnings = append(s.warnings, msg)
	s.updatedAt = now
}

// pause closes the current active stretch.
func (s *session) pause(now time.Time) {
	if !s.resumedAt.IsZero() {
		s.active += now.Sub(s.resumedAt)
		s.resumedAt = time.Time{}
	}
	s.updatedAt = now
}

func (s *session) elapsed(now time.Time) time.Duration {
	if s.resumedAt.IsZero() {
		return s.active
	}
	return s.active + now.Sub(s.resumedAt)
}

func (s *session) snapshot(state crawler.State) Progress {
	p := Progress{
		RunID:       s.runID,
		State:       state,
		Outcome:     s.outcome,
		Step:        s.cursor.Step(),
		Total:       s.cursor.Total(),
		Cursor:      s.cursor,
		Status:      s.status,
		Notice:      s.notice,
		Error:       s.errText,
		Warnings:    append([]string{}, s.warnings...),
		Records:     len(s.records),
		Conferences: append([]crawler.ConferenceSource(nil), s.conferences...),
		Authors:     len(s.roster),
		StartedAt:   s.startedAt,
		UpdatedAt:   s.updatedAt,
	}
	if s.artifact != nil {
		art := *s.artifact
		p.Artifact = &art
	}
	return p
}
