package crawler

import (
	"strings"
	"time"
)

// DocumentNotFound is the sentinel stored in the Paper column when no PDF link
// could be resolved for a publication.
const DocumentNotFound = "N/A"

// ConferenceSource is one configured proceedings search endpoint.
type ConferenceSource struct {
	// URLTemplate is the search URL prefix; the URL-encoded author name is appended.
	URLTemplate string `json:"url_template"`
	// Label is the short conference identifier used in output rows and dedup keys.
	Label string `json:"label"`
}

// PublicationKey identifies a publication for deduplication.
type PublicationKey struct {
	Title      string
	Conference string
}

// Candidate is a raw (title, authors) pair scraped from a results page.
type Candidate struct {
	Title   string `json:"title"`
	Authors string `json:"authors"`
}

// PublicationRecord is one output row.
type PublicationRecord struct {
	Conference     string   `json:"conference"`
	Title          string   `json:"title"`
	MatchedAuthors []string `json:"matched_authors"`
	AllAuthors     string   `json:"all_authors"`
	Paper          string   `json:"paper"`
}

// Key returns the deduplication key of the record.
func (r PublicationRecord) Key() PublicationKey {
	return PublicationKey{Title: r.Title, Conference: r.Conference}
}

// MatchedDisplay renders the matched roster names comma separated.
func (r PublicationRecord) MatchedDisplay() string {
	return strings.Join(r.MatchedAuthors, ", ")
}

// HasDocument reports whether a real PDF link was resolved.
func (r PublicationRecord) HasDocument() bool {
	return r.Paper != "" && r.Paper != DocumentNotFound
}

// Resolution is the outcome of a PDF lookup. Link is always populated; Err is
// set when Link is DocumentNotFound because the lookup failed.
type Resolution struct {
	Link string
	Err  error
}

// State is the controller lifecycle state.
type State string

// Controller states.
const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StatePaused  State = "paused"
)

// Outcome describes how the most recent run of the work loop ended.
type Outcome string

// Supported outcomes.
const (
	OutcomeNone      Outcome = ""
	OutcomeCompleted Outcome = "completed"
	OutcomeEmpty     Outcome = "empty"
	OutcomeFailed    Outcome = "failed"
)

// Finished reports whether the outcome means the cursor is exhausted.
func (o Outcome) Finished() bool {
	return o == OutcomeCompleted || o == OutcomeEmpty
}

// Artifact describes the spreadsheet produced at the end of a run.
type Artifact struct {
	Name        string    `json:"name"`
	Path        string    `json:"path"`
	URI         string    `json:"uri"`
	ContentType string    `json:"content_type"`
	Size        int       `json:"size"`
	SHA256      string    `json:"sha256"`
	Records     int       `json:"records"`
	CreatedAt   time.Time `json:"created_at"`
}

// Element is the text and optional href of one DOM node matched by a selector.
type Element struct {
	Text string
	Href string
}
