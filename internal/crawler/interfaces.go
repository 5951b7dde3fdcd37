package crawler

import (
	"context"
	"io"
	"time"
)

// PageSource is a single browsing session able to load a page and query the
// rendered DOM. Implementations are not required to be safe for concurrent use.
type PageSource interface {
	Load(ctx context.Context, url string) error
	// WaitForSelector waits up to timeout for at least one element matching
	// the CSS selector and returns every match. It returns ErrSelectorTimeout
	// when nothing matched in time.
	WaitForSelector(ctx context.Context, selector string, timeout time.Duration) ([]Element, error)
	Close() error
}

// SourceFactory creates browsing sessions.
type SourceFactory interface {
	NewSource(ctx context.Context) (PageSource, error)
}

// PublicationFetcher scrapes the candidates for one (conference, author) unit.
type PublicationFetcher interface {
	Fetch(ctx context.Context, src PageSource, conf ConferenceSource, author string) ([]Candidate, error)
}

// DocumentResolver finds a PDF link for a title. It never fails; on any
// error it returns DocumentNotFound with the cause in Resolution.Err.
type DocumentResolver interface {
	Resolve(ctx context.Context, src PageSource, title string) Resolution
}

// ArtifactWriter turns the final records into a stored spreadsheet.
type ArtifactWriter interface {
	WriteArtifact(ctx context.Context, runID string, records []PublicationRecord) (Artifact, error)
}

// BlobStore persists artifacts under a relative path.
type BlobStore interface {
	// PutObject stores data and returns a URI describing its location.
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
	// GetObject returns the bytes stored at path.
	GetObject(ctx context.Context, path string) ([]byte, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// RecordArchive persists the records of a finished run.
type RecordArchive interface {
	SaveRun(ctx context.Context, runID string, finishedAt time.Time, records []PublicationRecord) error
}

// Throttle delays page loads per host.
type Throttle interface {
	Wait(ctx context.Context, url string) error
}

// Hasher computes digests for artifact integrity.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
