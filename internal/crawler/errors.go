package crawler

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the crawl pipeline.
var (
	// ErrSelectorTimeout is returned by a PageSource when no element matched
	// the selector before the wait elapsed.
	ErrSelectorTimeout = errors.New("selector wait timed out")
	// ErrSourceUnavailable means the browsing session itself is gone and no
	// further page loads can succeed.
	ErrSourceUnavailable = errors.New("page source unavailable")
	// ErrElementMismatch means the title and author element lists differ in length.
	ErrElementMismatch = errors.New("title and author element counts differ")
	// ErrInvalidTransition is returned when a signal is not legal in the current state.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrNoConferences rejects a start without configured conference sources.
	ErrNoConferences = errors.New("no conference sources configured")
	// ErrEmptyRoster rejects a start without roster names.
	ErrEmptyRoster = errors.New("roster is empty")
	// ErrAlreadyComplete rejects a resume after the work queue is exhausted.
	ErrAlreadyComplete = errors.New("crawl already complete")
	// ErrAlreadyRecorded is returned when a key is recorded twice.
	ErrAlreadyRecorded = errors.New("publication already recorded")
	// ErrNoArtifact means no spreadsheet has been produced yet.
	ErrNoArtifact = errors.New("no artifact available")
	// ErrObjectNotFound is returned by blob stores for unknown paths.
	ErrObjectNotFound = errors.New("object not found")
	// ErrDisallowed means robots.txt forbids loading the page.
	ErrDisallowed = errors.New("disallowed by robots.txt")
)

// ConfigurationError reports invalid user-supplied configuration such as a
// conference URL whose year segment disagrees with the selected year.
type ConfigurationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

// NoResultsError means the results page for an author never showed a title.
type NoResultsError struct {
	Author     string
	Conference string
	Err        error
}

func (e *NoResultsError) Error() string {
	return fmt.Sprintf("no results for %s at %s: %v", e.Author, e.Conference, e.Err)
}

func (e *NoResultsError) Unwrap() error { return e.Err }

// DocumentResolutionError describes a failed PDF lookup. It never escapes the
// resolver as a returned error; it travels in Resolution.Err.
type DocumentResolutionError struct {
	Title string
	Err   error
}

func (e *DocumentResolutionError) Error() string {
	return fmt.Sprintf("could not find PDF for %q: %v", e.Title, e.Err)
}

func (e *DocumentResolutionError) Unwrap() error { return e.Err }

// FatalSessionError means the browsing session could not be created.
type FatalSessionError struct {
	Err error
}

func (e *FatalSessionError) Error() string {
	return fmt.Sprintf("browsing session unavailable: %v", e.Err)
}

func (e *FatalSessionError) Unwrap() error { return e.Err }

// UnhandledCrawlError wraps an unexpected failure that aborted the work loop.
type UnhandledCrawlError struct {
	Conference string
	Author     string
	Err        error
}

func (e *UnhandledCrawlError) Error() string {
	return fmt.Sprintf("crawl aborted at %s / %s: %v", e.Conference, e.Author, e.Err)
}

func (e *UnhandledCrawlError) Unwrap() error { return e.Err }
