// Package crawlertest provides an in-memory PageSource for tests.
package crawlertest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/hiparis-pubscraper/internal/crawler"
)

// Page is the DOM of one fake URL, keyed by selector.
type Page map[string][]crawler.Element

// Source serves canned pages. Unknown URLs load as empty pages so every
// selector times out, like a results page without matches.
type Source struct {
	mu       sync.Mutex
	pages    map[string]Page
	loadErrs map[string]error
	current  string
	loads    []string
	closed   int
	// OnLoad, when set, runs before each load and may return an error to fail it.
	OnLoad func(url string) error
}

// NewSource returns an empty fake source.
func NewSource() *Source {
	return &Source{
		pages:    make(map[string]Page),
		loadErrs: make(map[string]error),
	}
}

// SetPage registers the DOM served for url.
func (s *Source) SetPage(url string, page Page) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[url] = page
}

// FailLoad makes every load of url return err.
func (s *Source) FailLoad(url string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadErrs[url] = err
}

// Load implements crawler.PageSource.
func (s *Source) Load(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("fake load: %w", err)
	}
	if s.OnLoad != nil {
		if err := s.OnLoad(url); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads = append(s.loads, url)
	if err, ok := s.loadErrs[url]; ok {
		return err
	}
	s.current = url
	return nil
}

// WaitForSelector implements crawler.PageSource without sleeping.
func (s *Source) WaitForSelector(_ context.Context, selector string, _ time.Duration) ([]crawler.Element, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	page := s.pages[s.current]
	elems := page[selector]
	if len(elems) == 0 {
		return nil, crawler.ErrSelectorTimeout
	}
	return append([]crawler.Element(nil), elems...), nil
}

// Close implements crawler.PageSource.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

// Loads returns every URL passed to Load, in order.
func (s *Source) Loads() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.loads...)
}

// Closed returns how many times Close was called.
func (s *Source) Closed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Factory hands out one shared Source, optionally failing creation.
type Factory struct {
	mu      sync.Mutex
	Source  *Source
	Err     error
	created int
}

// NewSource implements crawler.SourceFactory.
func (f *Factory) NewSource(context.Context) (crawler.PageSource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	f.created++
	return f.Source, nil
}

// SetErr makes later NewSource calls fail with err.
func (f *Factory) SetErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Err = err
}

// Created returns how many sessions were handed out.
func (f *Factory) Created() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created
}

// Titles builds elements from texts.
func Titles(texts ...string) []crawler.Element {
	out := make([]crawler.Element, 0, len(texts))
	for _, t := range texts {
		out = append(out, crawler.Element{Text: t})
	}
	return out
}
