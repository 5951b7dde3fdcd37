// Package hybrid loads pages over plain HTTP and promotes a session to a
// headless browser when a page turns out to be rendered client-side.
package hybrid

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/hiparis-pubscraper/internal/crawler"
)

// StaticSource is a PageSource that exposes the raw body of its last load.
type StaticSource interface {
	crawler.PageSource
	Body() []byte
}

// StaticFactory creates StaticSource sessions.
type StaticFactory func(ctx context.Context) (StaticSource, error)

// Factory pairs a static and a rendering factory.
type Factory struct {
	static   StaticFactory
	render   crawler.SourceFactory
	detector *Detector
	logger   *zap.Logger

	promotions atomic.Int64
}

// NewFactory builds a Factory. detector may be nil.
func NewFactory(static StaticFactory, render crawler.SourceFactory, detector *Detector, logger *zap.Logger) *Factory {
	if detector == nil {
		detector = NewDetector(0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Factory{static: static, render: render, detector: detector, logger: logger}
}

// Promotions returns how many page loads were handed to the renderer.
func (f *Factory) Promotions() int64 {
	return f.promotions.Load()
}

// NewSource implements crawler.SourceFactory. The rendering session is only
// started on the first promotion.
func (f *Factory) NewSource(ctx context.Context) (crawler.PageSource, error) {
	static, err := f.static(ctx)
	if err != nil {
		return nil, fmt.Errorf("static source: %w", err)
	}
	return &Source{factory: f, static: static}, nil
}

// Source is one hybrid session. WaitForSelector queries whichever session
// served the last load.
type Source struct {
	factory *Factory
	static  StaticSource

	mu       sync.Mutex
	rendered crawler.PageSource
	active   crawler.PageSource
	closed   bool
}

// Load fetches target statically and re-renders it when the detector asks for it.
func (s *Source) Load(ctx context.Context, target string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return crawler.ErrSourceUnavailable
	}
	s.active = nil
	if err := s.static.Load(ctx, target); err != nil {
		return err
	}
	if !s.factory.detector.NeedsRendering(s.static.Body()) {
		s.active = s.static
		return nil
	}

	if s.rendered == nil {
		rendered, err := s.factory.render.NewSource(ctx)
		if err != nil {
			return fmt.Errorf("%w: start renderer: %v", crawler.ErrSourceUnavailable, err)
		}
		s.rendered = rendered
	}
	s.factory.promotions.Add(1)
	s.factory.logger.Debug("promoting page to renderer", zap.String("url", target))
	if err := s.rendered.Load(ctx, target); err != nil {
		return fmt.Errorf("render %s: %w", target, err)
	}
	s.active = s.rendered
	return nil
}

// WaitForSelector delegates to the session that served the last load.
func (s *Source) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) ([]crawler.Element, error) {
	s.mu.Lock()
	active := s.active
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, crawler.ErrSourceUnavailable
	}
	if active == nil {
		return nil, fmt.Errorf("%w: no page loaded", crawler.ErrSelectorTimeout)
	}
	elems, err := active.WaitForSelector(ctx, selector, timeout)
	if err != nil {
		return nil, fmt.Errorf("wait for %s: %w", selector, err)
	}
	return elems, nil
}

// Close closes both sessions.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.active = nil
	var errs []error
	if err := s.static.Close(); err != nil {
		errs = append(errs, err)
	}
	if s.rendered != nil {
		if err := s.rendered.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
