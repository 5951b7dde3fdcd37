// Package collyfetcher implements a static-HTML PageSource using gocolly.
package collyfetcher

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/hiparis-pubscraper/internal/crawler"
)

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
}

// Factory creates static sessions sharing one pooled transport.
type Factory struct {
	cfg       Config
	transport http.RoundTripper
	throttle  crawler.Throttle
	logger    *zap.Logger
}

// NewFactory builds a Factory. throttle may be nil.
func NewFactory(cfg Config, throttle crawler.Throttle, logger *zap.Logger) *Factory {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var transport http.RoundTripper = newHTTPTransport()
	if cfg.RespectRobots {
		transport = newRobotsTransport(transport, logger)
	}
	return &Factory{
		cfg:       cfg,
		transport: transport,
		throttle:  throttle,
		logger:    logger,
	}
}

// NewSource implements crawler.SourceFactory.
func (f *Factory) NewSource(ctx context.Context) (crawler.PageSource, error) {
	return f.NewStaticSource(ctx)
}

// NewStaticSource returns the concrete session, for callers that need Body.
func (f *Factory) NewStaticSource(context.Context) (*Source, error) {
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	if f.cfg.UserAgent != "" {
		c.UserAgent = f.cfg.UserAgent
	}
	c.IgnoreRobotsTxt = !f.cfg.RespectRobots
	c.SetRequestTimeout(f.cfg.Timeout)
	c.WithTransport(f.transport)
	return &Source{base: c, throttle: f.throttle, logger: f.logger}, nil
}

// Source fetches pages over plain HTTP and queries the parsed document. The
// DOM never changes after load, so WaitForSelector does not wait.
type Source struct {
	base     *colly.Collector
	throttle crawler.Throttle
	logger   *zap.Logger

	mu      sync.Mutex
	doc     *goquery.Document
	body    []byte
	pageURL *url.URL
	closed  bool
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// Load fetches url and parses the response body.
func (s *Source) Load(ctx context.Context, target string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return crawler.ErrSourceUnavailable
	}
	if s.throttle != nil {
		if err := s.throttle.Wait(ctx, target); err != nil {
			return fmt.Errorf("throttle: %w", err)
		}
	}
	var (
		body     []byte
		finalURL *url.URL
		fetchErr error
	)
	collector := s.base.Clone()
	configureHooks(collector, &body, &finalURL, &fetchErr)
	if err := runCollector(ctx, collector, target, &fetchErr); err != nil {
		s.doc, s.body, s.pageURL = nil, nil, nil
		return err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("parse %s: %w", target, err)
	}
	s.doc, s.body, s.pageURL = doc, body, finalURL
	s.logger.Debug("page loaded", zap.String("url", target), zap.Int("bytes", len(body)))
	return nil
}

// WaitForSelector returns the current matches or ErrSelectorTimeout immediately.
func (s *Source) WaitForSelector(_ context.Context, selector string, _ time.Duration) ([]crawler.Element, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, crawler.ErrSourceUnavailable
	}
	if s.doc == nil {
		return nil, fmt.Errorf("%w: no page loaded", crawler.ErrSelectorTimeout)
	}
	var out []crawler.Element
	s.doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
		out = append(out, crawler.Element{
			Text: strings.TrimSpace(sel.Text()),
			Href: s.absolute(sel.AttrOr("href", "")),
		})
	})
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s", crawler.ErrSelectorTimeout, selector)
	}
	return out, nil
}

// Body returns the raw bytes of the last loaded page.
func (s *Source) Body() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.body...)
}

// Close marks the session unusable.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.doc, s.body = nil, nil
	return nil
}

func (s *Source) absolute(href string) string {
	if href == "" || s.pageURL == nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return s.pageURL.ResolveReference(ref).String()
}

func configureHooks(hooks collectorHooks, body *[]byte, finalURL **url.URL, fetchErr *error) {
	hooks.OnResponse(func(r *colly.Response) {
		*body = append([]byte(nil), r.Body...)
		*finalURL = r.Request.URL
	})
	hooks.OnError(func(_ *colly.Response, err error) {
		*fetchErr = err
	})
}

func runCollector(ctx context.Context, collector *colly.Collector, target string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(target)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
