// Package robots gates page loads on the target host's robots.txt. The static
// page source gets this from colly; the headless source goes through Guard.
package robots

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"

	"github.com/JakeFAU/hiparis-pubscraper/internal/crawler"
)

// Guard implements crawler.Throttle. It rejects disallowed URLs with
// crawler.ErrDisallowed and hands allowed ones to the next throttle.
type Guard struct {
	next      crawler.Throttle
	client    *http.Client
	cache     sync.Map
	userAgent string
	logger    *zap.Logger
}

// New wraps next, which may be nil.
func New(next crawler.Throttle, userAgent string, logger *zap.Logger) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guard{
		next:      next,
		client:    &http.Client{Timeout: 10 * time.Second},
		userAgent: userAgent,
		logger:    logger.Named("robots"),
	}
}

// Wait implements crawler.Throttle.
func (g *Guard) Wait(ctx context.Context, rawURL string) error {
	if !g.Allowed(ctx, rawURL) {
		return fmt.Errorf("%w: %s", crawler.ErrDisallowed, rawURL)
	}
	if g.next == nil {
		return nil
	}
	if err := g.next.Wait(ctx, rawURL); err != nil {
		return fmt.Errorf("throttle: %w", err)
	}
	return nil
}

// Allowed reports whether robots.txt lets the configured user agent fetch
// rawURL. Unreachable or unparsable robots files allow access.
func (g *Guard) Allowed(ctx context.Context, rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	data, err := g.load(ctx, parsed)
	if err != nil {
		g.logger.Warn("robots fetch failed; allowing access", zap.String("host", parsed.Host), zap.Error(err))
		return true
	}
	group := data.FindGroup(g.userAgent)
	if group == nil {
		return true
	}
	return group.Test(parsed.Path)
}

func (g *Guard) load(ctx context.Context, parsed *url.URL) (*robotstxt.RobotsData, error) {
	hostKey := strings.ToLower(parsed.Host)
	if cached, ok := g.cache.Load(hostKey); ok {
		data, isData := cached.(*robotstxt.RobotsData)
		if !isData {
			return nil, fmt.Errorf("robots cache type mismatch: %T", cached)
		}
		return data, nil
	}

	robotsURL := url.URL{Scheme: parsed.Scheme, Host: parsed.Host, Path: "/robots.txt"}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("new robots request: %w", err)
	}
	if g.userAgent != "" {
		req.Header.Set("User-Agent", g.userAgent)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch robots: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			g.logger.Debug("close robots body", zap.Error(cerr))
		}
	}()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read robots body: %w", err)
	}
	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		return nil, fmt.Errorf("parse robots: %w", err)
	}
	g.cache.Store(hostKey, data)
	return data, nil
}
