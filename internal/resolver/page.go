// Package resolver finds preprint PDF links for publication titles.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/hiparis-pubscraper/internal/crawler"
)

const (
	// DefaultSearchTemplate is the arXiv listing search; {query} is replaced
	// with the form-encoded title.
	DefaultSearchTemplate = "https://arxiv.org/search/?query={query}&searchtype=all&source=header"
	// DefaultLinkSelector matches the per-result download links.
	DefaultLinkSelector = "p.list-title a"
	// DefaultLinkText is the visible label of the PDF link.
	DefaultLinkText = "pdf"
)

var errLinkNotFound = errors.New("pdf link not found")

// PageConfig controls the search-page resolver.
type PageConfig struct {
	SearchTemplate string
	LinkSelector   string
	LinkText       string
	Wait           time.Duration
}

// PageResolver loads a search page in the crawl's browsing session and
// returns the first link labelled LinkText.
type PageResolver struct {
	cfg    PageConfig
	logger *zap.Logger
}

// NewPageResolver builds a PageResolver with defaults applied.
func NewPageResolver(cfg PageConfig, logger *zap.Logger) *PageResolver {
	if cfg.SearchTemplate == "" {
		cfg.SearchTemplate = DefaultSearchTemplate
	}
	if cfg.LinkSelector == "" {
		cfg.LinkSelector = DefaultLinkSelector
	}
	if cfg.LinkText == "" {
		cfg.LinkText = DefaultLinkText
	}
	if cfg.Wait <= 0 {
		cfg.Wait = 2 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PageResolver{cfg: cfg, logger: logger}
}

// SearchURL returns the lookup URL for title.
func (r *PageResolver) SearchURL(title string) string {
	return strings.ReplaceAll(r.cfg.SearchTemplate, "{query}", url.QueryEscape(title))
}

// Resolve implements crawler.DocumentResolver.
func (r *PageResolver) Resolve(ctx context.Context, src crawler.PageSource, title string) (res crawler.Resolution) {
	defer recoverResolution(title, &res)
	link, err := r.lookup(ctx, src, title)
	if err != nil {
		r.logger.Debug("pdf lookup failed", zap.String("title", title), zap.Error(err))
		return notFound(title, err)
	}
	return crawler.Resolution{Link: link}
}

func (r *PageResolver) lookup(ctx context.Context, src crawler.PageSource, title string) (string, error) {
	if src == nil {
		return "", crawler.ErrSourceUnavailable
	}
	if err := src.Load(ctx, r.SearchURL(title)); err != nil {
		return "", fmt.Errorf("load search page: %w", err)
	}
	links, err := src.WaitForSelector(ctx, r.cfg.LinkSelector, r.cfg.Wait)
	if err != nil {
		return "", fmt.Errorf("wait for links: %w", err)
	}
	for _, link := range links {
		if strings.EqualFold(strings.TrimSpace(link.Text), r.cfg.LinkText) && link.Href != "" {
			return link.Href, nil
		}
	}
	return "", errLinkNotFound
}

// NopResolver skips lookups entirely.
type NopResolver struct{}

// Resolve always returns the sentinel without an error.
func (NopResolver) Resolve(context.Context, crawler.PageSource, string) crawler.Resolution {
	return crawler.Resolution{Link: crawler.DocumentNotFound}
}

func notFound(title string, err error) crawler.Resolution {
	return crawler.Resolution{
		Link: crawler.DocumentNotFound,
		Err:  &crawler.DocumentResolutionError{Title: title, Err: err},
	}
}

func recoverResolution(title string, res *crawler.Resolution) {
	if rec := recover(); rec != nil {
		*res = notFound(title, fmt.Errorf("panic: %v", rec))
	}
}
