// Package publication scrapes (title, author list) candidates from a
// conference proceedings search page.
package publication

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/hiparis-pubscraper/internal/crawler"
)

// Default selectors of the virtual-conference "mini" layout.
const (
	DefaultTitleSelector  = "h5.card-title"
	DefaultAuthorSelector = "h6.card-subtitle"
)

// Config controls how results pages are read.
type Config struct {
	TitleSelector  string
	AuthorSelector string
	// Wait bounds how long the title selector may take to appear.
	Wait time.Duration
	// Settle is a fixed pause after navigation for client-side rendering.
	Settle time.Duration
}

// Fetcher implements crawler.PublicationFetcher.
type Fetcher struct {
	cfg    Config
	logger *zap.Logger
}

// New builds a Fetcher, filling selector and wait defaults.
func New(cfg Config, logger *zap.Logger) *Fetcher {
	if cfg.TitleSelector == "" {
		cfg.TitleSelector = DefaultTitleSelector
	}
	if cfg.AuthorSelector == "" {
		cfg.AuthorSelector = DefaultAuthorSelector
	}
	if cfg.Wait <= 0 {
		cfg.Wait = 2 * time.Second
	}
	if cfg.Settle < 0 {
		cfg.Settle = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{cfg: cfg, logger: logger}
}

// Fetch loads the author's results page and pairs titles with author lists by
// index. A page without titles yields *crawler.NoResultsError; differing
// element counts yield crawler.ErrElementMismatch.
func (f *Fetcher) Fetch(
	ctx context.Context,
	src crawler.PageSource,
	conf crawler.ConferenceSource,
	author string,
) ([]crawler.Candidate, error) {
	target := crawler.SearchURL(conf.URLTemplate, author)
	if err := src.Load(ctx, target); err != nil {
		return nil, fmt.Errorf("load results page: %w", err)
	}
	if err := settle(ctx, f.cfg.Settle); err != nil {
		return nil, err
	}

	titles, err := src.WaitForSelector(ctx, f.cfg.TitleSelector, f.cfg.Wait)
	if err != nil {
		if errors.Is(err, crawler.ErrSelectorTimeout) {
			return nil, &crawler.NoResultsError{Author: author, Conference: conf.Label, Err: err}
		}
		return nil, fmt.Errorf("wait for titles: %w", err)
	}
	authors, err := src.WaitForSelector(ctx, f.cfg.AuthorSelector, f.cfg.Wait)
	if err != nil && !errors.Is(err, crawler.ErrSelectorTimeout) {
		return nil, fmt.Errorf("wait for author lists: %w", err)
	}
	if len(authors) != len(titles) {
		f.logger.Warn("element count mismatch",
			zap.String("url", target),
			zap.Int("titles", len(titles)),
			zap.Int("authors", len(authors)),
		)
		return nil, fmt.Errorf("%w: %d titles, %d author lists", crawler.ErrElementMismatch, len(titles), len(authors))
	}

	out := make([]crawler.Candidate, 0, len(titles))
	for i := range titles {
		out = append(out, crawler.Candidate{
			Title:   strings.TrimSpace(titles[i].Text),
			Authors: strings.TrimSpace(authors[i].Text),
		})
	}
	f.logger.Debug("results parsed", zap.String("url", target), zap.Int("candidates", len(out)))
	return out, nil
}

func settle(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("settle interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
