// Package headless provides a PageSource that renders pages in headless Chrome.
package headless

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/hiparis-pubscraper/internal/crawler"
)

const (
	defaultNavTimeout   = 45 * time.Second
	defaultPollInterval = 100 * time.Millisecond
)

// Config controls the Chrome process backing each session.
type Config struct {
	UserAgent         string
	NavigationTimeout time.Duration
	// ExecPath overrides the Chrome binary lookup.
	ExecPath string
	// NoSandbox disables the Chrome sandbox (needed in most containers).
	NoSandbox    bool
	PollInterval time.Duration
}

// Factory creates one Chrome session per crawl.
type Factory struct {
	cfg      Config
	throttle crawler.Throttle
	logger   *zap.Logger
}

// NewFactory builds a Factory. throttle may be nil.
func NewFactory(cfg Config, throttle crawler.Throttle, logger *zap.Logger) *Factory {
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Factory{cfg: cfg, throttle: throttle, logger: logger}
}

// NewSource launches Chrome and opens a single tab. The browser outlives ctx;
// it is torn down by Source.Close.
func (f *Factory) NewSource(ctx context.Context) (crawler.PageSource, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), f.allocatorOptions()...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	warmupCtx, cancelWarmup := context.WithTimeout(tabCtx, f.cfg.NavigationTimeout)
	defer cancelWarmup()
	stopForward := forwardCancel(ctx, cancelWarmup)
	defer stopForward()

	if err := chromedp.Run(warmupCtx, f.setupAction()); err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}
	f.logger.Debug("chrome session started")
	return &Source{
		cfg:         f.cfg,
		throttle:    f.throttle,
		logger:      f.logger,
		tabCtx:      tabCtx,
		tabCancel:   tabCancel,
		allocCancel: allocCancel,
	}, nil
}

func (f *Factory) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if f.cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if f.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(f.cfg.ExecPath))
	}
	return opts
}

func (f *Factory) setupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if f.cfg.UserAgent == "" {
			return nil
		}
		if err := emulation.SetUserAgentOverride(f.cfg.UserAgent).Do(ctx); err != nil {
			return fmt.Errorf("set user-agent: %w", err)
		}
		return nil
	})
}

// Source is a single Chrome tab. Calls are serialized.
type Source struct {
	cfg      Config
	throttle crawler.Throttle
	logger   *zap.Logger

	mu          sync.Mutex
	tabCtx      context.Context
	tabCancel   context.CancelFunc
	allocCancel context.CancelFunc
	closeOnce   sync.Once
}

// Load navigates the tab to url.
func (s *Source) Load(ctx context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.alive(); err != nil {
		return err
	}
	if s.throttle != nil {
		if err := s.throttle.Wait(ctx, url); err != nil {
			return fmt.Errorf("throttle: %w", err)
		}
	}
	navCtx, cancel := context.WithTimeout(s.tabCtx, s.cfg.NavigationTimeout)
	defer cancel()
	stopForward := forwardCancel(ctx, cancel)
	defer stopForward()

	if err := chromedp.Run(navCtx, chromedp.Navigate(url)); err != nil {
		return s.classify(ctx, fmt.Errorf("navigate %s: %w", url, err))
	}
	return nil
}

// WaitForSelector polls the DOM until selector matches or timeout elapses.
func (s *Source) WaitForSelector(
	ctx context.Context,
	selector string,
	timeout time.Duration,
) ([]crawler.Element, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.alive(); err != nil {
		return nil, err
	}
	script, err := queryScript(selector)
	if err != nil {
		return nil, err
	}
	waitCtx, cancel := context.WithTimeout(s.tabCtx, timeout)
	defer cancel()
	stopForward := forwardCancel(ctx, cancel)
	defer stopForward()

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	for {
		var found []jsElement
		if err := chromedp.Run(waitCtx, chromedp.Evaluate(script, &found)); err == nil && len(found) > 0 {
			return toElements(found), nil
		}
		select {
		case <-waitCtx.Done():
			if err := s.alive(); err != nil {
				return nil, err
			}
			if ctx.Err() != nil {
				return nil, fmt.Errorf("wait for %s: %w", selector, ctx.Err())
			}
			return nil, fmt.Errorf("%w: %s", crawler.ErrSelectorTimeout, selector)
		case <-ticker.C:
		}
	}
}

// Close shuts the tab and the browser process down. It is idempotent.
func (s *Source) Close() error {
	s.closeOnce.Do(func() {
		s.tabCancel()
		s.allocCancel()
		s.logger.Debug("chrome session closed")
	})
	return nil
}

func (s *Source) alive() error {
	if s.tabCtx.Err() != nil {
		return crawler.ErrSourceUnavailable
	}
	return nil
}

func (s *Source) classify(ctx context.Context, err error) error {
	if s.tabCtx.Err() != nil {
		return fmt.Errorf("%w: %v", crawler.ErrSourceUnavailable, err)
	}
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %v", ctx.Err(), err)
	}
	return err
}

type jsElement struct {
	Text string `json:"text"`
	Href string `json:"href"`
}

func queryScript(selector string) (string, error) {
	if strings.TrimSpace(selector) == "" {
		return "", errors.New("selector is required")
	}
	quoted, err := json.Marshal(selector)
	if err != nil {
		return "", fmt.Errorf("quote selector: %w", err)
	}
	return fmt.Sprintf(
		`Array.from(document.querySelectorAll(%s)).map(e => ({text: (e.innerText || e.textContent || ""), href: (e.href || "")}))`,
		quoted,
	), nil
}

func toElements(in []jsElement) []crawler.Element {
	out := make([]crawler.Element, 0, len(in))
	for _, e := range in {
		out = append(out, crawler.Element{Text: strings.TrimSpace(e.Text), Href: e.Href})
	}
	return out
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
