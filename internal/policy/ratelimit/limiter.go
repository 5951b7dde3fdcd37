// Package ratelimit paces page loads with one token bucket per host, so
// conference search pages and arXiv lookups are throttled independently.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/hiparis-pubscraper/internal/crawler"
)

// Config holds the per-host pace. A non-positive DefaultRPS disables limiting.
type Config struct {
	DefaultRPS   float64
	DefaultBurst int
}

// Limiter implements crawler.Throttle.
type Limiter struct {
	every rate.Limit
	burst int
	log   *zap.Logger

	mu    sync.Mutex
	hosts map[string]*rate.Limiter
}

// New creates a Limiter.
func New(cfg Config, logger *zap.Logger) *Limiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Limiter{
		every: rate.Inf,
		burst: max(cfg.DefaultBurst, 1),
		log:   logger,
		hosts: make(map[string]*rate.Limiter),
	}
	if cfg.DefaultRPS > 0 {
		l.every = rate.Limit(cfg.DefaultRPS)
	}
	return l
}

// Wait blocks until the URL's host has a token or ctx ends.
func (l *Limiter) Wait(ctx context.Context, url string) error {
	host := crawler.HostOf(url)
	start := time.Now()
	if err := l.bucket(host).Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait for %s: %w", host, err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		l.log.Debug("page load delayed", zap.String("host", host), zap.Duration("delay", waited))
	}
	return nil
}

func (l *Limiter) bucket(host string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.hosts[host]
	if !ok {
		b = rate.NewLimiter(l.every, l.burst)
		l.hosts[host] = b
	}
	return b
}
