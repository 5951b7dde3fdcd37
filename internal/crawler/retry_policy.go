package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	defaultMaxAttempts = 1
	defaultBaseDelay   = 2 * time.Second
)

// LinearRetryPolicy retries a unit with a delay that grows linearly with the
// attempt number: attempt n waits n*BaseDelay before attempt n+1.
type LinearRetryPolicy struct {
	maxAttempts int
	baseDelay   time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
}

// NewLinearRetryPolicy builds a policy. Non-positive values fall back to one
// attempt and a two second base delay.
func NewLinearRetryPolicy(maxAttempts int, baseDelay time.Duration) *LinearRetryPolicy {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	if baseDelay <= 0 {
		baseDelay = defaultBaseDelay
	}
	return &LinearRetryPolicy{
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		sleep:       sleepContext,
	}
}

// MaxAttempts returns the attempt budget.
func (p *LinearRetryPolicy) MaxAttempts() int {
	return p.maxAttempts
}

// ShouldRetry decides whether another attempt is allowed after attempt failed with err.
func (p *LinearRetryPolicy) ShouldRetry(err error, attempt int) bool {
	if err == nil {
		return false
	}
	if attempt >= p.maxAttempts {
		return false
	}
	if errors.Is(err, ErrSourceUnavailable) || errors.Is(err, ErrDisallowed) || errors.Is(err, context.Canceled) {
		return false
	}
	return true
}

// Backoff returns the wait duration after the given (1-based) attempt.
func (p *LinearRetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return time.Duration(attempt) * p.baseDelay
}

// Do runs op until it succeeds, the budget is spent or the error is not
// retryable. onRetry, when non-nil, is called before each backoff sleep. It
// returns the number of attempts made and the last error.
func (p *LinearRetryPolicy) Do(
	ctx context.Context,
	op func(ctx context.Context, attempt int) error,
	onRetry func(attempt int, err error, wait time.Duration),
) (int, error) {
	var err error
	for attempt := 1; ; attempt++ {
		err = op(ctx, attempt)
		if err == nil {
			return attempt, nil
		}
		if !p.ShouldRetry(err, attempt) {
			return attempt, err
		}
		wait := p.Backoff(attempt)
		if onRetry != nil {
			onRetry(attempt, err, wait)
		}
		if sleepErr := p.sleep(ctx, wait); sleepErr != nil {
			return attempt, sleepErr
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("retry backoff interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
