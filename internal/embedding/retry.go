package embedding

import (
	"context"
	"errors"
	"time"

	"histrag/internal/domain"
	"histrag/internal/logger"
)

// Default retry policy.
const (
	DefaultMaxRetries = 3
	DefaultRetryDelay = 5 * time.Second
)

// RetryConfig configures Retrying.
type RetryConfig struct {
	// MaxRetries is the number of attempts made after the first one fails.
	MaxRetries int
	// Delay is the wait before a retry. Rate-limited failures wait Delay*(retry+2).
	Delay time.Duration
}

// Retrying wraps an Embedder with a bounded retry loop.
type Retrying struct {
	inner Embedder
	cfg   RetryConfig
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRetrying wraps inner. Zero values in cfg fall back to the defaults;
// a negative MaxRetries disables retries.
func NewRetrying(inner Embedder, cfg RetryConfig) *Retrying {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Delay <= 0 {
		cfg.Delay = DefaultRetryDelay
	}
	return &Retrying{inner: inner, cfg: cfg, sleep: SleepContext}
}

func (r *Retrying) Name() string   { return r.inner.Name() }
func (r *Retrying) Dimension() int { return r.inner.Dimension() }

// Embed calls the wrapped embedder, retrying retryable failures.
func (r *Retrying) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr error
	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := r.backoff(attempt-1, lastErr)
			logger.Warn("embedding failed (%v), retry %d/%d in %s", lastErr, attempt, r.cfg.MaxRetries, wait)
			if err := r.sleep(ctx, wait); err != nil {
				return nil, err
			}
		}
		vecs, err := r.inner.Embed(ctx, texts)
		if err == nil {
			return vecs, nil
		}
		if !domain.IsRetryable(err) || ctx.Err() != nil {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func (r *Retrying) backoff(retry int, err error) time.Duration {
	if errors.Is(err, domain.ErrRateLimited) {
		return r.cfg.Delay * time.Duration(retry+2)
	}
	return r.cfg.Delay
}

// SleepContext waits for d or until ctx is done, returning ctx.Err in the latter case.
func SleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
