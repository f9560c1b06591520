// Package ratelimit spaces and retries calls to rate-limited providers.
// One Limiter is shared by every caller of a provider, so the spacing holds
// across worker goroutines rather than per worker.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"ctxasm/internal/domain"
	"ctxasm/internal/slogutil"
)

type Config struct {
	// Interval is the minimum time between the starts of two calls. Zero disables spacing.
	Interval time.Duration
	// MaxInFlight bounds concurrent calls. Zero or less means 1.
	MaxInFlight int
	// MaxRetries is how many times a rate-limited or unavailable call is retried.
	MaxRetries int
	// Backoff is the first retry delay; it doubles per attempt up to MaxBackoff.
	Backoff    time.Duration
	MaxBackoff time.Duration
}

func DefaultConfig() Config {
	return Config{
		Interval:    time.Second,
		MaxInFlight: 1,
		MaxRetries:  3,
		Backoff:     2 * time.Second,
		MaxBackoff:  30 * time.Second,
	}
}

type Limiter struct {
	cfg    Config
	lim    *rate.Limiter
	sem    *semaphore.Weighted
	logger *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Limiter {
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = 1
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = cfg.Backoff
	}
	every := rate.Inf
	if cfg.Interval > 0 {
		every = rate.Every(cfg.Interval)
	}
	return &Limiter{
		cfg:    cfg,
		lim:    rate.NewLimiter(every, 1),
		sem:    semaphore.NewWeighted(int64(cfg.MaxInFlight)),
		logger: slogutil.OrDiscard(logger),
	}
}

// Do runs fn once the limiter admits it. Calls failing with
// domain.ErrRateLimited or domain.ErrProviderUnavailable are retried with
// exponential backoff; once retries are exhausted the last error is returned
// still wrapping its sentinel.
func (l *Limiter) Do(ctx context.Context, fn func(context.Context) error) error {
	for attempt := 0; ; attempt++ {
		err := l.call(ctx, fn)
		if err == nil {
			return nil
		}
		if !shouldRetry(ctx, err) {
			return err
		}
		if attempt >= l.cfg.MaxRetries {
			return fmt.Errorf("giving up after %d attempts: %w", attempt+1, err)
		}

		delay := l.backoff(attempt)
		l.logger.Warn("provider call failed, retrying",
			"attempt", attempt+1,
			"delay", delay,
			"error", err,
		)
		if err := sleepWithCtx(ctx, delay); err != nil {
			return err
		}
	}
}

func (l *Limiter) call(ctx context.Context, fn func(context.Context) error) error {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer l.sem.Release(1)

	if err := l.lim.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return fn(ctx)
}

func (l *Limiter) backoff(attempt int) time.Duration {
	d := l.cfg.Backoff
	for i := 0; i < attempt && d < l.cfg.MaxBackoff; i++ {
		d *= 2
	}
	if d > l.cfg.MaxBackoff {
		d = l.cfg.MaxBackoff
	}
	return d
}

func shouldRetry(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return errors.Is(err, domain.ErrRateLimited) || errors.Is(err, domain.ErrProviderUnavailable)
}

func sleepWithCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
