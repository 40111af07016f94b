package service

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"epic-engine/internal/config"

	"go.uber.org/zap"
)

// RetryPolicy is the explicit retry schedule around generation backend
// calls. Every backend failure is treated as transient up to MaxAttempts;
// after that the caller surfaces a permanent error. Cancellation is never
// retried.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	// Jitter is the fraction of the delay randomized in both directions,
	// e.g. 0.1 spreads each delay by ±10%.
	Jitter float64
}

// DefaultRetryPolicy matches the worker defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   1 * time.Second,
		MaxDelay:    30 * time.Second,
		Multiplier:  2.0,
		Jitter:      0.1,
	}
}

// RetryPolicyFromConfig builds the policy from the loaded configuration.
func RetryPolicyFromConfig(cfg *config.Config) RetryPolicy {
	p := DefaultRetryPolicy()
	if cfg.GenMaxAttempts > 0 {
		p.MaxAttempts = cfg.GenMaxAttempts
	}
	if cfg.GenBaseRetryDelay > 0 {
		p.BaseDelay = cfg.GenBaseRetryDelay
	}
	if cfg.GenMaxRetryDelay > 0 {
		p.MaxDelay = cfg.GenMaxRetryDelay
	}
	return p
}

// Delay returns the backoff before the given 1-based retry attempt,
// exponential and capped, with jitter applied.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	if p.Jitter > 0 {
		jitter := delay * p.Jitter
		delay += jitter * (rand.Float64()*2 - 1)
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// Do runs op up to MaxAttempts times, sleeping the scheduled delay between
// attempts. It returns the number of attempts made and the last error.
// Context cancellation aborts immediately and is returned as-is.
func (p RetryPolicy) Do(ctx context.Context, logger *zap.Logger, operation string, op func() error) (int, error) {
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := p.Delay(attempt - 1)
			logger.Warn("Retrying after backoff",
				zap.String("operation", operation),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)
			select {
			case <-ctx.Done():
				return attempt - 1, ctx.Err()
			case <-time.After(delay):
			}
		}

		err := op()
		if err == nil {
			if attempt > 1 {
				logger.Info("Operation succeeded after retry",
					zap.String("operation", operation),
					zap.Int("attempt", attempt),
				)
			}
			return attempt, nil
		}
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return attempt, err
		}
		lastErr = err
	}
	return p.MaxAttempts, lastErr
}
