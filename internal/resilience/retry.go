// Package resilience provides bounded retry with backoff and transient-error
// classification for the fetch path.
package resilience

import (
	"context"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// RetryConfig controls retry behavior.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts including the first try.
	MaxAttempts int

	// InitialBackoff is the delay before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff caps the computed delay.
	MaxBackoff time.Duration

	// Multiplier scales the delay after each attempt. 1.0 yields linear
	// backoff (delay = InitialBackoff * attempt), >1.0 exponential.
	Multiplier float64

	// JitterFraction randomizes the delay by up to ±fraction.
	JitterFraction float64

	// ShouldRetry decides whether an error is worth another attempt.
	// Defaults to IsTransient.
	ShouldRetry func(err error) bool

	// OnRetry is invoked before each backoff sleep.
	OnRetry func(attempt int, err error)
}

// Exponential returns the backoff shape used for block recovery:
// base × 2^attempt up to the ceiling.
func Exponential(maxAttempts int, base time.Duration) RetryConfig {
	return RetryConfig{
		MaxAttempts:    maxAttempts,
		InitialBackoff: base,
		MaxBackoff:     2 * time.Minute,
		Multiplier:     2.0,
		JitterFraction: 0.2,
	}
}

// Linear returns the backoff shape used for transport errors:
// base × attempt up to the ceiling.
func Linear(maxAttempts int, base time.Duration) RetryConfig {
	return RetryConfig{
		MaxAttempts:    maxAttempts,
		InitialBackoff: base,
		MaxBackoff:     time.Minute,
		Multiplier:     1.0,
		JitterFraction: 0.1,
	}
}

// Do runs fn up to cfg.MaxAttempts times, sleeping between attempts.
// Non-retryable errors and context cancellation return immediately.
func Do(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	shouldRetry := cfg.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = IsTransient
	}

	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return lastErr
		}
		if !shouldRetry(lastErr) {
			return lastErr
		}
		if attempt >= cfg.MaxAttempts-1 {
			break
		}

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, lastErr)
		}

		timer := time.NewTimer(Backoff(attempt, cfg))
		select {
		case <-ctx.Done():
			timer.Stop()
			return lastErr
		case <-timer.C:
		}
	}
	return lastErr
}

// Backoff computes the sleep before retrying after the given zero-based
// attempt. Attempt-over-attempt delays strictly increase (modulo jitter).
func Backoff(attempt int, cfg RetryConfig) time.Duration {
	var delay float64
	if cfg.Multiplier <= 1.0 {
		delay = float64(cfg.InitialBackoff) * float64(attempt+1)
	} else {
		delay = float64(cfg.InitialBackoff) * math.Pow(cfg.Multiplier, float64(attempt))
	}
	if cfg.MaxBackoff > 0 && delay > float64(cfg.MaxBackoff) {
		delay = float64(cfg.MaxBackoff)
	}
	if cfg.JitterFraction > 0 {
		delay += (rand.Float64()*2 - 1) * delay * cfg.JitterFraction
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// Logger returns an OnRetry callback that logs each retry with context.
func Logger(site, operation string) func(int, error) {
	return func(attempt int, err error) {
		zap.L().Warn("retrying",
			zap.String("site", site),
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
}
