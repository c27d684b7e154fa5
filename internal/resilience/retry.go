// Package resilience provides the retry policies used around the two
// external calls in the pipeline: completion requests and encyclopedia
// lookups. Both services are retried on a fixed delay, but only for a
// closed set of transient error kinds; everything else propagates
// immediately.
package resilience

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// RetryConfig controls retry behavior with a fixed inter-attempt delay.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts including the first
	// try. A value of 1 means no retries.
	MaxAttempts int

	// Delay is the fixed wait between attempts.
	Delay time.Duration

	// ShouldRetry overrides the default transient-error check.
	// If nil, IsTransient is used.
	ShouldRetry func(err error) bool

	// OnRetry is called before each retry sleep with the upcoming
	// attempt number and the error that triggered it.
	OnRetry func(attempt int, err error)
}

// CompletionRetry is the policy for completion requests: generation is
// the expensive, rate-limited resource, so its requests are not given up
// on until the budget is well and truly spent.
func CompletionRetry() RetryConfig {
	return RetryConfig{MaxAttempts: 50, Delay: 10 * time.Second}
}

// FetchRetry is the policy for encyclopedia lookups, which are idempotent
// and cheap relative to generation.
func FetchRetry() RetryConfig {
	return RetryConfig{MaxAttempts: 3, Delay: 10 * time.Second}
}

// Do executes fn until it succeeds, the attempt budget runs out, or a
// non-transient error occurs. The error from the final attempt is
// returned on failure. Context cancellation stops retries immediately.
func Do(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	_, err := DoVal(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoVal is Do for functions that return a value.
func DoVal[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	shouldRetry := cfg.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = IsTransient
	}

	var zero T
	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}
		lastErr = err

		if ctx.Err() != nil || !shouldRetry(lastErr) || attempt == cfg.MaxAttempts {
			return zero, lastErr
		}

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, lastErr)
		}

		timer := time.NewTimer(cfg.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, lastErr
		case <-timer.C:
		}
	}
	return zero, lastErr
}

// Logged returns an OnRetry callback that logs each retry attempt.
func Logged(service, operation string) func(int, error) {
	return func(attempt int, err error) {
		zap.L().Warn("retrying",
			zap.String("service", service),
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
}
