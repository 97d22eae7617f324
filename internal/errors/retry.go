package errors

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// RetryConfig configures exponential backoff for collaborator calls.
type RetryConfig struct {
	// MaxRetries is the number of re-attempts after the initial call.
	MaxRetries int

	// InitialDelay is the wait before the first retry.
	InitialDelay time.Duration

	// MaxDelay caps the backoff growth.
	MaxDelay time.Duration

	// Multiplier grows the delay after each retry.
	Multiplier float64

	// Jitter randomizes each delay to spread concurrent retries.
	Jitter bool
}

// DefaultRetryConfig returns the backoff used for embedding and model calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     16 * time.Second,
		Multiplier:   2.0,
		Jitter:       false,
	}
}

// backoffDelay returns the wait before retry number attempt (0-based).
func (cfg RetryConfig) backoffDelay(attempt int) time.Duration {
	d := float64(cfg.InitialDelay)
	for i := 0; i < attempt; i++ {
		d *= cfg.Multiplier
	}
	if max := float64(cfg.MaxDelay); d > max {
		d = max
	}
	if cfg.Jitter {
		d *= 0.5 + rand.Float64()*0.5
	}
	return time.Duration(d)
}

// RetryWithResult calls fn until it succeeds, the attempts run out, or
// the context is cancelled. Cancellation wins over retrying: it is
// returned immediately, both between attempts and during a backoff wait.
func RetryWithResult[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt == cfg.MaxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(cfg.backoffDelay(attempt)):
		}
	}

	return zero, fmt.Errorf("failed after %d retries: %w", cfg.MaxRetries, lastErr)
}
