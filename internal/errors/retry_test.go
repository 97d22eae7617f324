package errors

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetryConfig(retries int) RetryConfig {
	return RetryConfig{
		MaxRetries:   retries,
		InitialDelay: time.Millisecond,
		MaxDelay:     4 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestRetryWithResult_FirstAttemptSucceeds(t *testing.T) {
	calls := 0
	got, err := RetryWithResult(context.Background(), fastRetryConfig(3), func() (string, error) {
		calls++
		return "embedding", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "embedding", got)
	assert.Equal(t, 1, calls)
}

func TestRetryWithResult_RecoversAfterTransientFailures(t *testing.T) {
	calls := 0
	got, err := RetryWithResult(context.Background(), fastRetryConfig(3), func() (int, error) {
		calls++
		if calls < 3 {
			return 0, stderrors.New("connection refused")
		}
		return 768, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 768, got)
	assert.Equal(t, 3, calls)
}

func TestRetryWithResult_ExhaustsAttempts(t *testing.T) {
	boom := stderrors.New("connection refused")
	calls := 0
	_, err := RetryWithResult(context.Background(), fastRetryConfig(2), func() (int, error) {
		calls++
		return 0, boom
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls, "initial attempt plus two retries")
}

func TestRetryWithResult_CancelledContextStopsRetrying(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := RetryWithResult(ctx, fastRetryConfig(10), func() (int, error) {
		calls++
		cancel()
		return 0, stderrors.New("connection refused")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestRetryWithResult_AlreadyCancelledContextSkipsCall(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, err := RetryWithResult(ctx, fastRetryConfig(3), func() (int, error) {
		calls++
		return 0, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}

func TestBackoffDelay_GrowsAndCaps(t *testing.T) {
	cfg := RetryConfig{
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     40 * time.Millisecond,
		Multiplier:   2.0,
	}
	assert.Equal(t, 10*time.Millisecond, cfg.backoffDelay(0))
	assert.Equal(t, 20*time.Millisecond, cfg.backoffDelay(1))
	assert.Equal(t, 40*time.Millisecond, cfg.backoffDelay(2))
	assert.Equal(t, 40*time.Millisecond, cfg.backoffDelay(5), "capped at MaxDelay")
}

func TestBackoffDelay_JitterStaysWithinBounds(t *testing.T) {
	cfg := RetryConfig{
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
		Multiplier:   2.0,
		Jitter:       true,
	}
	for i := 0; i < 50; i++ {
		d := cfg.backoffDelay(0)
		assert.GreaterOrEqual(t, d, 5*time.Millisecond)
		assert.LessOrEqual(t, d, 10*time.Millisecond)
	}
}
