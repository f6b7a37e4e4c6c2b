package errors

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryWithResult_StopsOnCancel(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 5, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := RetryWithResult(ctx, cfg, func() (int, error) {
		calls++
		cancel()
		return 0, stderrors.New("fail then cancel")
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestRetry_DelegatesToRetryWithResult(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}

	calls := 0
	err := Retry(t.Context(), cfg, func() error {
		calls++
		if calls < 2 {
			return stderrors.New("once")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestRetry_JitterStaysWithinBounds(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond, Multiplier: 2, Jitter: true}

	start := time.Now()
	err := Retry(t.Context(), cfg, func() error {
		return stderrors.New("fail")
	})

	require.Error(t, err)
	// Full delays sum to 7ms; jitter only shrinks them
	assert.Less(t, time.Since(start), time.Second)
}
