package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryStopsOnSuccess(t *testing.T) {
	calls := 0
	err := RetryWithExponentialBackoff(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return fmt.Errorf("lost race: %w", ErrConcurrencyConflict)
		}
		return nil
	}, WithBaseDelay(time.Millisecond))

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryDoesNotRetryOtherErrors(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := RetryWithExponentialBackoff(context.Background(), func(context.Context) error {
		calls++
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestRetryGivesUpAfterMaxAttempts(t *testing.T) {
	var hooks []int
	calls := 0
	err := RetryWithExponentialBackoff(context.Background(), func(context.Context) error {
		calls++
		return ErrConcurrencyConflict
	},
		WithMaxAttempts(4),
		WithBaseDelay(0),
		WithRetryHook(func(attempt int, _ error) { hooks = append(hooks, attempt) }),
	)

	assert.ErrorIs(t, err, ErrConcurrencyConflict)
	assert.Equal(t, 4, calls)
	assert.Equal(t, []int{1, 2, 3}, hooks)
}

func TestRetryHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := RetryWithExponentialBackoff(ctx, func(context.Context) error {
		calls++
		cancel()
		return ErrConcurrencyConflict
	}, WithBaseDelay(time.Hour))

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestRetryOptionValidation(t *testing.T) {
	noop := func(context.Context) error { return nil }

	assert.ErrorIs(t, RetryWithExponentialBackoff(context.Background(), noop, WithMaxAttempts(0)), ErrInvalidMaxAttempts)
	assert.ErrorIs(t, RetryWithExponentialBackoff(context.Background(), noop, WithBaseDelay(-time.Second)), ErrNegativeBaseDelay)
	assert.ErrorIs(t, RetryWithExponentialBackoff(context.Background(), noop, WithJitterFactor(1.5)), ErrInvalidJitterFactor)
}
