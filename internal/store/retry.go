// internal/store/retry.go
package store

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

const (
	defaultMaxAttempts  = 6
	defaultBaseDelay    = 10 * time.Millisecond
	defaultJitterFactor = 0.3
)

var (
	// ErrInvalidMaxAttempts is returned when max attempts are not positive.
	ErrInvalidMaxAttempts = errors.New("max attempts must be positive")

	// ErrNegativeBaseDelay is returned when the base delay is negative.
	ErrNegativeBaseDelay = errors.New("base delay must not be negative")

	// ErrInvalidJitterFactor is returned when the jitter factor is not between 0.0 and 1.0.
	ErrInvalidJitterFactor = errors.New("jitter factor must be between 0.0 and 1.0")
)

// RetryableFunc represents a function that can be retried.
type RetryableFunc func(ctx context.Context) error

type retryConfig struct {
	maxAttempts  int
	baseDelay    time.Duration
	jitterFactor float64
	onRetry      func(attempt int, err error)
}

// RetryWithExponentialBackoff runs fn until it succeeds, fails with an error
// that is not a concurrency conflict, or runs out of attempts.
//
// Default schedule: 0 ms, 10 ms, 20 ms, 40 ms, 80 ms, 160 ms plus up to 30% jitter.
func RetryWithExponentialBackoff(ctx context.Context, fn RetryableFunc, options ...RetryOption) error {
	config := &retryConfig{
		maxAttempts:  defaultMaxAttempts,
		baseDelay:    defaultBaseDelay,
		jitterFactor: defaultJitterFactor,
	}

	for _, option := range options {
		if err := option(config); err != nil {
			return err
		}
	}

	var lastErr error

	for attempt := 0; attempt < config.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := config.baseDelay * time.Duration(1<<(attempt-1))
			jitter := rand.Float64() * float64(delay) * config.jitterFactor //nolint:gosec // jitter only
			select {
			case <-time.After(delay + time.Duration(jitter)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !IsRetryable(lastErr) {
			return lastErr
		}
		if config.onRetry != nil && attempt < config.maxAttempts-1 {
			config.onRetry(attempt+1, lastErr)
		}
	}

	return lastErr
}

// IsRetryable reports whether err is worth another attempt. Timeouts are not:
// retrying them under load only deepens the overload.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}

// RetryOption configures retry behavior.
type RetryOption func(*retryConfig) error

// WithMaxAttempts sets the maximum number of attempts, including the first.
func WithMaxAttempts(attempts int) RetryOption {
	return func(config *retryConfig) error {
		if attempts <= 0 {
			return ErrInvalidMaxAttempts
		}
		config.maxAttempts = attempts
		return nil
	}
}

// WithBaseDelay sets the base delay for exponential backoff.
func WithBaseDelay(delay time.Duration) RetryOption {
	return func(config *retryConfig) error {
		if delay < 0 {
			return ErrNegativeBaseDelay
		}
		config.baseDelay = delay
		return nil
	}
}

// WithJitterFactor sets the jitter as a fraction of each delay, 0.0 to 1.0.
func WithJitterFactor(factor float64) RetryOption {
	return func(config *retryConfig) error {
		if factor < 0.0 || factor > 1.0 {
			return ErrInvalidJitterFactor
		}
		config.jitterFactor = factor
		return nil
	}
}

// WithRetryHook is called before each retry with the attempt about to run.
func WithRetryHook(hook func(attempt int, err error)) RetryOption {
	return func(config *retryConfig) error {
		config.onRetry = hook
		return nil
	}
}
