package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"followback/pkg/logger"
)

// ErrExhausted is wrapped by the error Do returns when every attempt failed
// with a retryable error.
var ErrExhausted = errors.New("retry attempts exhausted")

// Operation is a function that performs an operation that might need retrying
type Operation func(ctx context.Context) error

// Config holds retry configuration
type Config struct {
	// MaxAttempts is the total number of attempts, at least one
	MaxAttempts int
	// Backoff strategy to use; nil retries immediately
	Backoff BackoffStrategy
	// RetryIf determines if an error should be retried; nil retries every error
	RetryIf func(error) bool
	// Logger receives a debug line per retry; nil is silent
	Logger logger.Logger
}

// Do executes op until it succeeds, returns an error RetryIf rejects, or
// MaxAttempts is reached. Cancellation of ctx stops the wait between attempts.
func Do(ctx context.Context, op Operation, cfg Config) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		if cfg.RetryIf != nil && !cfg.RetryIf(err) {
			return err
		}
		lastErr = err

		if attempt == cfg.MaxAttempts {
			break
		}

		var delay time.Duration
		if cfg.Backoff != nil {
			delay = cfg.Backoff.NextDelay(attempt)
		}
		if cfg.Logger != nil {
			cfg.Logger.DebugWithFields("retrying operation", map[string]interface{}{
				"attempt":      attempt,
				"max_attempts": cfg.MaxAttempts,
				"delay_ms":     delay.Milliseconds(),
				"error":        err.Error(),
			})
		}

		if err := Wait(ctx, delay); err != nil {
			return fmt.Errorf("retry cancelled: %w", err)
		}
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, cfg.MaxAttempts, lastErr)
}
