package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"followback/pkg/logger"
)

func TestExponentialBackoff(t *testing.T) {
	backoff := &ExponentialBackoff{
		BaseDelay:    100 * time.Millisecond,
		MaxDelay:     1 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.0, // No jitter for predictable testing
	}

	tests := []struct {
		attempt     int
		expected    time.Duration
		description string
	}{
		{0, 0, "No attempt yet"},
		{1, 100 * time.Millisecond, "First attempt"},
		{2, 200 * time.Millisecond, "Second attempt"},
		{3, 400 * time.Millisecond, "Third attempt"},
		{4, 800 * time.Millisecond, "Fourth attempt"},
		{5, 1 * time.Second, "Fifth attempt (capped at max)"},
		{6, 1 * time.Second, "Sixth attempt (still capped)"},
	}

	for _, test := range tests {
		t.Run(test.description, func(t *testing.T) {
			if delay := backoff.NextDelay(test.attempt); delay != test.expected {
				t.Errorf("Expected delay %v, got %v", test.expected, delay)
			}
		})
	}
}

func TestExponentialBackoffWithJitter(t *testing.T) {
	backoff := DefaultExponentialBackoff()

	delays := make(map[time.Duration]bool)
	for i := 0; i < 20; i++ {
		delay := backoff.NextDelay(2)
		if delay < 2*time.Millisecond || delay > 6*time.Millisecond {
			t.Fatalf("Delay %v outside jitter bounds", delay)
		}
		delays[delay] = true
	}

	if len(delays) < 2 {
		t.Error("Expected multiple different delays with jitter, but got consistent delays")
	}
}

func TestRetryWithSuccess(t *testing.T) {
	attempts := 0
	op := func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("temporary error")
		}
		return nil
	}

	log := logger.NewTestLogger()
	err := Do(context.Background(), op, Config{
		MaxAttempts: 5,
		Backoff:     &ConstantBackoff{Delay: time.Millisecond},
		Logger:      log,
	})

	if err != nil {
		t.Errorf("Expected success, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
	if n := len(log.GetMessages()); n != 2 {
		t.Errorf("Expected 2 retry log lines, got %d", n)
	}
}

func TestRetryWithMaxAttemptsExceeded(t *testing.T) {
	conflict := errors.New("conflict")
	attempts := 0

	err := Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return conflict
	}, Config{MaxAttempts: 3})

	if !errors.Is(err, ErrExhausted) {
		t.Errorf("Expected ErrExhausted, got %v", err)
	}
	if !errors.Is(err, conflict) {
		t.Errorf("Expected the last error to be wrapped, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
}

func TestRetryWithNonRetryableError(t *testing.T) {
	permanent := errors.New("permanent")
	attempts := 0

	err := Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return permanent
	}, Config{
		MaxAttempts: 5,
		RetryIf:     func(err error) bool { return !errors.Is(err, permanent) },
	})

	if err != permanent {
		t.Errorf("Expected the permanent error unchanged, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", attempts)
	}
}

func TestRetryWithContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0

	err := Do(ctx, func(ctx context.Context) error {
		attempts++
		cancel()
		return errors.New("temporary")
	}, Config{
		MaxAttempts: 5,
		Backoff:     &ConstantBackoff{Delay: time.Second},
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt before cancellation, got %d", attempts)
	}
}

func TestRetryDefaultsToOneAttempt(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return errors.New("x")
	}, Config{})

	if !errors.Is(err, ErrExhausted) || attempts != 1 {
		t.Errorf("Expected a single exhausted attempt, got %d attempts and %v", attempts, err)
	}
}

func TestWait(t *testing.T) {
	if err := Wait(context.Background(), 0); err != nil {
		t.Errorf("Expected no error for zero delay, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Wait(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
