package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
)

func retryableClassifier(error) ErrorClassification {
	return ErrorClassification{Retryable: true, RecordFailure: true}
}

func permanentClassifier(error) ErrorClassification {
	return ErrorClassification{Retryable: false, RecordFailure: true}
}

func TestExecuteRetriesTemporaryFailure(t *testing.T) {
	executor := NewExecutor(Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
		RetryMultiplier:     2.0,
		BreakerEnabled:      false,
	})

	calls := 0
	err := executor.Execute(context.Background(), "test.op", func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("temporary")
		}
		return nil
	}, retryableClassifier)

	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestExecuteDoesNotRetryPermanentFailure(t *testing.T) {
	executor := NewExecutor(Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
		RetryMultiplier:     2.0,
		BreakerEnabled:      false,
	})

	calls := 0
	err := executor.Execute(context.Background(), "test.op", func(context.Context) error {
		calls++
		return errors.New("permanent")
	}, permanentClassifier)

	if err == nil {
		t.Fatalf("expected error from permanent failure")
	}
	if calls != 1 {
		t.Fatalf("expected 1 attempt, got %d", calls)
	}
}

func TestExecuteOpensCircuitAfterFailures(t *testing.T) {
	executor := NewExecutor(Config{
		RetryMaxAttempts:    1,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
		RetryMultiplier:     2.0,

		BreakerEnabled:          true,
		BreakerMinRequests:      2,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      time.Minute,
		BreakerHalfOpenMaxCalls: 1,
	})

	failing := func(context.Context) error { return errors.New("down") }
	for i := 0; i < 2; i++ {
		if err := executor.Execute(context.Background(), "test.op", failing, permanentClassifier); err == nil {
			t.Fatalf("expected failure on attempt %d", i+1)
		}
	}

	err := executor.Execute(context.Background(), "test.op", func(context.Context) error {
		t.Fatalf("operation must not run while circuit is open")
		return nil
	}, permanentClassifier)

	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected open circuit, got %v", err)
	}
	if !IsCircuitOpen(err) {
		t.Fatalf("IsCircuitOpen must report open breaker")
	}
}

func TestExecuteRespectsContextCancellation(t *testing.T) {
	executor := NewExecutor(Config{
		RetryMaxAttempts:    5,
		RetryInitialBackoff: 50 * time.Millisecond,
		RetryMaxBackoff:     100 * time.Millisecond,
		RetryMultiplier:     2.0,
		BreakerEnabled:      false,
	})

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := executor.Execute(ctx, "test.op", func(context.Context) error {
		calls++
		cancel()
		return errors.New("temporary")
	}, retryableClassifier)

	if err == nil {
		t.Fatalf("expected error after cancellation")
	}
	if calls != 1 {
		t.Fatalf("cancelled context must stop retries, got %d calls", calls)
	}
}

func TestExecuteIsolatesBreakersPerOperation(t *testing.T) {
	executor := NewExecutor(Config{
		RetryMaxAttempts:    1,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
		RetryMultiplier:     2.0,

		BreakerEnabled:          true,
		BreakerMinRequests:      2,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      time.Minute,
		BreakerHalfOpenMaxCalls: 1,
	})

	failing := func(context.Context) error { return errors.New("down") }
	for i := 0; i < 3; i++ {
		_ = executor.Execute(context.Background(), "failing.op", failing, permanentClassifier)
	}

	if err := executor.Execute(context.Background(), "healthy.op", func(context.Context) error {
		return nil
	}, permanentClassifier); err != nil {
		t.Fatalf("unrelated operation must not share the open breaker, got %v", err)
	}
}
