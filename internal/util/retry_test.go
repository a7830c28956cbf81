package util

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestDoSucceedsAfterTransientFailure(t *testing.T) {
	p := RetryPolicy{Attempts: 2, Wait: time.Millisecond}
	calls := 0
	err := p.Do("flaky", func() error {
		calls++
		if calls < 2 {
			return fmt.Errorf("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Expected success after retry, got %s", err)
	}
	if calls != 2 {
		t.Errorf("Expected 2 attempts, got %d", calls)
	}
}

func TestDoExhaustsBudget(t *testing.T) {
	p := RetryPolicy{Attempts: 2, Wait: time.Millisecond}
	calls := 0
	err := p.Do("broken", func() error {
		calls++
		return fmt.Errorf("still broken")
	})
	if !errors.Is(err, ErrRepeatedFailure) {
		t.Fatalf("Expected ErrRepeatedFailure, got %v", err)
	}
	// Attempts bounds the retries, so the budget is one initial try
	// plus two retries.
	if calls != 3 {
		t.Errorf("Expected 3 attempts, got %d", calls)
	}
}

func TestDoNoRetryOnImmediateSuccess(t *testing.T) {
	p := RetryPolicy{Attempts: 2, Wait: time.Millisecond}
	calls := 0
	if err := p.Do("fine", func() error {
		calls++
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Errorf("Expected 1 attempt, got %d", calls)
	}
}
