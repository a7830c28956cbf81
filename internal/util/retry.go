package util

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrRepeatedFailure is raised when a VCS operation keeps failing past
// the retry budget. It aborts the whole run; committed units stay
// committed and are skipped on the next run.
var ErrRepeatedFailure = errors.New("repeated failures executing VCS operation")

// RetryPolicy bounds how often a VCS operation is attempted before the
// run is abandoned. Remote VCS commands in particular fail
// transiently.
type RetryPolicy struct {
	Attempts uint64
	Wait     time.Duration
}

// DefaultRetry mirrors the historical two-retries-with-backoff
// behaviour.
var DefaultRetry = RetryPolicy{Attempts: 2, Wait: 10 * time.Second}

// Do runs op, retrying with a constant backoff until the attempt
// budget is exhausted.
func (p RetryPolicy) Do(name string, op func() error) error {
	attempt := 0
	wrapped := func() error {
		attempt++
		err := op()
		if err != nil {
			slog.Warn("operation failed", "op", name, "attempt", attempt, "err", err)
		}
		return err
	}
	b := backoff.WithMaxRetries(backoff.NewConstantBackOff(p.Wait), p.Attempts)
	if err := backoff.Retry(wrapped, b); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrRepeatedFailure, name, err)
	}
	return nil
}
