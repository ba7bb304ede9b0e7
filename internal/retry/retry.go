// Package retry runs an operation a bounded number of times with a fixed
// pause between attempts. Only errors accepted by the caller's predicate are
// retried; anything else is returned immediately.
package retry

import (
	"context"
	"fmt"
	"time"
)

// Policy bounds a retry loop.
type Policy struct {
	Attempts int
	Backoff  time.Duration
}

// ExhaustedError is returned when every attempt failed with a retryable error.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// Do calls op until it succeeds, returns a non-retryable error, the attempts
// run out or ctx is done. A nil isRetryable retries every error. Cancellation
// during a pause returns ctx.Err() wrapped together with the last failure.
func Do(ctx context.Context, p Policy, isRetryable func(error) bool, op func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var last error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return interrupted(err, last)
		}

		last = op(ctx)
		if last == nil {
			return nil
		}
		if isRetryable != nil && !isRetryable(last) {
			return last
		}
		if attempt == attempts {
			break
		}

		timer := time.NewTimer(p.Backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return interrupted(ctx.Err(), last)
		case <-timer.C:
		}
	}

	return &ExhaustedError{Attempts: attempts, Err: last}
}

func interrupted(cause, last error) error {
	if last == nil {
		return fmt.Errorf("interrupted: %w", cause)
	}
	return fmt.Errorf("interrupted: %w (last error: %w)", cause, last)
}
