package retry

import (
	"context"
	"courtfetch/internal/components/chrono"
	"errors"
	"fmt"
	"time"
)

var ErrExhausted = errors.New("retry attempts exhausted")

// Policy bounds how often and how fast an operation is retried. The wait
// before attempt n+1 is Delay + Step*(n-1), so Step of zero gives a fixed
// delay and a positive Step gives linear backoff.
type Policy struct {
	MaxAttempts int
	Delay       time.Duration
	Step        time.Duration
}

func (p Policy) attempts() int {
	if p.MaxAttempts <= 0 {
		return 1
	}
	return p.MaxAttempts
}

// Backoff returns the wait after the given failed attempt (1-based).
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return p.Delay + p.Step*time.Duration(attempt-1)
}

type permanentError struct {
	err error
}

func (e permanentError) Error() string {
	return e.err.Error()
}

func (e permanentError) Unwrap() error {
	return e.err
}

// Permanent marks an error as not worth retrying, Run returns it immediately.
// It may be wrapped further, Run then returns the wrapping error as is.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// Run calls fn until it succeeds, returns a Permanent error, the context is
// done or the policy runs out of attempts. Exhaustion wraps both
// ErrExhausted and the last error.
func (p Policy) Run(ctx context.Context, clock chrono.API, fn func(ctx context.Context, attempt int) error) error {
	total := p.attempts()
	var last error
	for attempt := 1; attempt <= total; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		last = fn(ctx, attempt)
		if last == nil {
			return nil
		}
		var permanent permanentError
		if errors.As(last, &permanent) {
			if top, ok := last.(permanentError); ok {
				return top.err
			}
			return last
		}
		if ctx.Err() != nil {
			return last
		}
		if attempt == total {
			break
		}

		err := clock.Sleep(ctx, p.Backoff(attempt))
		if err != nil {
			return err
		}
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, total, last)
}
