package retry

import (
	"context"
	"courtfetch/internal/components/chrono"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRunSucceedsAfterFailures(t *testing.T) {
	clock := chrono.NewFake(time.Unix(0, 0))
	policy := Policy{MaxAttempts: 5, Delay: 3 * time.Second}

	calls := 0
	err := policy.Run(context.Background(), clock, func(ctx context.Context, attempt int) error {
		calls++
		if attempt < 3 {
			return errors.New("flaky")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
	require.Equal(t, []time.Duration{3 * time.Second, 3 * time.Second}, clock.Slept())
}

func TestRunExhausted(t *testing.T) {
	clock := chrono.NewFake(time.Unix(0, 0))
	policy := Policy{MaxAttempts: 3, Delay: time.Second, Step: time.Second}
	cause := errors.New("still broken")

	err := policy.Run(context.Background(), clock, func(ctx context.Context, attempt int) error {
		return cause
	})
	require.ErrorIs(t, err, ErrExhausted)
	require.ErrorIs(t, err, cause)
	require.Equal(t, []time.Duration{time.Second, 2 * time.Second}, clock.Slept())
}

func TestRunPermanent(t *testing.T) {
	clock := chrono.NewFake(time.Unix(0, 0))
	policy := Policy{MaxAttempts: 5}
	cause := errors.New("bad input")

	calls := 0
	err := policy.Run(context.Background(), clock, func(ctx context.Context, attempt int) error {
		calls++
		return Permanent(cause)
	})
	require.Equal(t, cause, err)
	require.Equal(t, 1, calls)
	require.NotErrorIs(t, err, ErrExhausted)
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	clock := chrono.NewFake(time.Unix(0, 0))
	policy := Policy{MaxAttempts: 5}

	err := policy.Run(ctx, clock, func(ctx context.Context, attempt int) error {
		cancel()
		return errors.New("interrupted")
	})
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrExhausted)
}

func TestRunPermanentWrapped(t *testing.T) {
	clock := chrono.NewFake(time.Unix(0, 0))
	policy := Policy{MaxAttempts: 5}
	outer := errors.New("download")
	cause := errors.New("not found")

	calls := 0
	err := policy.Run(context.Background(), clock, func(ctx context.Context, attempt int) error {
		calls++
		return fmt.Errorf("%w: %w", outer, Permanent(cause))
	})
	require.Equal(t, 1, calls)
	require.ErrorIs(t, err, outer)
	require.ErrorIs(t, err, cause)
	require.Equal(t, "download: not found", err.Error())
	require.Empty(t, clock.Slept())
}
