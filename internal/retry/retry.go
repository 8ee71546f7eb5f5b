// Package retry runs an operation under a bounded retry policy with a fixed
// delay between attempts.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/Travelintrips/travelpage-sub004/internal/clock"
)

type Policy struct {
	MaxAttempts int
	Delay       time.Duration
}

// Do calls fn until it returns nil, retryable reports false for its error,
// the attempts are exhausted, or ctx is done. onRetry, when non-nil, is called
// before each wait with the failed attempt number.
func Do(
	ctx context.Context,
	clk clock.Clock,
	p Policy,
	retryable func(error) bool,
	onRetry func(attempt int, err error),
	fn func(ctx context.Context) error,
) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if retryable != nil && !retryable(err) {
			return err
		}
		if attempt == attempts {
			break
		}
		if onRetry != nil {
			onRetry(attempt, err)
		}
		if sleepErr := SleepOrDone(ctx, clk, p.Delay); sleepErr != nil {
			return fmt.Errorf("attempt %d: %w", attempt, sleepErr)
		}
	}

	return fmt.Errorf("after %d attempts: %w", attempts, err)
}

// SleepOrDone waits for d or returns early on context cancellation.
func SleepOrDone(ctx context.Context, clk clock.Clock, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	select {
	case <-clk.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
