// Package retry provides bounded retrying with exponential backoff for
// operations against dependencies that may not be ready yet.
package retry

import (
	"context"
	"fmt"
	"time"
)

type Policy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	OnRetry        func(attempt int, err error, backoff time.Duration)
}

// Do runs op until it succeeds or the attempt budget is spent. The backoff
// doubles after every failed attempt; cancelling ctx aborts the wait.
func Do(ctx context.Context, p Policy, op func() error) error {
	backoff := p.InitialBackoff

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		err := op()
		if err == nil {
			return nil
		}

		if attempt == p.MaxAttempts {
			return fmt.Errorf("failed after %d attempts: %w", p.MaxAttempts, err)
		}

		if p.OnRetry != nil {
			p.OnRetry(attempt, err, backoff)
		}

		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			return fmt.Errorf("context cancelled during retry: %w", ctx.Err())
		}
	}

	panic("unreachable: MaxAttempts must be >= 1")
}
