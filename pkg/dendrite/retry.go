package dendrite

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RetryPolicy is the explicit reload-reevaluate-reapply decorator spec.md
// §9 asks for in place of burying retry logic in domain methods: it is
// parameterized by max attempts and a backoff function, and never
// retries blindly — every attempt reloads the aggregate from the store
// before calling fn again, so fn always sees current state and can
// re-evaluate whether the command is still valid.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     func(attempt int) time.Duration
}

// NewRetryPolicy returns a policy with exponential backoff starting at
// 10ms (10ms, 20ms, 40ms, ...), matching the teacher's
// BaseRepository.RetryOnConflict cadence.
func NewRetryPolicy(maxAttempts int) *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts: maxAttempts,
		Backoff: func(attempt int) time.Duration {
			return time.Duration(10*(1<<uint(attempt))) * time.Millisecond
		},
	}
}

// WithConflictRetry loads logID through factory and calls fn with the
// freshly loaded instance. If fn returns a *ConcurrencyViolation (because
// an Apply call inside fn lost the race), WithConflictRetry reloads the
// aggregate and calls fn again, up to MaxAttempts total attempts. Any
// other error from fn is returned immediately without retrying. Blind
// re-apply would be wrong here: reloading means fn's own business-rule
// checks run again against the now-current state.
func WithConflictRetry[T Reducer](ctx context.Context, p *RetryPolicy, factory *AggregateFactory[T], logID string, fn func(*Instance[T]) error) (*Instance[T], error) {
	var lastErr error

	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		inst, err := factory.Load(ctx, logID)
		if err != nil {
			return nil, fmt.Errorf("dendrite: retry load failed: %w", err)
		}

		err = fn(inst)
		if err == nil {
			return inst, nil
		}

		var conflict *ConcurrencyViolation
		if !errors.As(err, &conflict) {
			return nil, err
		}

		lastErr = err
		if attempt+1 < p.MaxAttempts {
			time.Sleep(p.Backoff(attempt))
		}
	}

	return nil, fmt.Errorf("dendrite: exceeded %d attempts: %w", p.MaxAttempts, lastErr)
}
