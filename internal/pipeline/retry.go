package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/gvmoraes79/FabricaEbook/internal/generate"
)

// RetryPolicy is exponential backoff for generation calls: BaseDelay
// doubling per attempt, capped at MaxDelay, plus up to half again of jitter.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, BaseDelay: time.Second, MaxDelay: 30 * time.Second}
}

// Backoff returns the wait after failed attempt n (0-indexed).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	base := p.BaseDelay
	for range attempt {
		if base >= p.MaxDelay {
			break
		}
		base *= 2
	}
	base = min(base, p.MaxDelay)
	if base < 2 {
		return base
	}
	return base + time.Duration(rand.Int64N(int64(base)/2))
}

// GenerationFailedError is the terminal error after every attempt at a
// call failed with a transient error.
type GenerationFailedError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *GenerationFailedError) Error() string {
	return fmt.Sprintf("%s: generation failed after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

func (e *GenerationFailedError) Unwrap() error { return e.Err }

// Retry runs fn until it succeeds, fails with a non-retryable error, or
// runs out of attempts. Non-retryable errors, including malformed
// responses, are returned at once.
func Retry[T any](ctx context.Context, p RetryPolicy, log *slog.Logger, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	attempts := max(p.MaxAttempts, 1)
	var lastErr error
	for attempt := range attempts {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if !generate.IsRetryable(err) {
			return zero, fmt.Errorf("%s: %w", op, err)
		}
		lastErr = err
		if attempt == attempts-1 {
			break
		}
		wait := p.Backoff(attempt)
		log.Warn("retryable generation error", "op", op, "attempt", attempt+1, "wait", wait, "error", err)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
	return zero, &GenerationFailedError{Op: op, Attempts: attempts, Err: lastErr}
}
