package generation

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"
)

// RetryPolicy retries a failing operation with exponential backoff.
type RetryPolicy struct {
	MaxRetries uint64
	BaseDelay  time.Duration
}

func DefaultRetryPolicy(maxRetries int) RetryPolicy {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return RetryPolicy{MaxRetries: uint64(maxRetries), BaseDelay: 2 * time.Second}
}

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// Do runs fn until it succeeds, returns a permanent error, or the retries
// are exhausted. It reports how many attempts were made.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) (int, error) {
	base := p.BaseDelay
	if base <= 0 {
		base = time.Millisecond
	}
	backoff := retry.WithMaxRetries(p.MaxRetries, retry.NewExponential(base))

	attempts := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		var perm permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		return retry.RetryableError(err)
	})
	return attempts, err
}
