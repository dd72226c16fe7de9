// Package retry runs an operation a bounded number of times with jittered
// exponential backoff between attempts.
//
// It is used for two things: recreating shard/temp directories that vanish
// between being created and being used, and re-sending units to a forwarder
// sink after transient failures.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	awsretry "github.com/aws/aws-sdk-go-v2/aws/retry"
)

// ErrExhausted is returned (wrapped together with the last failure) when every
// attempt failed.
var ErrExhausted = errors.New("retry attempts exhausted")

// Policy bounds a retry loop.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first one.
	// Values < 1 are treated as 1.
	MaxAttempts int

	// MaxBackoff caps the delay between attempts. Zero disables waiting.
	MaxBackoff time.Duration

	// Immediate makes the first retry happen without any delay. Used for
	// directory races, where recreating the directory is usually enough.
	Immediate bool
}

// Delay returns the wait before the given retry (1 = first retry).
func (p Policy) Delay(attempt int) time.Duration {
	if p.MaxBackoff <= 0 || attempt <= 0 {
		return 0
	}
	if p.Immediate && attempt == 1 {
		return 0
	}
	d, err := awsretry.NewExponentialJitterBackoff(p.MaxBackoff).BackoffDelay(attempt, nil)
	if err != nil || d > p.MaxBackoff {
		return p.MaxBackoff
	}
	return d
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not retryable. Do returns the wrapped error as-is.
// Permanent(nil) is nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var perm *permanentError
	return errors.As(err, &perm)
}

// Do calls fn until it succeeds, returns a Permanent error, the policy is
// exhausted, or ctx is cancelled. attempt starts at 0.
func Do(ctx context.Context, p Policy, fn func(attempt int) error) error {
	attempts := max(p.MaxAttempts, 1)

	var last error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, p.Delay(attempt)); err != nil {
				return fmt.Errorf("%w (last error: %v)", err, last)
			}
		}

		err := fn(attempt)
		if err == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		last = err
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempts, last)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
