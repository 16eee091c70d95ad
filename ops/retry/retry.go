// Package retry holds the bounded retry helpers used inside operation bodies.
//
// Every helper returns nil as soon as the body succeeds, or exactly the most
// recent body error once its bound is exhausted. Errors classified as
// Cancelled are returned immediately and never retried.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff"
	log "github.com/sirupsen/logrus"

	opserrors "github.com/bootdash/cloudops/common/errors"
)

// Body is one attempt. Results are passed out through the closure.
type Body func() error

// Fixed runs body up to maxAttempts times with no pause between attempts.
// maxAttempts below 1 still runs the body once.
func Fixed(maxAttempts int, body Body) error {
	return When(maxAttempts, func(error) bool { return true }, body)
}

// When is Fixed, except that after each failure retryable decides whether
// another attempt is allowed. A false answer returns that error immediately.
func When(maxAttempts int, retryable func(error) bool, body Body) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	b := backoff.WithMaxRetries(&backoff.ZeroBackOff{}, uint64(maxAttempts-1))
	attempt := 0
	return backoff.RetryNotify(func() error {
		attempt++
		err := body()
		if err == nil {
			return nil
		}
		if opserrors.IsCancelled(err) || !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b, notifier("retry.When", &attempt, maxAttempts))
}

// Transient is the usual predicate for When: retry only Transient errors.
func Transient(err error) bool {
	return opserrors.IsTransient(err)
}

// WithTimeout runs body, sleeping interval after each failure, until it
// succeeds or more than timeLimit has passed since the first attempt began.
// An attempt in flight is never interrupted, so the call can return up to
// one interval plus one attempt after the limit.
func WithTimeout(interval, timeLimit time.Duration, body Body) error {
	return WithTimeoutContext(context.Background(), interval, timeLimit, body)
}

// WithTimeoutContext is WithTimeout that also stops sleeping when ctx is done.
// In that case the result is a Cancelled error wrapping the last failure.
func WithTimeoutContext(ctx context.Context, interval, timeLimit time.Duration, body Body) error {
	b := backoff.WithContext(newDeadlineBackOff(interval, timeLimit), ctx)
	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		err := body()
		if opserrors.IsCancelled(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b, notifier("retry.WithTimeout", &attempt, 0))
	if err != nil && ctx.Err() != nil && !opserrors.IsCancelled(err) {
		return opserrors.NewCancelled("retry stopped after %d attempts: %v", attempt, err)
	}
	return err
}

func notifier(name string, attempt *int, max int) backoff.Notify {
	return func(err error, next time.Duration) {
		log.WithFields(log.Fields{
			"retry":   name,
			"attempt": *attempt,
			"max":     max,
			"next":    next,
			"err":     err,
		}).Debug("Attempt failed, retrying")
	}
}

// deadlineBackOff returns a constant interval until the time limit, measured
// from Reset, has been exceeded. The limit is compared against elapsed time
// rather than added to the start time, so huge limits can't overflow into the past.
type deadlineBackOff struct {
	interval time.Duration
	limit    time.Duration
	start    time.Time
	now      func() time.Time
}

func newDeadlineBackOff(interval, limit time.Duration) *deadlineBackOff {
	if interval < 0 {
		interval = 0
	}
	if limit < 0 {
		limit = 0
	}
	b := &deadlineBackOff{interval: interval, limit: limit, now: time.Now}
	b.Reset()
	return b
}

func (b *deadlineBackOff) Reset() {
	b.start = b.now()
}

func (b *deadlineBackOff) NextBackOff() time.Duration {
	if b.now().Sub(b.start) > b.limit {
		return backoff.Stop
	}
	return b.interval
}
