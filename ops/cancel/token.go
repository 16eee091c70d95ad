// Package cancel implements cooperative cancellation for operations.
//
// A Token is a set-once flag. Operation bodies call Check at their own
// checkpoints (before each remote call, inside retry loops); nothing is ever
// preempted. Tokens can be merged with external Monitors, such as a caller's
// context, so one Check observes every cancellation source.
package cancel

import (
	"context"
	"sync"
	"sync/atomic"

	opserrors "github.com/bootdash/cloudops/common/errors"
)

// Monitor is anything that can report a cancellation request.
type Monitor interface {
	IsCancelled() bool
}

// Token is safe for concurrent use. The zero value is not usable, use New
// or Tokens.Create.
type Token struct {
	id        uint64
	cancelled atomic.Bool
	once      sync.Once
	done      chan struct{}
}

func New() *Token {
	return &Token{done: make(chan struct{})}
}

// Cancel sets the flag. Calling it again has no further effect.
func (t *Token) Cancel() {
	t.once.Do(func() {
		t.cancelled.Store(true)
		close(t.done)
	})
}

func (t *Token) IsCancelled() bool {
	return t.cancelled.Load()
}

// Done is closed on the first Cancel.
func (t *Token) Done() <-chan struct{} {
	return t.done
}

// ID is the creation sequence number within the owning Tokens, 0 for New.
func (t *Token) ID() uint64 {
	return t.id
}

// Check returns a Cancelled error as soon as any of the given monitors reports
// cancellation. Nil monitors are skipped.
func Check(monitors ...Monitor) error {
	for _, m := range monitors {
		if m != nil && m.IsCancelled() {
			return opserrors.NewCancelled("operation cancelled")
		}
	}
	return nil
}

type merged []Monitor

func (ms merged) IsCancelled() bool {
	return Check(ms...) != nil
}

// Merge returns a Monitor that reports cancelled when the token or any of
// the monitors does.
func Merge(t *Token, monitors ...Monitor) Monitor {
	out := make(merged, 0, len(monitors)+1)
	if t != nil {
		out = append(out, t)
	}
	for _, m := range monitors {
		if m != nil {
			out = append(out, m)
		}
	}
	return out
}

type ctxMonitor struct {
	ctx context.Context
}

func (c ctxMonitor) IsCancelled() bool {
	return c.ctx.Err() != nil
}

// FromContext reports cancelled once ctx is done, for any reason.
func FromContext(ctx context.Context) Monitor {
	return ctxMonitor{ctx}
}

// WithToken derives a context that is cancelled when t is.
// The returned CancelFunc must be called to release the watcher goroutine.
func WithToken(parent context.Context, t *Token) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		select {
		case <-t.Done():
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
