package scheduler

import (
	"context"

	"github.com/bootdash/cloudops/ops"
)

// Handle refers to a submitted operation by id.
type Handle struct {
	id   string
	op   *ops.Operation
	done chan struct{}
	s    *Scheduler
}

func (h *Handle) ID() string       { return h.id }
func (h *Handle) Name() string     { return h.op.Name() }
func (h *Handle) State() ops.State { return h.op.State() }

// Done is closed after the operation ended and the scheduler has recorded it.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Err is the operation's final error, nil until Done is closed.
func (h *Handle) Err() error {
	select {
	case <-h.done:
		return h.op.Err()
	default:
		return nil
	}
}

// Wait blocks until the operation ends and returns its error, or returns
// ctx.Err() if ctx is done first. Giving up on the wait doesn't cancel anything.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.op.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel is Scheduler.Cancel for this operation.
func (h *Handle) Cancel() bool {
	return h.s.Cancel(h.id)
}

// Status is Scheduler.Status for this operation.
func (h *Handle) Status() (Status, bool) {
	return h.s.Status(h.id)
}
