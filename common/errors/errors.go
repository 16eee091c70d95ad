// Package errors holds the error taxonomy shared by operations, the scheduler
// and the tunnel. Every error leaving an operation body is one of four kinds:
//
//   Cancelled          - a cooperative checkpoint observed a cancelled token.
//                        Propagated, never logged as an error, never retried.
//   Transient          - a remote or I/O failure that a retry predicate may retry.
//   Fatal              - a remote or I/O failure that must not be retried.
//   SchedulingConflict - two conflicting operations were admitted at once.
//                        This is a programming error, not a runtime condition.
//
package errors

import (
	"context"
	"fmt"
	"io"
	"net"
	"syscall"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

type Kind int

const (
	// Zero value, only returned by KindOf for nil errors.
	Unknown Kind = iota
	Cancelled
	Transient
	Fatal
	SchedulingConflict
)

func (k Kind) String() string {
	switch k {
	case Unknown:
		return "unknown"
	case Cancelled:
		return "cancelled"
	case Transient:
		return "transient"
	case Fatal:
		return "fatal"
	case SchedulingConflict:
		return "scheduling_conflict"
	default:
		panic(fmt.Sprintf("Unknown error kind %d", int(k)))
	}
}

// Error is a classified error. The cause is kept intact so callers can still
// inspect the original remote error with errors.Cause or errors.As.
type Error struct {
	kind  Kind
	cause error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.kind, e.cause)
}

func (e *Error) Kind() Kind    { return e.kind }
func (e *Error) Cause() error  { return e.cause }
func (e *Error) Unwrap() error { return e.cause }

func newError(kind Kind, err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Error); ok && e.kind == kind {
		return e
	}
	return &Error{kind: kind, cause: err}
}

// NewCancelled returns a Cancelled error with the given message.
func NewCancelled(format string, args ...interface{}) error {
	return &Error{kind: Cancelled, cause: errors.Errorf(format, args...)}
}

// NewSchedulingConflict returns a SchedulingConflict error with the given message.
func NewSchedulingConflict(format string, args ...interface{}) error {
	return &Error{kind: SchedulingConflict, cause: errors.Errorf(format, args...)}
}

// AsTransient marks err as retryable. Returns nil for a nil err.
func AsTransient(err error) error {
	if e := newError(Transient, err); e != nil {
		return e
	}
	return nil
}

// AsFatal marks err as non-retryable. Returns nil for a nil err.
func AsFatal(err error) error {
	if e := newError(Fatal, err); e != nil {
		return e
	}
	return nil
}

// KindOf walks the wrap chain and returns the first classification found.
// Unclassified non-nil errors report Unknown.
func KindOf(err error) Kind {
	if err == nil {
		return Unknown
	}
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	return Unknown
}

func IsCancelled(err error) bool          { return KindOf(err) == Cancelled }
func IsTransient(err error) bool          { return KindOf(err) == Transient }
func IsFatal(err error) bool              { return KindOf(err) == Fatal }
func IsSchedulingConflict(err error) bool { return KindOf(err) == SchedulingConflict }

// Classify normalizes a low-level error into the taxonomy.
// Already classified errors pass through untouched. Context cancellation
// becomes Cancelled, timeouts and dropped connections become Transient,
// everything else is Fatal.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != Unknown {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return &Error{kind: Cancelled, cause: err}
	}
	if isTransient(err) {
		return &Error{kind: Transient, cause: err}
	}
	return &Error{kind: Fatal, cause: err}
}

var transientErrnos = []syscall.Errno{
	unix.ECONNRESET,
	unix.ECONNREFUSED,
	unix.ECONNABORTED,
	unix.EPIPE,
	unix.ETIMEDOUT,
	unix.EHOSTUNREACH,
	unix.ENETUNREACH,
}

func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	for _, errno := range transientErrnos {
		if errors.Is(err, errno) {
			return true
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}

// Message renders err for a human reader, dropping the kind prefix.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.cause.Error()
	}
	return err.Error()
}
