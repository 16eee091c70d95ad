package ops

import (
	"fmt"
)

type State int32

const (
	// Submitted, not yet admitted.
	PENDING State = iota
	// Body is executing.
	RUNNING

	// States below are end states
	// an Operation in an end state will not change its state

	// Body returned nil.
	SUCCEEDED
	// Body returned a non-cancellation error.
	FAILED
	// A checkpoint observed cancellation, or the op was cancelled while queued.
	CANCELLED
)

func (s State) IsDone() bool {
	return s == SUCCEEDED || s == FAILED || s == CANCELLED
}

func (s State) String() string {
	switch s {
	case PENDING:
		return "PENDING"
	case RUNNING:
		return "RUNNING"
	case SUCCEEDED:
		return "SUCCEEDED"
	case FAILED:
		return "FAILED"
	case CANCELLED:
		return "CANCELLED"
	default:
		panic(fmt.Sprintf("Unexpected State %v", int(s)))
	}
}

// validTransition encodes PENDING -> RUNNING -> {SUCCEEDED, FAILED, CANCELLED},
// plus PENDING -> CANCELLED for an op cancelled before admission.
func validTransition(from, to State) bool {
	switch from {
	case PENDING:
		return to == RUNNING || to == CANCELLED
	case RUNNING:
		return to.IsDone()
	}
	return false
}
