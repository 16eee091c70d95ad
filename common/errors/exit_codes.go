package errors

type ExitCode int

const (
	SuccessExitCode ExitCode = 0

	// Returned for errors that were never classified.
	GenericFailureExitCode ExitCode = 1

	// Usage and configuration problems.
	ConfigFailureExitCode ExitCode = 64

	CancelledExitCode ExitCode = 70

	TransientFailureExitCode ExitCode = 80

	FatalFailureExitCode ExitCode = 90

	SchedulingConflictExitCode ExitCode = 100
)

// ExitCodeError pairs an error with the process exit code it should produce.
type ExitCodeError struct {
	code ExitCode
	error
}

func NewExitCodeError(err error, exitCode ExitCode) *ExitCodeError {
	if err == nil {
		return nil
	}
	return &ExitCodeError{exitCode, err}
}

func (e *ExitCodeError) GetExitCode() ExitCode {
	if e == nil {
		return SuccessExitCode
	}
	return e.code
}

// ExitCodeOf picks the exit code for err. Explicit ExitCodeErrors win,
// otherwise the taxonomy kind decides.
func ExitCodeOf(err error) ExitCode {
	if err == nil {
		return SuccessExitCode
	}
	if e, ok := err.(*ExitCodeError); ok {
		return e.GetExitCode()
	}
	switch KindOf(err) {
	case Cancelled:
		return CancelledExitCode
	case Transient:
		return TransientFailureExitCode
	case Fatal:
		return FatalFailureExitCode
	case SchedulingConflict:
		return SchedulingConflictExitCode
	}
	return GenericFailureExitCode
}
