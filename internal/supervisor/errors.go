package supervisor

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyRunning is returned by Boot while the engine is running.
	ErrAlreadyRunning = errors.New("supervisor: already running")

	// ErrNotRunning is returned by Send when the engine is not running.
	ErrNotRunning = errors.New("supervisor: not running")

	// ErrNoTransport is returned by Send while running without a socket,
	// which happens when replacing a failed socket also failed.
	ErrNoTransport = errors.New("supervisor: no transport")

	// ErrClosed is returned by every command after Close.
	ErrClosed = errors.New("supervisor: closed")

	// ErrCrashed matches any *CrashError.
	ErrCrashed = errors.New("supervisor: engine crashed")
)

// CrashReason classifies why a running engine was declared crashed.
type CrashReason string

const (
	// ReasonExitCode means the process exited with a non-zero status.
	ReasonExitCode CrashReason = "exit_code"

	// ReasonDied means the process was killed or could not be waited on.
	ReasonDied CrashReason = "died"

	// ReasonPortInUse means the engine reported its port was taken.
	ReasonPortInUse CrashReason = "port_in_use"

	// ReasonInvalidArguments means the engine rejected its command line.
	ReasonInvalidArguments CrashReason = "invalid_arguments"
)

// CrashError describes an engine crash. It is stored as the last error
// while the supervisor is in the crashed state.
type CrashError struct {
	Reason CrashReason

	// ExitCode is set for ReasonExitCode.
	ExitCode int

	// Detail is the death reason or the offending output line.
	Detail string
}

func (e *CrashError) Error() string {
	switch {
	case e.Reason == ReasonExitCode:
		return fmt.Sprintf("supervisor: engine crashed (%s %d)", e.Reason, e.ExitCode)
	case e.Detail != "":
		return fmt.Sprintf("supervisor: engine crashed (%s): %s", e.Reason, e.Detail)
	default:
		return fmt.Sprintf("supervisor: engine crashed (%s)", e.Reason)
	}
}

// Is reports whether target is ErrCrashed.
func (e *CrashError) Is(target error) bool {
	return target == ErrCrashed
}
