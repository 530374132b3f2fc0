package process

import "errors"

// Launch validation errors. Callers can use errors.Is to branch on the
// cause; the returned error carries the offending path as detail.
var (
	// ErrFileNotFound means nothing exists at the executable path.
	ErrFileNotFound = errors.New("process: file not found")

	// ErrNotExecutable means the path exists but is not a runnable file.
	ErrNotExecutable = errors.New("process: not executable")

	// ErrPermissionDenied means the OS refuses to let us run the file.
	ErrPermissionDenied = errors.New("process: permission denied")

	// ErrStartFailed covers any other failure from the OS when spawning.
	ErrStartFailed = errors.New("process: start failed")
)
