// Package process runs a single external executable and reports on it.
//
// A Handle owns one child process for its whole life. It is designed for the
// audio engine that synthd supervises, but nothing in here knows about audio:
// the caller supplies the executable and its arguments.
//
// Features:
//   - Pre-launch validation of the executable (exists, is executable, is permitted)
//   - Child runs in its own process group so signals reach its helpers too
//   - Stdout/stderr delivered as OutputChunk events, in order per stream
//   - Exactly one terminal event: ExitedNormally, ExitedWithCode or Died
//   - Bounded Terminate: SIGTERM, grace period, SIGKILL, kill timeout
//   - Optional /proc watchdog for processes that stop without exiting
//
// Example usage:
//
//	h, err := process.Launch(process.LaunchConfig{
//	    Name:   "scsynth",
//	    Binary: "/usr/bin/scsynth",
//	    Args:   []string{"-u", "57110"},
//	})
//	if err != nil {
//	    return err // ErrFileNotFound, ErrNotExecutable, ErrPermissionDenied...
//	}
//	defer h.Terminate()
//
//	for ev := range h.Events() {
//	    if ev.Terminal() {
//	        log.Printf("engine finished: %s", ev)
//	    }
//	}
package process
