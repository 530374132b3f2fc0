package process

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"golang.org/x/sys/unix"
)

// execBits is any of the user/group/other execute permission bits.
const execBits = 0o111

// ValidateExecutable checks that path names a regular file the current user
// may execute.
//
// Returns:
//   - ErrFileNotFound: nothing exists at path
//   - ErrNotExecutable: a directory, device, or a file with no execute bits
//   - ErrPermissionDenied: execute bits exist but access(2) refuses X_OK,
//     or a parent directory cannot be searched
func ValidateExecutable(path string) error {
	if path == "" {
		return fmt.Errorf("%w: empty path", ErrFileNotFound)
	}

	info, err := os.Stat(path)
	if err != nil {
		switch {
		case errors.Is(err, fs.ErrNotExist):
			return fmt.Errorf("%w: %s", ErrFileNotFound, path)
		case errors.Is(err, fs.ErrPermission):
			return fmt.Errorf("%w: %s", ErrPermissionDenied, path)
		default:
			return fmt.Errorf("stat %s: %w", path, err)
		}
	}

	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: %s is not a regular file (%s)", ErrNotExecutable, path, info.Mode().Type())
	}
	if info.Mode().Perm()&execBits == 0 {
		return fmt.Errorf("%w: %s has mode %s", ErrNotExecutable, path, info.Mode().Perm())
	}

	if err := unix.Access(path, unix.X_OK); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrPermissionDenied, path, err)
	}

	return nil
}

// classifyStartError maps an exec.Cmd.Start failure onto the validation
// sentinels where the errno makes the cause clear.
func classifyStartError(path string, err error) error {
	switch {
	case errors.Is(err, unix.ENOENT):
		return fmt.Errorf("%w: %s: %v", ErrFileNotFound, path, err)
	case errors.Is(err, unix.EACCES), errors.Is(err, unix.EPERM):
		return fmt.Errorf("%w: %s: %v", ErrPermissionDenied, path, err)
	case errors.Is(err, unix.ENOEXEC):
		return fmt.Errorf("%w: %s: %v", ErrNotExecutable, path, err)
	default:
		return fmt.Errorf("%w: %s: %w", ErrStartFailed, path, err)
	}
}
