package process

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

// stuckThreshold is how many consecutive watchdog checks may see the process
// stopped or in uninterruptible sleep before it is declared dead.
const stuckThreshold = 3

// readProcState returns the single-letter state from /proc/PID/stat.
//
// The file looks like "pid (comm) state ...". comm may itself contain spaces
// and parentheses, so the state is found after the last ')'.
func readProcState(pid int) (string, error) {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return "", fmt.Errorf("reading process state: %w", err)
	}

	stat := string(data)
	closeParen := strings.LastIndex(stat, ")")
	if closeParen == -1 || closeParen+2 >= len(stat) {
		return "", fmt.Errorf("invalid /proc stat format for pid %d", pid)
	}

	fields := strings.Fields(stat[closeParen+2:])
	if len(fields) < 1 {
		return "", fmt.Errorf("invalid /proc stat format for pid %d: no state field", pid)
	}
	return fields[0], nil
}

// watch polls /proc until the process exits or is terminated. A process
// that stays stopped (T/t) or in uninterruptible sleep (D) for
// stuckThreshold checks, or is reported dead (X/x), gets a Died event and
// a SIGKILL to its group.
//
// Zombies (Z) are left alone: wait() is about to reap them.
func (h *Handle) watch() {
	ticker := time.NewTicker(h.cfg.WatchdogInterval)
	defer ticker.Stop()

	stuck := 0
	for {
		select {
		case <-h.exited:
			return
		case <-h.stop:
			return
		case <-ticker.C:
		}

		state, err := readProcState(h.pid)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				h.logger.Debug("process watchdog stopping", "name", h.cfg.Name, "error", err)
			}
			return
		}

		switch state {
		case "T", "t", "D":
			stuck++
			if stuck >= stuckThreshold {
				h.giveUp(fmt.Sprintf("process stuck in state %s for %d checks", state, stuck))
				return
			}
		case "X", "x":
			h.giveUp(fmt.Sprintf("process is dead (state=%s)", state))
			return
		default:
			stuck = 0
		}
	}
}

// giveUp reports the process as died and kills its group so wait() returns.
func (h *Handle) giveUp(reason string) {
	h.logger.Warn("process watchdog giving up", "name", h.cfg.Name, "pid", h.pid, "reason", reason)
	h.emitTerminal(died(reason))
	if err := h.signalGroup(unix.SIGKILL); err != nil {
		h.logger.Error("process watchdog kill failed", "name", h.cfg.Name, "error", err)
	}
}
