package process

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// Default timings for Terminate and the event channel.
const (
	DefaultGracefulTimeout = 5 * time.Second
	DefaultKillTimeout     = 2 * time.Second
	DefaultEventBuffer     = 64
)

// LaunchConfig describes the executable to start.
type LaunchConfig struct {
	// Name is a human-readable identifier for logging.
	Name string

	// Binary is the path to the executable.
	Binary string

	// Args are command-line arguments to pass to the binary.
	Args []string

	// Env are additional environment variables (key=value format) appended
	// to the parent's environment. If nil, the parent environment is used.
	Env []string

	// WorkDir is the working directory for the process.
	// If empty, inherits from parent process.
	WorkDir string

	// GracefulTimeout is how long Terminate waits after SIGTERM before SIGKILL.
	GracefulTimeout time.Duration

	// KillTimeout is how long Terminate waits after SIGKILL before giving up.
	// It also bounds how long output pipes may stay open after exit.
	KillTimeout time.Duration

	// WatchdogInterval enables /proc polling for stuck processes. Zero disables it.
	WatchdogInterval time.Duration

	// EventBuffer is the capacity of the Events channel.
	EventBuffer int

	// Logger receives lifecycle and output logs. If nil, nothing is logged.
	Logger Logger
}

func (c LaunchConfig) withDefaults() LaunchConfig {
	if c.Name == "" {
		c.Name = c.Binary
	}
	if c.GracefulTimeout <= 0 {
		c.GracefulTimeout = DefaultGracefulTimeout
	}
	if c.KillTimeout <= 0 {
		c.KillTimeout = DefaultKillTimeout
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = DefaultEventBuffer
	}
	if c.Logger == nil {
		c.Logger = noopLogger{}
	}
	return c
}

// Logger defines the logging interface for process handles.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Handle owns one launched child process.
//
// Events delivers output chunks followed by exactly one terminal event, then
// closes. After Terminate, undelivered events are dropped and the channel
// closes once the process is gone.
type Handle struct {
	cfg    LaunchConfig
	logger Logger

	cmd       *exec.Cmd
	pid       int
	startTime time.Time

	events chan Event
	stop   chan struct{} // closed by Terminate
	exited chan struct{} // closed once Wait returns

	// sendMu guards closing events against writers still inside emit.
	sendMu sync.RWMutex
	closed bool

	terminalOnce  sync.Once
	terminated    atomic.Bool
	terminateOnce sync.Once
	terminateErr  error

	mu        sync.Mutex
	exitEvent Event

	outputBytes  atomic.Int64
	outputChunks atomic.Int64
}

// Launch validates cfg.Binary and starts it in a new process group.
//
// Validation failures return ErrFileNotFound, ErrNotExecutable or
// ErrPermissionDenied without spawning anything.
func Launch(cfg LaunchConfig) (*Handle, error) {
	cfg = cfg.withDefaults()

	if err := ValidateExecutable(cfg.Binary); err != nil {
		return nil, err
	}

	h := &Handle{
		cfg:    cfg,
		logger: cfg.Logger,
		events: make(chan Event, cfg.EventBuffer),
		stop:   make(chan struct{}),
		exited: make(chan struct{}),
	}

	cmd := exec.Command(cfg.Binary, cfg.Args...) //nolint:gosec // binary is operator-configured and validated above
	cmd.Dir = cfg.WorkDir
	if cfg.Env != nil {
		cmd.Env = append(os.Environ(), cfg.Env...)
	}
	// Own process group so Terminate can signal any helpers the engine forks.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Stdout = chunkWriter{h: h, stream: Stdout}
	cmd.Stderr = chunkWriter{h: h, stream: Stderr}
	cmd.WaitDelay = cfg.KillTimeout

	h.logger.Info("starting process", "name", cfg.Name, "binary", cfg.Binary, "args", cfg.Args)

	if err := cmd.Start(); err != nil {
		return nil, classifyStartError(cfg.Binary, err)
	}

	h.cmd = cmd
	h.pid = cmd.Process.Pid
	h.startTime = time.Now()

	h.logger.Info("process started", "name", cfg.Name, "pid", h.pid)

	go h.wait()
	if cfg.WatchdogInterval > 0 {
		go h.watch()
	}

	return h, nil
}

// Events returns the notification channel. It is closed after the terminal
// event, or after Terminate once the process has exited.
func (h *Handle) Events() <-chan Event {
	return h.events
}

// Done is closed once the OS has reaped the process.
func (h *Handle) Done() <-chan struct{} {
	return h.exited
}

// PID returns the process ID.
func (h *Handle) PID() int {
	return h.pid
}

// Uptime returns how long the process has been (or was) running.
func (h *Handle) Uptime() time.Duration {
	select {
	case <-h.exited:
		if ev, ok := h.ExitEvent(); ok {
			return ev.Time.Sub(h.startTime)
		}
	default:
	}
	return time.Since(h.startTime)
}

// ExitEvent returns the terminal event, if one has been produced.
func (h *Handle) ExitEvent() (Event, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exitEvent, h.exitEvent.Kind != ""
}

// Terminate stops the process: SIGTERM to the group, wait GracefulTimeout,
// SIGKILL, wait KillTimeout. It is idempotent and never blocks longer than
// the sum of the two timeouts. An error means the process survived SIGKILL.
func (h *Handle) Terminate() error {
	h.terminateOnce.Do(func() {
		h.terminateErr = h.terminate()
	})
	return h.terminateErr
}

func (h *Handle) terminate() error {
	close(h.stop)

	select {
	case <-h.exited:
		return nil
	default:
	}

	h.logger.Info("stopping process", "name", h.cfg.Name, "pid", h.pid)

	if err := h.signalGroup(unix.SIGTERM); err != nil {
		h.logger.Warn("failed to send SIGTERM to process group", "name", h.cfg.Name, "error", err)
	}

	select {
	case <-h.exited:
		h.logger.Info("process stopped gracefully", "name", h.cfg.Name)
		return nil
	case <-time.After(h.cfg.GracefulTimeout):
		h.logger.Warn("graceful shutdown timeout, sending SIGKILL",
			"name", h.cfg.Name,
			"timeout", h.cfg.GracefulTimeout,
		)
	}

	if err := h.signalGroup(unix.SIGKILL); err != nil {
		h.logger.Warn("failed to send SIGKILL to process group", "name", h.cfg.Name, "error", err)
	}

	select {
	case <-h.exited:
		h.logger.Info("process killed", "name", h.cfg.Name)
		return nil
	case <-time.After(h.cfg.KillTimeout):
		h.logger.Error("process did not exit after SIGKILL", "name", h.cfg.Name, "pid", h.pid)
		return fmt.Errorf("process %s (pid %d) still running %s after SIGKILL", h.cfg.Name, h.pid, h.cfg.KillTimeout)
	}
}

// signalGroup sends sig to the whole process group, falling back to the
// process alone if the group cannot be signalled.
func (h *Handle) signalGroup(sig unix.Signal) error {
	err := unix.Kill(-h.pid, sig)
	if err == nil || errors.Is(err, unix.ESRCH) {
		return nil
	}
	if perr := h.cmd.Process.Signal(sig); perr != nil && !errors.Is(perr, os.ErrProcessDone) {
		return fmt.Errorf("signalling %s: %w", h.cfg.Name, errors.Join(err, perr))
	}
	return nil
}

// wait reaps the process and produces its terminal event.
func (h *Handle) wait() {
	err := h.cmd.Wait()
	close(h.exited)

	ev := exitEvent(h.cmd.ProcessState, err)
	h.logger.Info("process exited", "name", h.cfg.Name, "pid", h.pid, "result", ev.String())

	h.emitTerminal(ev)
	h.closeEvents()
}

// exitEvent converts the outcome of Wait into a terminal event.
func exitEvent(state *os.ProcessState, err error) Event {
	if state == nil {
		return died(fmt.Sprintf("wait failed: %v", err))
	}
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return died("killed by signal: " + ws.Signal().String())
	}
	// Success also covers exec.ErrWaitDelay: the process exited 0 but a
	// grandchild kept the output pipes open.
	if state.Success() {
		return exitedNormally()
	}
	if code := state.ExitCode(); code > 0 {
		return exitedWithCode(code)
	}
	return died(state.String())
}

// emitTerminal records and delivers the terminal event. Only the first call
// has any effect.
func (h *Handle) emitTerminal(ev Event) {
	h.terminalOnce.Do(func() {
		h.mu.Lock()
		h.exitEvent = ev
		h.mu.Unlock()

		h.terminated.Store(true)
		h.emit(ev)
	})
}

// emit delivers ev unless the channel is closed or Terminate has been called.
func (h *Handle) emit(ev Event) {
	h.sendMu.RLock()
	defer h.sendMu.RUnlock()

	if h.closed {
		return
	}
	select {
	case h.events <- ev:
	case <-h.stop:
	}
}

func (h *Handle) closeEvents() {
	h.sendMu.Lock()
	defer h.sendMu.Unlock()

	if !h.closed {
		h.closed = true
		close(h.events)
	}
}

// chunkWriter turns pipe writes from exec.Cmd into OutputChunk events.
type chunkWriter struct {
	h      *Handle
	stream Stream
}

func (w chunkWriter) Write(p []byte) (int, error) {
	if len(p) == 0 || w.h.terminated.Load() {
		return len(p), nil
	}

	data := make([]byte, len(p))
	copy(data, p)

	w.h.outputBytes.Add(int64(len(p)))
	w.h.outputChunks.Add(1)
	w.h.logger.Debug("process output",
		"name", w.h.cfg.Name,
		"stream", w.stream,
		"output", string(data),
	)

	w.h.emit(outputEvent(w.stream, data))
	return len(p), nil
}

// Stats returns statistics about the process.
type Stats struct {
	Name         string        `json:"name"`
	PID          int           `json:"pid"`
	Running      bool          `json:"running"`
	Uptime       time.Duration `json:"uptime"`
	OutputBytes  int64         `json:"output_bytes"`
	OutputChunks int64         `json:"output_chunks"`
	Exit         string        `json:"exit,omitempty"`
}

// Stats returns current statistics for the process.
func (h *Handle) Stats() Stats {
	stats := Stats{
		Name:         h.cfg.Name,
		PID:          h.pid,
		Running:      true,
		Uptime:       h.Uptime(),
		OutputBytes:  h.outputBytes.Load(),
		OutputChunks: h.outputChunks.Load(),
	}
	select {
	case <-h.exited:
		stats.Running = false
	default:
	}
	if ev, ok := h.ExitEvent(); ok {
		stats.Exit = ev.String()
	}
	return stats
}
