package supervisor

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/nerrad567/synthd/internal/process"
)

// reopenAttempts bounds how often a failed socket's replacement is opened.
const reopenAttempts = 3

// actorState is only read and written by the actor goroutine.
type actorState struct {
	status  Status
	lastErr error
	session string

	proc    Process
	procGen uint64

	tr    Transport
	trGen uint64

	startedAt time.Time
	output    outputClassifier

	// nextGen numbers every process and transport the actor creates.
	nextGen uint64
}

// Mailbox messages.
type (
	bootCmd struct{ reply chan error }
	quitCmd struct{ reply chan error }
	sendCmd struct {
		payload []byte
		reply   chan error
	}
	statusCmd struct{ reply chan Snapshot }
	closeCmd  struct{}

	processEvent struct {
		gen uint64
		ev  process.Event
	}
	transportFailed struct {
		gen uint64
		err error
	}
)

func (s *Supervisor) run() {
	defer close(s.done)

	for range s.signal {
		for s.mailbox.Len() > 0 {
			msg, err := s.mailbox.Get()
			if err != nil {
				return
			}
			if stop := s.handle(msg); stop {
				s.mailbox.Dispose()
				return
			}
		}
	}
}

// handle processes one mailbox message and reports whether the actor
// should stop.
func (s *Supervisor) handle(msg any) bool {
	switch m := msg.(type) {
	case bootCmd:
		m.reply <- s.handleBoot()
	case quitCmd:
		m.reply <- s.handleQuit()
	case sendCmd:
		m.reply <- s.handleSend(m.payload)
	case statusCmd:
		m.reply <- s.snapshot()
	case processEvent:
		s.handleProcessEvent(m)
	case transportFailed:
		s.handleTransportFailed(m)
	case closeCmd:
		s.handleClose()
		return true
	default:
		s.logger.Debug("ignoring unknown mailbox message", "type", fmt.Sprintf("%T", msg))
	}
	return false
}

func (s *Supervisor) handleBoot() error {
	if s.st.status == StatusRunning {
		return ErrAlreadyRunning
	}

	previous := s.st.status
	s.st.session = xid.New().String()
	s.logger.Info("booting engine", "session", s.st.session, "binary", s.cfg.Binary, "args", s.cfg.Args)

	proc, err := s.cfg.Launcher.Launch(s.launchConfig())
	if err != nil {
		s.bootFailures.Add(1)
		s.logger.Error("engine launch failed", "session", s.st.session, "error", err)
		s.transition(previous, StatusErrored, err)
		return err
	}
	s.st.proc = proc
	s.st.procGen = s.newGeneration()
	s.st.output.reset()
	go s.watchProcess(s.st.procGen, proc)

	if err := s.openTransport(); err != nil {
		s.bootFailures.Add(1)
		s.logger.Error("opening engine socket failed", "session", s.st.session, "error", err)
		s.terminateProcess()
		s.transition(previous, StatusErrored, err)
		return err
	}

	s.boots.Add(1)
	s.st.startedAt = time.Now()
	s.logger.Info("engine running",
		"session", s.st.session,
		"pid", proc.PID(),
		"local_port", s.st.tr.LocalPort(),
	)
	s.transition(previous, StatusRunning, nil)
	return nil
}

func (s *Supervisor) handleQuit() error {
	previous := s.st.status
	switch previous {
	case StatusStopped:
		return nil
	case StatusRunning:
		s.logger.Info("stopping engine", "session", s.st.session)
		s.teardown()
	default:
		s.logger.Info("acknowledging engine failure", "status", previous, "error", s.st.lastErr)
	}
	s.transition(previous, StatusStopped, nil)
	return nil
}

func (s *Supervisor) handleSend(payload []byte) error {
	if s.st.status != StatusRunning {
		return ErrNotRunning
	}
	if s.st.tr == nil {
		return ErrNoTransport
	}

	if err := s.st.tr.Send(s.cfg.Host, s.cfg.Port, payload); err != nil {
		s.sendErrors.Add(1)
		return err
	}
	s.sent.Add(1)
	return nil
}

func (s *Supervisor) handleProcessEvent(m processEvent) {
	if s.st.proc == nil || m.gen != s.st.procGen {
		s.staleEvents.Add(1)
		s.logger.Debug("ignoring stale process event", "generation", m.gen, "event", m.ev.Kind)
		return
	}

	switch m.ev.Kind {
	case process.EventOutput:
		crash, fatal := s.st.output.classify(m.ev.Data)
		if !fatal {
			return
		}
		s.logger.Error("engine reported a fatal error",
			"session", s.st.session,
			"reason", crash.Reason,
			"line", crash.Detail,
		)
		s.terminateProcess()
		s.crash(crash)

	case process.EventExitedNormally:
		s.logger.Info("engine exited", "session", s.st.session)
		s.st.proc = nil
		s.closeTransport()
		s.transition(StatusRunning, StatusStopped, nil)

	case process.EventExitedWithCode:
		s.st.proc = nil
		s.crash(&CrashError{Reason: ReasonExitCode, ExitCode: m.ev.Code})

	case process.EventDied:
		s.st.proc = nil
		s.crash(&CrashError{Reason: ReasonDied, Detail: m.ev.Reason})
	}
}

// crash moves a running engine to crashed. The process must already be gone.
func (s *Supervisor) crash(cause *CrashError) {
	s.crashes.Add(1)
	s.logger.Error("engine crashed", "session", s.st.session, "error", cause)
	s.closeTransport()
	s.transition(StatusRunning, StatusCrashed, cause)
}

func (s *Supervisor) handleTransportFailed(m transportFailed) {
	if s.st.tr == nil || m.gen != s.st.trGen {
		s.staleEvents.Add(1)
		s.logger.Debug("ignoring stale transport failure", "generation", m.gen, "error", m.err)
		return
	}

	s.transportFailures.Add(1)
	s.logger.Warn("engine socket failed, replacing it", "session", s.st.session, "error", m.err)
	failedPort := s.st.tr.LocalPort()
	s.closeTransport()

	if err := s.reopenTransport(failedPort); err != nil {
		s.logger.Error("replacing engine socket failed", "session", s.st.session, "error", err)
		s.notify(s.update(UpdateTransportLost, s.st.status, err))
		s.publish()
		return
	}

	s.transportReplacements.Add(1)
	s.logger.Info("engine socket replaced", "session", s.st.session, "local_port", s.st.tr.LocalPort())
	s.notify(s.update(UpdateTransportReplaced, s.st.status, nil))
	s.publish()
}

func (s *Supervisor) handleClose() {
	previous := s.st.status
	if previous == StatusRunning {
		s.logger.Info("closing supervisor, stopping engine", "session", s.st.session)
	}
	s.teardown()
	if previous != StatusStopped {
		s.transition(previous, StatusStopped, nil)
	}
	s.publish()
}

// teardown terminates the process and closes the socket, if present.
func (s *Supervisor) teardown() {
	s.terminateProcess()
	s.closeTransport()
}

func (s *Supervisor) terminateProcess() {
	if s.st.proc == nil {
		return
	}
	if err := s.st.proc.Terminate(); err != nil {
		s.logger.Error("terminating engine failed", "session", s.st.session, "error", err)
	}
	s.st.proc = nil
}

func (s *Supervisor) openTransport() error {
	tr, err := s.cfg.OpenTransport(s.dispatchInbound)
	if err != nil {
		return err
	}
	s.installTransport(tr)
	return nil
}

// reopenTransport opens a replacement socket on a port other than
// failedPort. A socket that lands on failedPort again is closed and the
// open retried, up to reopenAttempts times.
func (s *Supervisor) reopenTransport(failedPort int) error {
	for attempt := 1; attempt <= reopenAttempts; attempt++ {
		tr, err := s.cfg.OpenTransport(s.dispatchInbound)
		if err != nil {
			return err
		}
		if tr.LocalPort() != failedPort {
			s.installTransport(tr)
			return nil
		}
		s.logger.Debug("replacement socket reused the failed port", "port", failedPort, "attempt", attempt)
		if err := tr.Close(); err != nil {
			s.logger.Warn("closing engine socket failed", "error", err)
		}
	}
	return fmt.Errorf("replacement socket kept port %d after %d attempts", failedPort, reopenAttempts)
}

func (s *Supervisor) installTransport(tr Transport) {
	s.st.tr = tr
	s.st.trGen = s.newGeneration()
	go s.watchTransport(s.st.trGen, tr)
}

func (s *Supervisor) closeTransport() {
	if s.st.tr == nil {
		return
	}
	if err := s.st.tr.Close(); err != nil {
		s.logger.Warn("closing engine socket failed", "error", err)
	}
	s.st.tr = nil
}

func (s *Supervisor) newGeneration() uint64 {
	s.st.nextGen++
	return s.st.nextGen
}

// transition sets the new status and error, publishes and notifies.
// lastErr is only kept for errored and crashed.
func (s *Supervisor) transition(previous, next Status, err error) {
	s.st.status = next
	if next == StatusErrored || next == StatusCrashed {
		s.st.lastErr = err
	} else {
		s.st.lastErr = nil
	}
	if next != StatusRunning {
		s.st.startedAt = time.Time{}
	}

	u := s.update(UpdateStatus, previous, err)
	s.publish()
	s.notify(u)
}

func (s *Supervisor) update(kind UpdateKind, previous Status, err error) Update {
	u := Update{
		Kind:     kind,
		Session:  s.st.session,
		Status:   s.st.status,
		Previous: previous,
		Time:     time.Now(),
	}
	if err != nil {
		u.Error = err.Error()
		var crash *CrashError
		if errors.As(err, &crash) {
			u.Reason = string(crash.Reason)
			u.ExitCode = crash.ExitCode
		}
	}
	if s.st.proc != nil {
		u.PID = s.st.proc.PID()
	}
	if s.st.tr != nil {
		u.LocalPort = s.st.tr.LocalPort()
	}
	return u
}

// snapshot builds the current view. Called on the actor goroutine.
func (s *Supervisor) snapshot() Snapshot {
	snap := Snapshot{
		Status:    s.st.status,
		Err:       s.st.lastErr,
		Session:   s.st.session,
		Host:      s.cfg.Host,
		Port:      s.cfg.Port,
		StartedAt: s.st.startedAt,
		Counters:  s.counters(),
	}
	if s.st.lastErr != nil {
		snap.LastError = s.st.lastErr.Error()
	}
	if s.st.proc != nil {
		snap.PID = s.st.proc.PID()
		snap.Uptime = s.st.proc.Uptime()
	}
	if s.st.tr != nil {
		snap.LocalPort = s.st.tr.LocalPort()
	}
	return snap
}

func (s *Supervisor) publish() {
	snap := s.snapshot()
	s.published.Store(&snap)
}

// watchProcess forwards process events into the mailbox until the event
// channel closes or the supervisor shuts down.
func (s *Supervisor) watchProcess(gen uint64, p Process) {
	for ev := range p.Events() {
		if err := s.enqueue(processEvent{gen: gen, ev: ev}); err != nil {
			return
		}
	}
}

// watchTransport forwards a socket failure into the mailbox.
func (s *Supervisor) watchTransport(gen uint64, t Transport) {
	select {
	case err := <-t.Failed():
		_ = s.enqueue(transportFailed{gen: gen, err: err})
	case <-t.Done():
		// Done and Failed may become ready together.
		select {
		case err := <-t.Failed():
			_ = s.enqueue(transportFailed{gen: gen, err: err})
		default:
		}
	}
}
