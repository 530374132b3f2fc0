package supervisor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nerrad567/synthd/internal/process"
	"github.com/nerrad567/synthd/internal/transport"
)

// fakeProcess is a Process whose events are driven by the test.
// Terminate only records the call; the event channel stays open so tests
// can deliver late events from a process the supervisor has let go of.
type fakeProcess struct {
	pid        int
	events     chan process.Event
	terminated atomic.Int32
}

func newFakeProcess(pid int) *fakeProcess {
	return &fakeProcess{pid: pid, events: make(chan process.Event, 16)}
}

func (p *fakeProcess) Events() <-chan process.Event { return p.events }
func (p *fakeProcess) PID() int                     { return p.pid }
func (p *fakeProcess) Uptime() time.Duration        { return time.Second }

func (p *fakeProcess) Terminate() error {
	p.terminated.Add(1)
	return nil
}

func (p *fakeProcess) output(s string) {
	p.events <- process.Event{Kind: process.EventOutput, Stream: process.Stdout, Data: []byte(s)}
}

func (p *fakeProcess) exit(code int) {
	if code == 0 {
		p.events <- process.Event{Kind: process.EventExitedNormally}
		return
	}
	p.events <- process.Event{Kind: process.EventExitedWithCode, Code: code}
}

func (p *fakeProcess) die(reason string) {
	p.events <- process.Event{Kind: process.EventDied, Reason: reason}
}

// fakeLauncher hands out fakeProcesses, or fails with err.
type fakeLauncher struct {
	mu      sync.Mutex
	err     error
	procs   []*fakeProcess
	configs []process.LaunchConfig
}

func (l *fakeLauncher) Launch(cfg process.LaunchConfig) (Process, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.configs = append(l.configs, cfg)
	if l.err != nil {
		return nil, l.err
	}
	p := newFakeProcess(1000 + len(l.procs))
	l.procs = append(l.procs, p)
	return p, nil
}

func (l *fakeLauncher) setErr(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.err = err
}

func (l *fakeLauncher) launches() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.configs)
}

func (l *fakeLauncher) last() *fakeProcess {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.procs) == 0 {
		return nil
	}
	return l.procs[len(l.procs)-1]
}

type sentDatagram struct {
	host    string
	port    int
	payload []byte
}

// fakeTransport records sends and fails on demand.
type fakeTransport struct {
	port    int
	handler transport.InboundHandler

	failed    chan error
	done      chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool

	mu      sync.Mutex
	sent    []sentDatagram
	sendErr error
}

func (t *fakeTransport) Send(host string, port int, payload []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sendErr != nil {
		return t.sendErr
	}
	t.sent = append(t.sent, sentDatagram{host: host, port: port, payload: payload})
	return nil
}

func (t *fakeTransport) Close() error {
	t.closed.Store(true)
	t.closeOnce.Do(func() { close(t.done) })
	return nil
}

func (t *fakeTransport) Failed() <-chan error  { return t.failed }
func (t *fakeTransport) Done() <-chan struct{} { return t.done }
func (t *fakeTransport) LocalPort() int        { return t.port }

// fail simulates the socket dying underneath its owner.
func (t *fakeTransport) fail() {
	t.failed <- errors.New("socket exploded")
	t.closeOnce.Do(func() { close(t.done) })
}

func (t *fakeTransport) datagrams() []sentDatagram {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]sentDatagram(nil), t.sent...)
}

// fakeOpener opens fakeTransports on increasing ports. Queued errors are
// returned by the next opens, one each, and queued ports are used before
// the counter.
type fakeOpener struct {
	mu         sync.Mutex
	nextPort   int
	errs       []error
	ports      []int
	transports []*fakeTransport
}

func (o *fakeOpener) open(handler transport.InboundHandler) (Transport, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if len(o.errs) > 0 {
		err := o.errs[0]
		o.errs = o.errs[1:]
		return nil, err
	}

	var port int
	if len(o.ports) > 0 {
		port = o.ports[0]
		o.ports = o.ports[1:]
	} else {
		o.nextPort++
		port = 50000 + o.nextPort
	}
	t := &fakeTransport{
		port:    port,
		handler: handler,
		failed:  make(chan error, 1),
		done:    make(chan struct{}),
	}
	o.transports = append(o.transports, t)
	return t, nil
}

func (o *fakeOpener) failNext(errs ...error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.errs = append(o.errs, errs...)
}

func (o *fakeOpener) reusePorts(ports ...int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ports = append(o.ports, ports...)
}

func (o *fakeOpener) all() []*fakeTransport {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*fakeTransport(nil), o.transports...)
}

func (o *fakeOpener) opened() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.transports)
}

func (o *fakeOpener) last() *fakeTransport {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.transports) == 0 {
		return nil
	}
	return o.transports[len(o.transports)-1]
}

// updateRecorder collects listener updates.
type updateRecorder struct {
	mu      sync.Mutex
	updates []Update
}

func (r *updateRecorder) record(u Update) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, u)
}

func (r *updateRecorder) all() []Update {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Update(nil), r.updates...)
}

type harness struct {
	sup      *Supervisor
	launcher *fakeLauncher
	opener   *fakeOpener
	updates  *updateRecorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		launcher: &fakeLauncher{},
		opener:   &fakeOpener{},
		updates:  &updateRecorder{},
	}

	sup, err := New(Config{
		Binary:   "/usr/bin/scsynth",
		Args:     []string{"-u", "57110"},
		Host:     "127.0.0.1",
		Port:     57110,
		Launcher: h.launcher,
		OpenTransport: func(handler transport.InboundHandler) (Transport, error) {
			return h.opener.open(handler)
		},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	sup.OnUpdate(h.updates.record)
	t.Cleanup(func() { _ = sup.Close() })

	h.sup = sup
	return h
}

func (h *harness) boot(t *testing.T) *fakeProcess {
	t.Helper()
	if err := h.sup.Boot(testContext(t)); err != nil {
		t.Fatalf("Boot() error = %v", err)
	}
	return h.launcher.last()
}

func (h *harness) status(t *testing.T) Snapshot {
	t.Helper()
	snap, err := h.sup.Status(testContext(t))
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	return snap
}

// waitFor polls Status until cond holds.
func (h *harness) waitFor(t *testing.T, what string, cond func(Snapshot) bool) Snapshot {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for {
		snap := h.status(t)
		if cond(snap) {
			return snap
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s; last snapshot %+v", what, snap)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (h *harness) waitForStatus(t *testing.T, want Status) Snapshot {
	t.Helper()
	return h.waitFor(t, "status "+string(want), func(s Snapshot) bool { return s.Status == want })
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}
