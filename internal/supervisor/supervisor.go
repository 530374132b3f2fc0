package supervisor

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Workiva/go-datastructures/queue"

	"github.com/nerrad567/synthd/internal/osc"
	"github.com/nerrad567/synthd/internal/process"
)

// DefaultMailboxSize is the mailbox capacity when Config leaves it zero.
const DefaultMailboxSize = 256

// Config holds the supervisor's fixed settings. They never change during
// the supervisor's life.
type Config struct {
	// Name identifies the engine in logs.
	// Default: "scsynth"
	Name string

	// Binary and Args are what Boot launches.
	Binary string
	Args   []string

	// Env and WorkDir are passed to the process.
	Env     []string
	WorkDir string

	// Host and Port are the OSC destination for Send.
	Host string
	Port int

	// BindAddress is the local address for the socket.
	BindAddress string

	// Process shutdown and watchdog timings. Zero uses process defaults.
	GracefulTimeout  time.Duration
	KillTimeout      time.Duration
	WatchdogInterval time.Duration

	// MailboxSize bounds the number of queued commands and notifications.
	MailboxSize uint64

	// Launcher starts the engine. Default: ProcessLauncher.
	Launcher Launcher

	// OpenTransport opens sockets. Default: UDPOpener(BindAddress).
	OpenTransport TransportOpener

	// Logger receives supervisor logs. If nil, nothing is logged.
	Logger Logger
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Binary == "" {
		return fmt.Errorf("binary is required")
	}
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	return nil
}

// Logger defines the logging interface for the supervisor.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// InboundListener receives datagrams arriving on the engine socket. It runs
// on the socket's reader goroutine and must not block.
type InboundListener func(payload []byte, from netip.AddrPort)

// UpdateListener receives every state change. It runs on the actor
// goroutine and must not block.
type UpdateListener func(Update)

// Supervisor boots, watches and tears down one engine process and its socket.
type Supervisor struct {
	cfg    Config
	logger Logger

	// mailbox holds commands and notifications; signal wakes the actor
	// after a Put so it never spins on an empty ring buffer.
	mailbox   *queue.RingBuffer
	signal    chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	// st is owned by the actor goroutine.
	st actorState

	// published is the latest snapshot, readable without the actor.
	published atomic.Pointer[Snapshot]

	listenersMu      sync.RWMutex
	updateListeners  []UpdateListener
	inboundListeners []InboundListener

	boots                 atomic.Uint64
	bootFailures          atomic.Uint64
	crashes               atomic.Uint64
	transportFailures     atomic.Uint64
	transportReplacements atomic.Uint64
	sent                  atomic.Uint64
	sendErrors            atomic.Uint64
	received              atomic.Uint64
	staleEvents           atomic.Uint64
}

// New creates a stopped supervisor and starts its actor goroutine.
func New(cfg Config) (*Supervisor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("supervisor config: %w", err)
	}
	if cfg.Name == "" {
		cfg.Name = "scsynth"
	}
	if cfg.MailboxSize == 0 {
		cfg.MailboxSize = DefaultMailboxSize
	}
	if cfg.Logger == nil {
		cfg.Logger = noopLogger{}
	}
	if cfg.Launcher == nil {
		cfg.Launcher = ProcessLauncher{}
	}
	if cfg.OpenTransport == nil {
		cfg.OpenTransport = UDPOpener(cfg.BindAddress, cfg.Logger)
	}

	s := &Supervisor{
		cfg:     cfg,
		logger:  cfg.Logger,
		mailbox: queue.NewRingBuffer(cfg.MailboxSize),
		signal:  make(chan struct{}, 1),
		done:    make(chan struct{}),
		st:      actorState{status: StatusStopped},
	}
	s.publish()

	go s.run()
	return s, nil
}

// OnUpdate registers a listener for state changes.
func (s *Supervisor) OnUpdate(l UpdateListener) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	s.updateListeners = append(s.updateListeners, l)
}

// OnInbound registers a listener for datagrams from the engine.
func (s *Supervisor) OnInbound(l InboundListener) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	s.inboundListeners = append(s.inboundListeners, l)
}

// Boot launches the engine and opens its socket.
//
// From stopped, errored or crashed it attempts a launch; a launch or socket
// failure leaves the supervisor errored and is returned. While running it
// returns ErrAlreadyRunning. ctx only bounds the caller's wait.
func (s *Supervisor) Boot(ctx context.Context) error {
	reply := make(chan error, 1)
	return s.request(ctx, bootCmd{reply: reply}, reply)
}

// Quit stops the engine and closes its socket. From errored or crashed it
// acknowledges the failure and returns to stopped. Quit on a stopped
// supervisor does nothing.
func (s *Supervisor) Quit(ctx context.Context) error {
	reply := make(chan error, 1)
	return s.request(ctx, quitCmd{reply: reply}, reply)
}

// Send transmits one datagram to the engine.
func (s *Supervisor) Send(ctx context.Context, payload []byte) error {
	reply := make(chan error, 1)
	return s.request(ctx, sendCmd{payload: payload, reply: reply}, reply)
}

// SendMessage encodes an OSC message and sends it.
func (s *Supervisor) SendMessage(ctx context.Context, address string, args ...any) error {
	data, err := osc.Encode(address, args...)
	if err != nil {
		return err
	}
	return s.Send(ctx, data)
}

// Status asks the actor for a fresh snapshot.
func (s *Supervisor) Status(ctx context.Context) (Snapshot, error) {
	reply := make(chan Snapshot, 1)
	if err := s.enqueue(statusCmd{reply: reply}); err != nil {
		return Snapshot{}, err
	}

	select {
	case snap := <-reply:
		return snap, nil
	case <-s.done:
		select {
		case snap := <-reply:
			return snap, nil
		default:
			return Snapshot{}, ErrClosed
		}
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

// Snapshot returns the most recently published state without waiting for
// the actor. Uptime and counters are current; the rest may lag a command
// that is in flight.
func (s *Supervisor) Snapshot() Snapshot {
	snap := *s.published.Load()
	if snap.Status == StatusRunning && !snap.StartedAt.IsZero() {
		snap.Uptime = time.Since(snap.StartedAt)
	}
	snap.Counters = s.counters()
	return snap
}

// Close releases any owned process and socket and stops the actor. It is
// idempotent; commands issued afterwards return ErrClosed.
func (s *Supervisor) Close() error {
	s.closeOnce.Do(func() {
		if err := s.enqueue(closeCmd{}); err != nil {
			return
		}
		<-s.done
	})
	return nil
}

// Done is closed once the actor has stopped.
func (s *Supervisor) Done() <-chan struct{} {
	return s.done
}

func (s *Supervisor) enqueue(msg any) error {
	if err := s.mailbox.Put(msg); err != nil {
		if errors.Is(err, queue.ErrDisposed) {
			return ErrClosed
		}
		return fmt.Errorf("supervisor: mailbox: %w", err)
	}
	select {
	case s.signal <- struct{}{}:
	default:
	}
	return nil
}

func (s *Supervisor) request(ctx context.Context, msg any, reply <-chan error) error {
	if err := s.enqueue(msg); err != nil {
		return err
	}

	select {
	case err := <-reply:
		return err
	case <-s.done:
		select {
		case err := <-reply:
			return err
		default:
			return ErrClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Supervisor) counters() Counters {
	return Counters{
		Boots:                 s.boots.Load(),
		BootFailures:          s.bootFailures.Load(),
		Crashes:               s.crashes.Load(),
		TransportFailures:     s.transportFailures.Load(),
		TransportReplacements: s.transportReplacements.Load(),
		Sent:                  s.sent.Load(),
		SendErrors:            s.sendErrors.Load(),
		Received:              s.received.Load(),
		StaleEvents:           s.staleEvents.Load(),
	}
}

// dispatchInbound is the socket handler for every transport this
// supervisor opens.
func (s *Supervisor) dispatchInbound(payload []byte, from netip.AddrPort) {
	s.received.Add(1)

	s.listenersMu.RLock()
	listeners := s.inboundListeners
	s.listenersMu.RUnlock()

	for _, l := range listeners {
		l(payload, from)
	}
}

func (s *Supervisor) notify(u Update) {
	s.listenersMu.RLock()
	listeners := s.updateListeners
	s.listenersMu.RUnlock()

	for _, l := range listeners {
		l(u)
	}
}

// launchConfig builds the process settings for one boot.
func (s *Supervisor) launchConfig() process.LaunchConfig {
	return process.LaunchConfig{
		Name:             s.cfg.Name,
		Binary:           s.cfg.Binary,
		Args:             s.cfg.Args,
		Env:              s.cfg.Env,
		WorkDir:          s.cfg.WorkDir,
		GracefulTimeout:  s.cfg.GracefulTimeout,
		KillTimeout:      s.cfg.KillTimeout,
		WatchdogInterval: s.cfg.WatchdogInterval,
		Logger:           s.logger,
	}
}
