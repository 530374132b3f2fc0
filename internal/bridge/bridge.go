package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/synthd/internal/infrastructure/mqtt"
	"github.com/nerrad567/synthd/internal/osc"
	"github.com/nerrad567/synthd/internal/supervisor"
)

// Bridge operation constants.
const (
	// DefaultQueueSize is the outbound queue length when none is given.
	DefaultQueueSize = 256

	// DefaultCommandTimeout bounds one boot, quit or send.
	DefaultCommandTimeout = 10 * time.Second
)

// Supervisor is the part of supervisor.Supervisor the bridge drives.
type Supervisor interface {
	Boot(ctx context.Context) error
	Quit(ctx context.Context) error
	SendMessage(ctx context.Context, address string, args ...any) error
	OnUpdate(l supervisor.UpdateListener)
	OnInbound(l supervisor.InboundListener)
}

// Broker is the part of mqtt.Client the bridge uses.
type Broker interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// Logger is the logging interface for the bridge.
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

// Options configures a Bridge.
type Options struct {
	Supervisor Supervisor
	Broker     Broker
	Topics     mqtt.Topics

	// QoS is used for every publish and subscription.
	QoS byte

	// QueueSize bounds outbound messages waiting for the broker.
	// Default: DefaultQueueSize
	QueueSize int

	// CommandTimeout bounds each remote command.
	// Default: DefaultCommandTimeout
	CommandTimeout time.Duration

	Logger Logger
}

// Result is published on the command's result topic after it runs.
type Result struct {
	Command   string    `json:"command"`
	RequestID string    `json:"request_id,omitempty"`
	OK        bool      `json:"ok"`
	Error     string    `json:"error,omitempty"`
	Time      time.Time `json:"time"`
}

// Reply is published for every decodable datagram from the engine.
type Reply struct {
	From    string      `json:"from"`
	Message osc.Message `json:"message"`
	Time    time.Time   `json:"time"`
}

// commandEnvelope carries the optional correlation id of any command.
type commandEnvelope struct {
	RequestID string `json:"request_id"`
}

type outbound struct {
	topic    string
	payload  []byte
	retained bool
}

// Bridge connects a supervisor to an MQTT broker.
//
// Inbound: boot, quit and send commands on the instance's command topics.
// Outbound: retained status on every update, one reply per engine datagram,
// and a result per command.
//
// Supervisor listeners must not block, so every publish goes through a
// bounded queue drained by one goroutine. When the queue is full the
// message is dropped and counted. Commands run on their own goroutines
// so a slow boot or quit never stalls the MQTT client's delivery.
type Bridge struct {
	sup    Supervisor
	broker Broker
	topics mqtt.Topics
	qos    byte
	cmdTTL time.Duration
	logger Logger

	// mu guards the lifecycle flags. closing stops new commands; closed
	// is set once in-flight commands are done and the queue is shut.
	mu       sync.RWMutex
	started  bool
	closing  bool
	closed   bool
	queue    chan outbound
	done     chan struct{}
	inflight sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc

	published atomic.Uint64
	dropped   atomic.Uint64
	failed    atomic.Uint64
	commands  atomic.Uint64
	undecoded atomic.Uint64
}

// New creates a bridge. Nothing is subscribed or published until Start.
func New(opts Options) (*Bridge, error) {
	if opts.Supervisor == nil {
		return nil, errors.New("bridge: supervisor is required")
	}
	if opts.Broker == nil {
		return nil, errors.New("bridge: broker is required")
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = DefaultCommandTimeout
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	if opts.Topics.Prefix == "" {
		opts.Topics = mqtt.NewTopics("", opts.Topics.Instance)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Bridge{
		sup:    opts.Supervisor,
		broker: opts.Broker,
		topics: opts.Topics,
		qos:    opts.QoS,
		cmdTTL: opts.CommandTimeout,
		logger: opts.Logger,
		queue:  make(chan outbound, opts.QueueSize),
		done:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Start subscribes to the command topics and registers the supervisor
// listeners. It may be called once.
func (b *Bridge) Start() error {
	b.mu.Lock()
	if b.closing {
		b.mu.Unlock()
		return errors.New("bridge: closed")
	}
	if b.started {
		b.mu.Unlock()
		return errors.New("bridge: already started")
	}
	b.started = true
	b.mu.Unlock()

	go b.run()

	if err := b.broker.Subscribe(b.topics.AllCommands(), b.qos, b.handleCommand); err != nil {
		return fmt.Errorf("bridge: subscribing to commands: %w", err)
	}

	b.sup.OnUpdate(b.publishUpdate)
	b.sup.OnInbound(b.publishInbound)

	b.logger.Info("mqtt bridge started", "commands", b.topics.AllCommands())
	return nil
}

// Close unsubscribes, cancels running commands and waits for their
// results, publishes what is queued and stops the publisher. Listeners
// stay registered with the supervisor but become no-ops.
func (b *Bridge) Close() error {
	b.mu.Lock()
	if b.closing {
		b.mu.Unlock()
		return nil
	}
	b.closing = true
	started := b.started
	b.mu.Unlock()

	var err error
	if started {
		if uerr := b.broker.Unsubscribe(b.topics.AllCommands()); uerr != nil && !errors.Is(uerr, mqtt.ErrNotConnected) {
			err = fmt.Errorf("bridge: unsubscribing: %w", uerr)
		}
	}

	b.cancel()
	b.inflight.Wait()

	b.mu.Lock()
	b.closed = true
	close(b.queue)
	b.mu.Unlock()

	if started {
		<-b.done
	}
	return err
}

// Stats are cumulative bridge totals.
type Stats struct {
	Published uint64 `json:"published"`
	Dropped   uint64 `json:"dropped"`
	Failed    uint64 `json:"failed"`
	Commands  uint64 `json:"commands"`
	Undecoded uint64 `json:"undecoded"`
}

// Stats returns the bridge's totals.
func (b *Bridge) Stats() Stats {
	return Stats{
		Published: b.published.Load(),
		Dropped:   b.dropped.Load(),
		Failed:    b.failed.Load(),
		Commands:  b.commands.Load(),
		Undecoded: b.undecoded.Load(),
	}
}

// handleCommand runs on a paho goroutine. It validates the topic and
// hands the command to its own goroutine; the outcome is published on the
// result topic.
func (b *Bridge) handleCommand(topic string, payload []byte) error {
	name, ok := b.topics.CommandName(topic)
	if !ok {
		return fmt.Errorf("bridge: unexpected topic %q", topic)
	}

	b.mu.RLock()
	if b.closing {
		b.mu.RUnlock()
		b.logger.Debug("ignoring command after close", "command", name)
		return nil
	}
	b.inflight.Add(1)
	b.mu.RUnlock()

	b.commands.Add(1)
	go func() {
		defer b.inflight.Done()
		b.runCommand(name, payload)
	}()
	return nil
}

func (b *Bridge) runCommand(name string, payload []byte) {
	var env commandEnvelope
	if len(payload) > 0 {
		// Boot and quit accept any payload; send reports its own parse error.
		_ = json.Unmarshal(payload, &env)
	}

	ctx, cancel := context.WithTimeout(b.ctx, b.cmdTTL)
	defer cancel()

	var err error
	switch name {
	case mqtt.CommandBoot:
		err = b.sup.Boot(ctx)
	case mqtt.CommandQuit:
		err = b.sup.Quit(ctx)
	case mqtt.CommandSend:
		err = b.send(ctx, payload)
	default:
		err = fmt.Errorf("unknown command %q", name)
	}

	result := Result{Command: name, RequestID: env.RequestID, OK: err == nil, Time: time.Now().UTC()}
	if err != nil {
		result.Error = err.Error()
		b.logger.Warn("remote command failed", "command", name, "request_id", env.RequestID, "error", err)
	} else {
		b.logger.Debug("remote command", "command", name, "request_id", env.RequestID)
	}
	b.enqueueJSON(b.topics.Result(name), result, false)
}

func (b *Bridge) send(ctx context.Context, payload []byte) error {
	var msg osc.Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("parsing message: %w", err)
	}
	return b.sup.SendMessage(ctx, msg.Address, msg.Args...)
}

// publishUpdate runs on the supervisor's actor goroutine.
func (b *Bridge) publishUpdate(u supervisor.Update) {
	b.enqueueJSON(b.topics.Status(), u, true)
}

// publishInbound runs on the socket reader goroutine.
func (b *Bridge) publishInbound(payload []byte, from netip.AddrPort) {
	msg, err := osc.Decode(payload)
	if err != nil {
		b.undecoded.Add(1)
		b.logger.Debug("dropping undecodable datagram", "from", from.String(), "size", len(payload), "error", err)
		return
	}
	b.enqueueJSON(b.topics.Reply(), Reply{From: from.String(), Message: msg, Time: time.Now().UTC()}, false)
}

func (b *Bridge) enqueueJSON(topic string, v any, retained bool) {
	payload, err := json.Marshal(v)
	if err != nil {
		b.failed.Add(1)
		b.logger.Error("marshalling mqtt payload", "topic", topic, "error", err)
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	select {
	case b.queue <- outbound{topic: topic, payload: payload, retained: retained}:
	default:
		b.dropped.Add(1)
		b.logger.Warn("mqtt publish queue full, dropping message", "topic", topic)
	}
}

func (b *Bridge) run() {
	defer close(b.done)

	for m := range b.queue {
		if err := b.broker.Publish(m.topic, m.payload, b.qos, m.retained); err != nil {
			b.failed.Add(1)
			b.logger.Warn("mqtt publish failed", "topic", m.topic, "error", err)
			continue
		}
		b.published.Add(1)
	}
}
