package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/synthd/internal/infrastructure/config"
)

// Client is a paho connection scoped to one synthd instance.
//
// It owns the instance's retained presence topic: "online" on every
// connect, "offline" on Close, and the broker's last-will "offline" if the
// connection drops. Subscriptions made through the client are replayed
// after each reconnect. All methods are safe for concurrent use.
type Client struct {
	client pahomqtt.Client
	cfg    config.MQTTConfig
	topics Topics

	connected atomic.Bool

	mu            sync.Mutex
	subscriptions map[string]subscription
	onConnect     func()
	onDisconnect  func(err error)
	logger        Logger
}

// Logger is the logging interface the client needs.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

type subscription struct {
	qos     byte
	handler MessageHandler
}

// MessageHandler is called for each received message on a paho goroutine.
// A returned error is logged; it does not affect acknowledgement.
type MessageHandler func(topic string, payload []byte) error

// Connect dials the broker and waits for the session to be established.
func Connect(cfg config.MQTTConfig, topics Topics) (*Client, error) {
	c := &Client{
		cfg:           cfg,
		topics:        topics,
		subscriptions: make(map[string]subscription),
	}

	opts := buildClientOptions(cfg)
	configureLWT(opts, topics, cfg.Broker.ClientID)
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.connectionUp() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.connectionDown(err) })

	c.client = pahomqtt.NewClient(opts)
	if err := await(c.client.Connect(), defaultConnectTimeout, ErrConnectionFailed); err != nil {
		return nil, err
	}
	// The OnConnect handler may still be pending.
	c.connected.Store(true)
	return c, nil
}

// await waits for a paho token, wrapping a timeout or failure in sentinel.
func await(token pahomqtt.Token, timeout time.Duration, sentinel error) error {
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("%w: no broker response after %v", sentinel, timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", sentinel, err)
	}
	return nil
}

func (c *Client) connectionUp() {
	c.connected.Store(true)

	c.mu.Lock()
	for topic, sub := range c.subscriptions {
		c.client.Subscribe(topic, sub.qos, c.wrapHandler(sub.handler))
	}
	callback := c.onConnect
	c.mu.Unlock()

	c.client.Publish(c.topics.Online(), c.QoS(), true, presencePayload(true, c.cfg.Broker.ClientID, ""))

	if callback != nil {
		callback()
	}
}

func (c *Client) connectionDown(err error) {
	c.connected.Store(false)

	c.mu.Lock()
	callback, logger := c.onDisconnect, c.logger
	c.mu.Unlock()

	if logger != nil {
		logger.Warn("MQTT connection lost", "error", err)
	}
	if callback != nil {
		callback(err)
	}
}

// Topics returns the instance topic builder the client was connected with.
func (c *Client) Topics() Topics {
	return c.topics
}

// QoS returns the configured default QoS.
func (c *Client) QoS() byte {
	return byte(c.cfg.QoS)
}

// Close marks the instance offline and disconnects. It is safe on a client
// that never connected.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	if c.IsConnected() {
		offline := presencePayload(false, c.cfg.Broker.ClientID, "graceful_shutdown")
		c.client.Publish(c.topics.Online(), c.QoS(), true, offline).WaitTimeout(defaultPublishTimeout)
	}
	c.client.Disconnect(defaultDisconnectQuiesce)
	c.connected.Store(false)
	return nil
}

// HealthCheck reports ErrNotConnected while the broker connection is down.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected reports whether the broker session is up.
func (c *Client) IsConnected() bool {
	return c.client != nil && c.connected.Load() && c.client.IsConnected()
}

// SetOnConnect sets a callback run after every (re)connect.
func (c *Client) SetOnConnect(callback func()) {
	c.mu.Lock()
	c.onConnect = callback
	c.mu.Unlock()
}

// SetOnDisconnect sets a callback run when the connection is lost.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.mu.Lock()
	c.onDisconnect = callback
	c.mu.Unlock()
}

// SetLogger sets the logger for lost connections and handler failures.
func (c *Client) SetLogger(logger Logger) {
	c.mu.Lock()
	c.logger = logger
	c.mu.Unlock()
}

func (c *Client) currentLogger() Logger {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.logger
}

func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		c.dispatch(handler, msg.Topic(), msg.Payload())
	}
}

// dispatch runs handler, logging a returned error or a panic. A panicking
// handler must not take down paho's router goroutine.
func (c *Client) dispatch(handler MessageHandler, topic string, payload []byte) {
	logger := c.currentLogger()
	defer func() {
		if r := recover(); r != nil && logger != nil {
			logger.Error("MQTT handler panicked", "topic", topic, "panic", r)
		}
	}()

	if err := handler(topic, payload); err != nil && logger != nil {
		logger.Warn("MQTT handler failed", "topic", topic, "error", err)
	}
}
