package influxdb

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/nerrad567/synthd/internal/infrastructure/config"
)

const (
	connectTimeout = 10 * time.Second
	pingTimeout    = 5 * time.Second

	defaultBatchSize     = 100
	defaultFlushInterval = 10 * time.Second
)

// Client writes synthd telemetry to InfluxDB v2.
//
// Points are queued on the library's batching write API, so writes never
// block the caller. Write failures surface asynchronously through
// SetOnError. Writes after Close are dropped.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	instance string

	// mu guards closed. Writers hold it shared so Close cannot tear down
	// the write API under them.
	mu     sync.RWMutex
	closed bool

	// errMu is separate from mu: Close flushes while holding mu, and the
	// flush may need forwardErrors to drain the error channel.
	errMu   sync.Mutex
	onError func(err error)
}

// writeOptions maps config onto the client's batching options, filling in
// defaults for unset values.
func writeOptions(cfg config.InfluxDBConfig) *influxdb2.Options {
	batch := uint(defaultBatchSize)
	if cfg.BatchSize > 0 {
		batch = uint(cfg.BatchSize) // #nosec G115 -- positive
	}
	flush := defaultFlushInterval
	if cfg.FlushInterval > 0 {
		flush = time.Duration(cfg.FlushInterval) * time.Second
	}
	return influxdb2.DefaultOptions().
		SetBatchSize(batch).
		SetFlushInterval(uint(flush.Milliseconds())) // #nosec G115 -- positive
}

// Connect checks the server is healthy and opens a write API for the
// configured org and bucket. Every point is tagged with instance.
// ErrDisabled is returned when cfg.Enabled is false.
func Connect(cfg config.InfluxDBConfig, instance string) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, writeOptions(cfg))

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := ping(ctx, client); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectionFailed, cfg.URL, err)
	}

	c := &Client{
		client:   client,
		writeAPI: client.WriteAPI(cfg.Org, cfg.Bucket),
		instance: instance,
	}
	go c.forwardErrors()
	return c, nil
}

func ping(ctx context.Context, client influxdb2.Client) error {
	ok, err := client.Ping(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("server reports unhealthy")
	}
	return nil
}

// forwardErrors runs until the write API's error channel closes.
func (c *Client) forwardErrors() {
	for err := range c.writeAPI.Errors() {
		c.errMu.Lock()
		fn := c.onError
		c.errMu.Unlock()
		if fn != nil {
			fn(fmt.Errorf("%w: %w", ErrWriteFailed, err))
		}
	}
}

// Close flushes queued points and releases the client. Further calls are
// no-ops.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil || c.closed {
		return nil
	}
	c.closed = true

	c.writeAPI.Flush()
	c.client.Close()
	return nil
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := ping(ctx, c.client); err != nil {
		return fmt.Errorf("influxdb health check: %w", err)
	}
	return nil
}

// IsConnected reports whether the client is open.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.client != nil && !c.closed
}

// SetOnError sets the callback for asynchronous write failures.
func (c *Client) SetOnError(fn func(err error)) {
	c.errMu.Lock()
	c.onError = fn
	c.errMu.Unlock()
}

// Flush blocks until queued points are written.
func (c *Client) Flush() {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.client == nil || c.closed {
		return
	}
	c.writeAPI.Flush()
}
