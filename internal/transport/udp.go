// Package transport provides the datagram socket synthd uses to talk OSC to
// the audio engine.
//
// A UDP transport binds an ephemeral local port, delivers every inbound
// datagram to a handler from its own reader goroutine, and reports once on
// Failed if the socket dies without being closed. Replacing a failed
// transport is the owner's job.
package transport

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"sync"
	"sync/atomic"
)

// DefaultBindAddress is the local address bound when Options leaves it empty.
const DefaultBindAddress = "0.0.0.0"

// maxDatagramSize is the largest payload a UDP datagram can carry.
const maxDatagramSize = 65535

var (
	// ErrOpenFailed means the socket could not be bound.
	ErrOpenFailed = errors.New("transport: open failed")

	// ErrInvalidDestination means the host is empty or the port is out of range.
	ErrInvalidDestination = errors.New("transport: invalid destination")

	// ErrResolveFailed means the destination host could not be resolved.
	ErrResolveFailed = errors.New("transport: resolve failed")

	// ErrSendFailed means the OS rejected the write.
	ErrSendFailed = errors.New("transport: send failed")

	// ErrSocketFailed is delivered on Failed when the socket dies on its own.
	ErrSocketFailed = errors.New("transport: socket failed")

	// ErrClosed means the transport has been closed.
	ErrClosed = errors.New("transport: closed")
)

// InboundHandler receives each datagram read from the socket. payload is
// owned by the handler. It runs on the reader goroutine, so a slow handler
// delays subsequent reads.
type InboundHandler func(payload []byte, from netip.AddrPort)

// Logger defines the logging interface for the transport.
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

// Options configures Open.
type Options struct {
	// BindAddress is the local IP to bind. The port is always chosen by the OS.
	BindAddress string

	// Handler receives inbound datagrams. If nil they are read and discarded.
	Handler InboundHandler

	// Logger receives lifecycle logs. If nil, nothing is logged.
	Logger Logger
}

// UDP is one open datagram socket.
type UDP struct {
	conn      *net.UDPConn
	network   string
	localPort int
	handler   InboundHandler
	logger    Logger

	failed chan error
	done   chan struct{}

	closing   atomic.Bool
	closeOnce sync.Once

	sent     atomic.Uint64
	received atomic.Uint64
}

// Open binds a UDP socket on BindAddress with an OS-assigned port and starts
// the reader goroutine.
func Open(opts Options) (*UDP, error) {
	bind := opts.BindAddress
	if bind == "" {
		bind = DefaultBindAddress
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}

	network := "udp"
	if ip, err := netip.ParseAddr(bind); err == nil {
		if ip.Is4() {
			network = "udp4"
		} else {
			network = "udp6"
		}
	}

	laddr, err := net.ResolveUDPAddr(network, net.JoinHostPort(bind, "0"))
	if err != nil {
		return nil, fmt.Errorf("%w: resolving %s: %w", ErrOpenFailed, bind, err)
	}
	conn, err := net.ListenUDP(network, laddr)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOpenFailed, err)
	}

	u := &UDP{
		conn:      conn,
		network:   network,
		localPort: conn.LocalAddr().(*net.UDPAddr).Port,
		handler:   opts.Handler,
		logger:    opts.Logger,
		failed:    make(chan error, 1),
		done:      make(chan struct{}),
	}

	u.logger.Debug("transport opened", "local", conn.LocalAddr().String())

	go u.readLoop()
	return u, nil
}

// LocalPort returns the OS-assigned local port, or 0 for a nil transport.
func (u *UDP) LocalPort() int {
	if u == nil {
		return 0
	}
	return u.localPort
}

// Send writes payload as one datagram to host:port.
//
// Errors are returned to the caller and leave the socket open.
func (u *UDP) Send(host string, port int, payload []byte) error {
	if u == nil || u.closing.Load() {
		return ErrClosed
	}
	if host == "" {
		return fmt.Errorf("%w: empty host", ErrInvalidDestination)
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidDestination, port)
	}
	if len(payload) > maxDatagramSize {
		return fmt.Errorf("%w: payload of %d bytes exceeds a datagram", ErrSendFailed, len(payload))
	}

	raddr, err := net.ResolveUDPAddr(u.network, net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrResolveFailed, host, err)
	}

	if _, err := u.conn.WriteToUDP(payload, raddr); err != nil {
		if u.closing.Load() {
			return ErrClosed
		}
		return fmt.Errorf("%w: %w", ErrSendFailed, err)
	}

	u.sent.Add(1)
	return nil
}

// Close shuts the socket. It is idempotent and safe on a nil transport.
// Close never delivers on Failed.
func (u *UDP) Close() error {
	if u == nil {
		return nil
	}

	var err error
	u.closeOnce.Do(func() {
		u.closing.Store(true)
		if cerr := u.conn.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = cerr
		}
		<-u.done
		u.logger.Debug("transport closed", "local_port", u.LocalPort())
	})
	return err
}

// Failed receives exactly one error if the socket dies without Close.
func (u *UDP) Failed() <-chan error {
	return u.failed
}

// Done is closed when the reader goroutine has exited, whether through
// Close or failure.
func (u *UDP) Done() <-chan struct{} {
	return u.done
}

// Stats reports datagram counters.
type Stats struct {
	LocalPort int    `json:"local_port"`
	Sent      uint64 `json:"sent"`
	Received  uint64 `json:"received"`
}

// Stats returns current counters.
func (u *UDP) Stats() Stats {
	if u == nil {
		return Stats{}
	}
	return Stats{
		LocalPort: u.LocalPort(),
		Sent:      u.sent.Load(),
		Received:  u.received.Load(),
	}
}

func (u *UDP) readLoop() {
	defer close(u.done)

	buf := make([]byte, maxDatagramSize)
	for {
		n, from, err := u.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			if u.closing.Load() {
				return
			}
			u.logger.Warn("transport read failed", "local_port", u.LocalPort(), "error", err)
			_ = u.conn.Close()
			u.failed <- fmt.Errorf("%w: %w", ErrSocketFailed, err)
			return
		}

		u.received.Add(1)
		if u.handler == nil {
			continue
		}
		payload := make([]byte, n)
		copy(payload, buf[:n])
		u.handler(payload, from)
	}
}
