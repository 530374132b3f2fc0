package supervisor

import (
	"time"

	"github.com/nerrad567/synthd/internal/process"
	"github.com/nerrad567/synthd/internal/transport"
)

// Process is the running engine as seen by the supervisor.
// *process.Handle implements it.
type Process interface {
	Events() <-chan process.Event
	Terminate() error
	PID() int
	Uptime() time.Duration
}

// Launcher starts engine processes.
type Launcher interface {
	Launch(cfg process.LaunchConfig) (Process, error)
}

// Transport is the datagram socket as seen by the supervisor.
// *transport.UDP implements it.
type Transport interface {
	Send(host string, port int, payload []byte) error
	Close() error
	Failed() <-chan error
	Done() <-chan struct{}
	LocalPort() int
}

// TransportOpener opens a fresh socket that delivers inbound datagrams to
// handler.
type TransportOpener func(handler transport.InboundHandler) (Transport, error)

// ProcessLauncher launches real OS processes via process.Launch.
type ProcessLauncher struct{}

// Launch implements Launcher.
func (ProcessLauncher) Launch(cfg process.LaunchConfig) (Process, error) {
	h, err := process.Launch(cfg)
	if err != nil {
		return nil, err
	}
	return h, nil
}

// UDPOpener returns a TransportOpener binding bindAddress with an
// OS-assigned port.
func UDPOpener(bindAddress string, logger Logger) TransportOpener {
	return func(handler transport.InboundHandler) (Transport, error) {
		u, err := transport.Open(transport.Options{
			BindAddress: bindAddress,
			Handler:     handler,
			Logger:      logger,
		})
		if err != nil {
			return nil, err
		}
		return u, nil
	}
}
