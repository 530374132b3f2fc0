package transport

import (
	"bytes"
	"errors"
	"net/netip"
	"testing"
	"time"
)

func openLoopback(t *testing.T, handler InboundHandler) *UDP {
	t.Helper()
	u, err := Open(Options{BindAddress: "127.0.0.1", Handler: handler})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = u.Close() })
	return u
}

func TestOpen_BindsEphemeralPort(t *testing.T) {
	a := openLoopback(t, nil)
	b := openLoopback(t, nil)

	if a.LocalPort() == 0 {
		t.Error("LocalPort() = 0, want an OS-assigned port")
	}
	if a.LocalPort() == b.LocalPort() {
		t.Errorf("two transports share local port %d", a.LocalPort())
	}
}

func TestOpen_DefaultBindAddress(t *testing.T) {
	u, err := Open(Options{})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer u.Close()

	if u.network != "udp4" {
		t.Errorf("network = %q, want udp4 for %s", u.network, DefaultBindAddress)
	}
}

func TestOpen_BadBindAddress(t *testing.T) {
	_, err := Open(Options{BindAddress: "203.0.113.77"})
	if !errors.Is(err, ErrOpenFailed) {
		t.Errorf("Open() error = %v, want ErrOpenFailed", err)
	}
}

func TestSend_DeliversToHandler(t *testing.T) {
	type datagram struct {
		payload []byte
		from    netip.AddrPort
	}
	got := make(chan datagram, 1)

	receiver := openLoopback(t, func(payload []byte, from netip.AddrPort) {
		got <- datagram{payload: payload, from: from}
	})
	sender := openLoopback(t, nil)

	want := []byte("/status\x00")
	if err := sender.Send("127.0.0.1", receiver.LocalPort(), want); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	select {
	case d := <-got:
		if !bytes.Equal(d.payload, want) {
			t.Errorf("payload = %q, want %q", d.payload, want)
		}
		if int(d.from.Port()) != sender.LocalPort() {
			t.Errorf("from port = %d, want %d", d.from.Port(), sender.LocalPort())
		}
	case <-time.After(2 * time.Second):
		t.Fatal("datagram not received")
	}

	if s := sender.Stats(); s.Sent != 1 {
		t.Errorf("sender Stats().Sent = %d, want 1", s.Sent)
	}
}

func TestSend_InvalidDestination(t *testing.T) {
	u := openLoopback(t, nil)

	tests := []struct {
		name    string
		host    string
		port    int
		wantErr error
	}{
		{name: "empty host", host: "", port: 57110, wantErr: ErrInvalidDestination},
		{name: "port zero", host: "127.0.0.1", port: 0, wantErr: ErrInvalidDestination},
		{name: "port too large", host: "127.0.0.1", port: 65536, wantErr: ErrInvalidDestination},
		{name: "unresolvable", host: "no-such-host.invalid", port: 57110, wantErr: ErrResolveFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := u.Send(tt.host, tt.port, []byte("/x\x00\x00"))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Send() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	// Errors leave the socket usable.
	select {
	case err := <-u.Failed():
		t.Errorf("Failed() fired after send errors: %v", err)
	default:
	}
	if err := u.Send("127.0.0.1", u.LocalPort(), []byte("/x\x00\x00")); err != nil {
		t.Errorf("Send() after errors = %v", err)
	}
}

func TestClose_Idempotent(t *testing.T) {
	u, err := Open(Options{BindAddress: "127.0.0.1"})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	if err := u.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := u.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}

	select {
	case <-u.Done():
	default:
		t.Error("Done() not closed after Close")
	}
	select {
	case err := <-u.Failed():
		t.Errorf("Failed() fired after Close: %v", err)
	default:
	}

	if err := u.Send("127.0.0.1", 57110, []byte("/x\x00\x00")); !errors.Is(err, ErrClosed) {
		t.Errorf("Send() after Close error = %v, want ErrClosed", err)
	}
}

func TestClose_NilTransport(t *testing.T) {
	var u *UDP
	if err := u.Close(); err != nil {
		t.Errorf("nil Close() error = %v", err)
	}
	if err := u.Send("127.0.0.1", 57110, nil); !errors.Is(err, ErrClosed) {
		t.Errorf("nil Send() error = %v, want ErrClosed", err)
	}
	if port := u.LocalPort(); port != 0 {
		t.Errorf("nil LocalPort() = %d", port)
	}
}

func TestFailed_SocketDiesWithoutClose(t *testing.T) {
	u := openLoopback(t, nil)

	// Pull the socket out from under the reader.
	_ = u.conn.Close()

	select {
	case err := <-u.Failed():
		if !errors.Is(err, ErrSocketFailed) {
			t.Errorf("Failed() error = %v, want ErrSocketFailed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Failed() did not fire")
	}

	select {
	case <-u.Done():
	case <-time.After(time.Second):
		t.Fatal("Done() not closed after failure")
	}

	if err := u.Close(); err != nil {
		t.Errorf("Close() after failure error = %v", err)
	}
}
