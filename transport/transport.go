// Package transport carries serialized frames over UDP or TCP. It is
// deliberately protocol-blind: framing and interpretation belong to
// the frame engine and the protocol layers.
package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"
)

// Kind selects a transport implementation.
type Kind string

const (
	KindUDP Kind = "udp"
	KindTCP Kind = "tcp"
)

// Transport is a point-to-point connection for raw frame bytes.
type Transport interface {
	Connect(ctx context.Context, addr string) error
	Disconnect() error
	Send(ctx context.Context, data []byte) error
	Receive(ctx context.Context, timeout time.Duration) ([]byte, error)
	Request(ctx context.Context, data []byte, timeout time.Duration) ([]byte, error)
	IsConnected() bool
}

// New returns a transport of the given kind.
func New(kind Kind) (Transport, error) {
	switch kind {
	case KindUDP:
		return NewUDP(), nil
	case KindTCP:
		return NewTCP(), nil
	}
	return nil, fmt.Errorf("unknown transport kind %q", kind)
}

// maxDatagram bounds a received UDP payload. KNXnet/IP frames are far
// smaller, but a fuzzing peer may not be polite.
const maxDatagram = 65535

// UDP sends datagrams to a fixed peer from an OS-chosen local port.
// Replies from other addresses are accepted; search and discovery
// responses legitimately come from a different source port.
type UDP struct {
	conn   *net.UDPConn
	addr   *net.UDPAddr
	connMu sync.RWMutex
}

var _ Transport = (*UDP)(nil)

// NewUDP creates an unconnected UDP transport.
func NewUDP() *UDP {
	return &UDP{}
}

// Connect binds a local UDP socket and fixes the peer address.
func (t *UDP) Connect(ctx context.Context, addr string) error {
	t.connMu.Lock()
	defer t.connMu.Unlock()

	if t.conn != nil {
		return fmt.Errorf("already connected")
	}

	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return fmt.Errorf("resolve UDP address: %w", err)
	}

	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: 0})
	if err != nil {
		return fmt.Errorf("listen UDP: %w", err)
	}

	t.conn = conn
	t.addr = udpAddr

	return nil
}

// Disconnect closes the socket.
func (t *UDP) Disconnect() error {
	t.connMu.Lock()
	defer t.connMu.Unlock()

	if t.conn == nil {
		return nil
	}

	err := t.conn.Close()
	t.conn = nil
	t.addr = nil

	return err
}

// Send transmits one datagram to the connected peer.
func (t *UDP) Send(ctx context.Context, data []byte) error {
	t.connMu.RLock()
	defer t.connMu.RUnlock()

	if t.conn == nil || t.addr == nil {
		return fmt.Errorf("not connected")
	}

	if deadline, ok := ctx.Deadline(); ok {
		if err := t.conn.SetWriteDeadline(deadline); err != nil {
			return fmt.Errorf("set write deadline: %w", err)
		}
	}

	_, err := t.conn.WriteToUDP(data, t.addr)
	return err
}

// Receive waits for one datagram and returns its payload.
func (t *UDP) Receive(ctx context.Context, timeout time.Duration) ([]byte, error) {
	t.connMu.RLock()
	defer t.connMu.RUnlock()

	if t.conn == nil {
		return nil, fmt.Errorf("not connected")
	}

	deadline := time.Now().Add(timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := t.conn.SetReadDeadline(deadline); err != nil {
		return nil, fmt.Errorf("set read deadline: %w", err)
	}

	buffer := make([]byte, maxDatagram)
	n, _, err := t.conn.ReadFromUDP(buffer)
	if err != nil {
		return nil, fmt.Errorf("read UDP: %w", err)
	}

	return buffer[:n], nil
}

// Request sends one datagram and waits for the next reply.
func (t *UDP) Request(ctx context.Context, data []byte, timeout time.Duration) ([]byte, error) {
	if err := t.Send(ctx, data); err != nil {
		return nil, err
	}
	return t.Receive(ctx, timeout)
}

// IsConnected reports whether the socket is open.
func (t *UDP) IsConnected() bool {
	t.connMu.RLock()
	defer t.connMu.RUnlock()
	return t.conn != nil
}

// LocalAddr returns the bound local address, or nil when closed.
// Tunneling requests embed it as the control/data endpoint.
func (t *UDP) LocalAddr() *net.UDPAddr {
	t.connMu.RLock()
	defer t.connMu.RUnlock()
	if t.conn == nil {
		return nil
	}
	addr, _ := t.conn.LocalAddr().(*net.UDPAddr)
	return addr
}

// TCP is a stream transport. Receive returns whatever one read
// yields; reassembling frames split across reads is the caller's
// concern.
type TCP struct {
	conn   *net.TCPConn
	addr   string
	connMu sync.RWMutex
}

var _ Transport = (*TCP)(nil)

// NewTCP creates an unconnected TCP transport.
func NewTCP() *TCP {
	return &TCP{}
}

// Connect establishes a TCP connection.
func (t *TCP) Connect(ctx context.Context, addr string) error {
	t.connMu.Lock()
	defer t.connMu.Unlock()

	if t.conn != nil {
		return fmt.Errorf("already connected")
	}

	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return fmt.Errorf("resolve TCP address: %w", err)
	}

	dialer := net.Dialer{
		Timeout: 5 * time.Second,
	}

	conn, err := dialer.DialContext(ctx, "tcp", tcpAddr.String())
	if err != nil {
		return fmt.Errorf("dial TCP: %w", err)
	}

	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		conn.Close()
		return fmt.Errorf("not a TCP connection")
	}

	if err := tcpConn.SetKeepAlive(true); err != nil {
		tcpConn.Close()
		return fmt.Errorf("set keep-alive: %w", err)
	}

	t.conn = tcpConn
	t.addr = addr

	return nil
}

// Disconnect closes the TCP connection.
func (t *TCP) Disconnect() error {
	t.connMu.Lock()
	defer t.connMu.Unlock()

	if t.conn == nil {
		return nil
	}

	err := t.conn.Close()
	t.conn = nil
	t.addr = ""

	return err
}

// Send writes data to the stream.
func (t *TCP) Send(ctx context.Context, data []byte) error {
	t.connMu.RLock()
	defer t.connMu.RUnlock()

	if t.conn == nil {
		return fmt.Errorf("not connected")
	}

	if deadline, ok := ctx.Deadline(); ok {
		if err := t.conn.SetWriteDeadline(deadline); err != nil {
			return fmt.Errorf("set write deadline: %w", err)
		}
	}

	_, err := t.conn.Write(data)
	return err
}

// Receive reads once from the stream.
func (t *TCP) Receive(ctx context.Context, timeout time.Duration) ([]byte, error) {
	t.connMu.RLock()
	defer t.connMu.RUnlock()

	if t.conn == nil {
		return nil, fmt.Errorf("not connected")
	}

	deadline := time.Now().Add(timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := t.conn.SetReadDeadline(deadline); err != nil {
		return nil, fmt.Errorf("set read deadline: %w", err)
	}

	buffer := make([]byte, maxDatagram)
	n, err := t.conn.Read(buffer)
	if err != nil {
		return nil, fmt.Errorf("read TCP: %w", err)
	}

	return buffer[:n], nil
}

// Request writes data and returns the next read.
func (t *TCP) Request(ctx context.Context, data []byte, timeout time.Duration) ([]byte, error) {
	if err := t.Send(ctx, data); err != nil {
		return nil, err
	}
	return t.Receive(ctx, timeout)
}

// IsConnected reports whether the connection is open.
func (t *TCP) IsConnected() bool {
	t.connMu.RLock()
	defer t.connMu.RUnlock()
	return t.conn != nil
}
