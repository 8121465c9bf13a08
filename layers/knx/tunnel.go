package knx

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/jcalloway/framecraft/frame"
	"github.com/jcalloway/framecraft/transport"
)

// DefaultTimeout bounds each receive while talking to a gateway.
const DefaultTimeout = 3 * time.Second

// Tunnel manages a KNXnet/IP tunneling connection to a gateway. The
// gateway assigns a communication channel on connect; every request on
// the channel carries a sequence counter the gateway echoes in acks.
type Tunnel struct {
	tr      *transport.UDP
	timeout time.Duration

	mu        sync.Mutex
	connected bool
	addr      string
	channel   byte
	seq       byte
	source    string // individual address granted by the gateway
}

// NewTunnel returns an unconnected tunnel. A zero timeout selects
// DefaultTimeout.
func NewTunnel(timeout time.Duration) *Tunnel {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Tunnel{tr: transport.NewUDP(), timeout: timeout}
}

// Channel returns the communication channel id, zero before Connect.
func (t *Tunnel) Channel() byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.channel
}

// IndividualAddress returns the KNX individual address the gateway
// assigned to this connection, "" before Connect.
func (t *Tunnel) IndividualAddress() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.source
}

// IsConnected reports whether a channel is open.
func (t *Tunnel) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// Connect opens a tunneling connection to the gateway at addr
// ("host:port"). On success the gateway's channel id and the granted
// individual address are stored on the tunnel.
func (t *Tunnel) Connect(ctx context.Context, addr string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.connected {
		return fmt.Errorf("knx: already connected")
	}
	if err := t.tr.Connect(ctx, addr); err != nil {
		return err
	}
	t.addr = addr

	req, err := ConnectRequestTunneling(t.endpointLocked())
	if err != nil {
		t.tr.Disconnect()
		return err
	}
	resp, err := t.exchangeLocked(ctx, req)
	if err != nil {
		t.tr.Disconnect()
		return err
	}
	if typ := resp.Body().Type(); typ != TypeConnectResponse {
		t.tr.Disconnect()
		return fmt.Errorf("knx: expected connect response, got %s", typ)
	}
	status, err := resp.Field("status")
	if err != nil {
		t.tr.Disconnect()
		return err
	}
	if status.Int() != 0 {
		t.tr.Disconnect()
		return fmt.Errorf("knx: connect refused: status 0x%02x", status.Int())
	}
	channel, err := resp.Field("communication channel id")
	if err != nil {
		t.tr.Disconnect()
		return err
	}

	t.channel = byte(channel.Int())
	t.seq = 0
	t.source = "0.0.0"
	// The CRD carries our bus address for tunneling connections only.
	if f, err := resp.Field("knx individual address"); err == nil {
		t.source = f.IndividualAddress()
	}
	t.connected = true
	return nil
}

// Disconnect closes the channel and the socket. The disconnect
// request is best effort: the socket closes even if the gateway never
// answers.
func (t *Tunnel) Disconnect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.connected {
		return nil
	}
	if req, err := DisconnectRequest(t.channel, t.endpointLocked()); err == nil {
		_, _ = t.exchangeLocked(ctx, req) // ignore errors on disconnect
	}
	err := t.tr.Disconnect()
	t.connected = false
	t.channel = 0
	t.source = ""
	return err
}

// GroupWrite writes a 6-bit value to a group address through the open
// tunnel. The gateway must ack our request; its L_Data confirmation
// is acked back when it arrives but a silent gateway is tolerated.
func (t *Tunnel) GroupWrite(ctx context.Context, group string, value byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.connected {
		return fmt.Errorf("knx: not connected")
	}
	cemi, err := GroupWrite(group, value, t.source)
	if err != nil {
		return err
	}
	req, err := TunnelingRequest(t.channel, t.seq, cemi)
	if err != nil {
		return err
	}
	if err := t.tr.Send(ctx, req.Bytes()); err != nil {
		return err
	}

	acked := false
	for i := 0; i < 2; i++ {
		resp, err := t.receiveLocked(ctx)
		if err != nil {
			if !acked {
				return fmt.Errorf("knx: no ack for sequence %d: %w", t.seq, err)
			}
			break
		}
		switch resp.Body().Type() {
		case TypeTunnelingAck:
			acked = true
		case TypeTunnelingRequest:
			// Gateway confirmation. Ack it with its own counter.
			t.ackLocked(ctx, resp)
		}
	}
	if !acked {
		return fmt.Errorf("knx: no ack for sequence %d", t.seq)
	}
	t.seq++
	return nil
}

// Send transmits an already built frame on the tunnel socket without
// waiting for an answer.
func (t *Tunnel) Send(ctx context.Context, fr *frame.Frame) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		return fmt.Errorf("knx: not connected")
	}
	return t.tr.Send(ctx, fr.Bytes())
}

// Exchange transmits a frame and parses the first answer.
func (t *Tunnel) Exchange(ctx context.Context, fr *frame.Frame) (*frame.Frame, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		return nil, fmt.Errorf("knx: not connected")
	}
	return t.exchangeLocked(ctx, fr)
}

// ConnectionState probes the gateway with the channel heartbeat and
// returns an error unless it reports status 0.
func (t *Tunnel) ConnectionState(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.connected {
		return fmt.Errorf("knx: not connected")
	}
	req, err := ConnectionStateRequest(t.channel, t.endpointLocked())
	if err != nil {
		return err
	}
	resp, err := t.exchangeLocked(ctx, req)
	if err != nil {
		return err
	}
	if typ := resp.Body().Type(); typ != TypeConnectionStateResponse {
		return fmt.Errorf("knx: expected connectionstate response, got %s", typ)
	}
	status, err := resp.Field("status")
	if err != nil {
		return err
	}
	if status.Int() != 0 {
		return fmt.Errorf("knx: channel %d unhealthy: status 0x%02x", t.channel, status.Int())
	}
	return nil
}

// endpointLocked is the address advertised in HPAIs for this tunnel.
func (t *Tunnel) endpointLocked() *net.UDPAddr {
	return localEndpoint(t.addr, t.tr.LocalAddr())
}

func (t *Tunnel) exchangeLocked(ctx context.Context, fr *frame.Frame) (*frame.Frame, error) {
	if err := t.tr.Send(ctx, fr.Bytes()); err != nil {
		return nil, err
	}
	return t.receiveLocked(ctx)
}

func (t *Tunnel) receiveLocked(ctx context.Context) (*frame.Frame, error) {
	data, err := t.tr.Receive(ctx, t.timeout)
	if err != nil {
		return nil, err
	}
	sp, err := Spec()
	if err != nil {
		return nil, err
	}
	return frame.Parse(sp, data)
}

// ackLocked answers a gateway-initiated tunneling request, echoing its
// sequence counter.
func (t *Tunnel) ackLocked(ctx context.Context, req *frame.Frame) {
	seq, err := req.Field("sequence counter")
	if err != nil {
		return
	}
	ack, err := TunnelingAck(t.channel, byte(seq.Int()))
	if err != nil {
		return
	}
	_ = t.tr.Send(ctx, ack.Bytes())
}
