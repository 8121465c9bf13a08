package knx

import (
	"fmt"
	"net"

	"github.com/jcalloway/framecraft/codec"
	"github.com/jcalloway/framecraft/frame"
)

// CEMI is a set of field overrides describing the protocol-independent
// KNX message carried inside tunneling, configuration and routing
// services. Keys are field names from the embedded specification.
type CEMI map[string]any

// GroupWrite builds an L_Data.req cEMI writing a 6-bit value to a KNX
// group address. The value is packed into the APCI octets, so only
// small datapoints (switches, dimming steps) fit. Source is the
// individual address to claim, "" for 0.0.0.
func GroupWrite(group string, value byte, source string) (CEMI, error) {
	dst, ok := codec.FromGroupAddress(group)
	if !ok {
		return nil, fmt.Errorf("knx: invalid group address %q", group)
	}
	src, err := sourceAddress(source)
	if err != nil {
		return nil, err
	}
	return CEMI{
		"message code":        codec.FromInt(MessageLDataReq, 1),
		"source address":      src,
		"destination address": dst,
		"tpci apci":           codec.FromInt(0x0080|int(value&0x3f), 2),
	}, nil
}

// DeviceDescriptorRead builds an L_Data.req cEMI asking an individual
// address for its device descriptor. The request rides a numbered
// control connection, so the transport sequence number goes into the
// TPCI octet.
func DeviceDescriptorRead(target string, seq byte, source string) (CEMI, error) {
	dst, ok := codec.FromIndividualAddress(target)
	if !ok {
		return nil, fmt.Errorf("knx: invalid individual address %q", target)
	}
	src, err := sourceAddress(source)
	if err != nil {
		return nil, err
	}
	return CEMI{
		"message code":        codec.FromInt(MessageLDataReq, 1),
		"control field 1":     codec.FromInt(0xb0, 1), // system priority
		"control field 2":     codec.FromInt(0x60, 1), // individual address
		"source address":      src,
		"destination address": dst,
		"tpci apci":           codec.FromInt(0x4300|int(seq&0x0f)<<10, 2),
	}, nil
}

// PropertyRead builds an M_PropRead.req cEMI for a device management
// connection. Object instance 1 and a single element at start index 0
// come from the specification defaults.
func PropertyRead(objectType, propertyID int) CEMI {
	return CEMI{
		"message code": codec.FromInt(MessagePropReadReq, 1),
		"object type":  codec.FromInt(objectType, 2),
		"property id":  codec.FromInt(propertyID, 1),
	}
}

func sourceAddress(s string) ([]byte, error) {
	if s == "" {
		s = "0.0.0"
	}
	b, ok := codec.FromIndividualAddress(s)
	if !ok {
		return nil, fmt.Errorf("knx: invalid individual address %q", s)
	}
	return b, nil
}

// NewFrame builds a frame of the named service type from the embedded
// specification, with field overrides applied. The named builders
// below cover the common messages; NewFrame is the escape hatch for
// everything else.
func NewFrame(service string, overrides map[string]any) (*frame.Frame, error) {
	sp, err := Spec()
	if err != nil {
		return nil, err
	}
	return frame.New(sp, service, overrides)
}

// SearchRequest builds a SEARCH REQUEST whose discovery endpoint
// advertises source. A nil source leaves the endpoint zeroed.
func SearchRequest(source *net.UDPAddr) (*frame.Frame, error) {
	return request(TypeSearchRequest, nil, source, "discovery endpoint")
}

// DescriptionRequest builds a DESCRIPTION REQUEST from source.
func DescriptionRequest(source *net.UDPAddr) (*frame.Frame, error) {
	return request(TypeDescriptionRequest, nil, source, "control endpoint")
}

// ConnectRequestTunneling builds a CONNECT REQUEST opening a tunneling
// connection on the data link layer. Both endpoints advertise source.
func ConnectRequestTunneling(source *net.UDPAddr) (*frame.Frame, error) {
	return request(TypeConnectRequest, nil, source, "control endpoint", "data endpoint")
}

// ConnectRequestManagement builds a CONNECT REQUEST opening a device
// management connection. Both endpoints advertise source.
func ConnectRequestManagement(source *net.UDPAddr) (*frame.Frame, error) {
	ov := map[string]any{"connection type code": codec.FromInt(ConnDeviceManagement, 1)}
	return request(TypeConnectRequest, ov, source, "control endpoint", "data endpoint")
}

// ConnectionStateRequest builds the heartbeat probing a channel.
func ConnectionStateRequest(channel byte, source *net.UDPAddr) (*frame.Frame, error) {
	ov := map[string]any{"communication channel id": channel}
	return request(TypeConnectionStateRequest, ov, source, "control endpoint")
}

// DisconnectRequest builds a DISCONNECT REQUEST closing channel.
func DisconnectRequest(channel byte, source *net.UDPAddr) (*frame.Frame, error) {
	ov := map[string]any{"communication channel id": channel}
	return request(TypeDisconnectRequest, ov, source, "control endpoint")
}

// ConfigurationRequest wraps a cEMI in a CONFIGURATION REQUEST for a
// device management channel.
func ConfigurationRequest(channel, seq byte, c CEMI) (*frame.Frame, error) {
	return carrier(TypeConfigurationRequest, channel, seq, c)
}

// ConfigurationAck acknowledges a configuration request.
func ConfigurationAck(channel, seq byte) (*frame.Frame, error) {
	return carrier(TypeConfigurationAck, channel, seq, nil)
}

// TunnelingRequest wraps a cEMI in a TUNNELING REQUEST for a tunneling
// channel.
func TunnelingRequest(channel, seq byte, c CEMI) (*frame.Frame, error) {
	return carrier(TypeTunnelingRequest, channel, seq, c)
}

// TunnelingAck acknowledges a tunneling request.
func TunnelingAck(channel, seq byte) (*frame.Frame, error) {
	return carrier(TypeTunnelingAck, channel, seq, nil)
}

// RoutingIndication wraps a cEMI in a connectionless ROUTING
// INDICATION for the multicast group.
func RoutingIndication(c CEMI) (*frame.Frame, error) {
	ov := make(map[string]any, len(c))
	for name, v := range c {
		ov[name] = v
	}
	return NewFrame(TypeRoutingIndication, ov)
}

// request builds a frame of the given type and points the named HPAI
// endpoints at source.
func request(typeName string, overrides map[string]any, source *net.UDPAddr, endpoints ...string) (*frame.Frame, error) {
	fr, err := NewFrame(typeName, overrides)
	if err != nil {
		return nil, err
	}
	for _, name := range endpoints {
		if err := setEndpoint(fr, name, source); err != nil {
			return nil, err
		}
	}
	return fr, nil
}

// carrier builds one of the cEMI-bearing or ack bodies that share the
// channel and sequence counter fields.
func carrier(typeName string, channel, seq byte, c CEMI) (*frame.Frame, error) {
	ov := map[string]any{
		"communication channel id": channel,
		"sequence counter":         seq,
	}
	for name, v := range c {
		ov[name] = v
	}
	return NewFrame(typeName, ov)
}

// localEndpoint is the address a socket bound at bound should
// advertise in HPAIs when talking to peer: the bound port plus the
// outbound interface IP. A wildcard bind is resolved with a probe
// dial; if that fails the IP stays unspecified.
func localEndpoint(peer string, bound *net.UDPAddr) *net.UDPAddr {
	if bound == nil {
		return nil
	}
	ep := &net.UDPAddr{IP: bound.IP, Port: bound.Port}
	if len(ep.IP) == 0 || ep.IP.IsUnspecified() {
		if probe, err := net.Dial("udp4", peer); err == nil {
			ep.IP = probe.LocalAddr().(*net.UDPAddr).IP
			probe.Close()
		}
	}
	return ep
}

func setEndpoint(fr *frame.Frame, name string, addr *net.UDPAddr) error {
	if addr == nil {
		return nil
	}
	body := fr.Body()
	if body == nil {
		return fmt.Errorf("knx: frame has no body")
	}
	ep, err := body.Block(name)
	if err != nil {
		return err
	}
	// An unspecified IP stays zeroed: the NAT traversal form, where
	// the server answers to the datagram source instead.
	if len(addr.IP) > 0 && !addr.IP.IsUnspecified() {
		ip4 := addr.IP.To4()
		if ip4 == nil {
			return fmt.Errorf("knx: endpoint %q: %s is not an IPv4 address", name, addr.IP)
		}
		ip, err := ep.Field("ip address")
		if err != nil {
			return err
		}
		ip.SetValue([]byte(ip4))
	}
	port, err := ep.Field("port")
	if err != nil {
		return err
	}
	port.SetValue(codec.FromInt(addr.Port, 2))
	return nil
}
