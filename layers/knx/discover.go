package knx

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/jcalloway/framecraft/codec"
	"github.com/jcalloway/framecraft/transport"
)

// Device holds the identity a KNXnet/IP server reports in search and
// description responses.
type Device struct {
	Name              string `json:"name"`
	Addr              string `json:"addr"`
	IndividualAddress string `json:"individual_address"`
	MACAddress        string `json:"mac_address"`
	MulticastAddress  string `json:"multicast_address"`
	SerialNumber      string `json:"serial_number"`
}

// Discover multicasts a SEARCH REQUEST to the standard KNX group and
// collects one Device per distinct responder until timeout expires.
func Discover(ctx context.Context, timeout time.Duration) ([]Device, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	group := net.JoinHostPort(MulticastAddr, strconv.Itoa(Port))

	// Route lookup only: the dial finds the outbound interface address
	// the gateway should answer to.
	probe, err := net.Dial("udp4", group)
	if err != nil {
		return nil, fmt.Errorf("resolve local address: %w", err)
	}
	local := probe.LocalAddr().(*net.UDPAddr)
	probe.Close()

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: local.IP, Port: 0})
	if err != nil {
		return nil, fmt.Errorf("listen UDP: %w", err)
	}
	defer conn.Close()

	source := conn.LocalAddr().(*net.UDPAddr)
	req, err := SearchRequest(source)
	if err != nil {
		return nil, err
	}
	groupAddr := &net.UDPAddr{IP: net.ParseIP(MulticastAddr), Port: Port}
	if _, err := conn.WriteToUDP(req.Bytes(), groupAddr); err != nil {
		return nil, fmt.Errorf("send search request: %w", err)
	}

	var devices []Device
	seen := make(map[string]bool)
	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	for time.Now().Before(deadline) {
		if err := conn.SetReadDeadline(deadline); err != nil {
			return devices, fmt.Errorf("set read deadline: %w", err)
		}
		buf := make([]byte, 1024)
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				break
			}
			continue
		}
		if seen[addr.IP.String()] {
			continue
		}
		device, err := parseSearchResponse(buf[:n])
		if err != nil {
			continue
		}
		seen[addr.IP.String()] = true
		device.Addr = addr.String()
		devices = append(devices, device)
	}
	return devices, nil
}

// Describe opens a device management connection to the server at addr
// ("host:port"), asks it to describe itself and closes the channel.
func Describe(ctx context.Context, addr string, timeout time.Duration) (*Device, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	tr := transport.NewUDP()
	if err := tr.Connect(ctx, addr); err != nil {
		return nil, err
	}
	defer tr.Disconnect()

	source := localEndpoint(addr, tr.LocalAddr())
	req, err := ConnectRequestManagement(source)
	if err != nil {
		return nil, err
	}
	resp, err := tr.Request(ctx, req.Bytes(), timeout)
	if err != nil {
		return nil, err
	}
	channel, err := parseConnectResponse(resp)
	if err != nil {
		return nil, err
	}

	descr, err := DescriptionRequest(source)
	if err != nil {
		return nil, err
	}
	resp, err = tr.Request(ctx, descr.Bytes(), timeout)
	if err != nil {
		return nil, err
	}
	if len(resp) < 6 || codec.ToInt(resp[2:4]) != 0x0204 {
		return nil, fmt.Errorf("knx: expected description response, got %s", codec.ToHex(resp[2:4]))
	}
	device, err := parseDeviceInfo(resp, 6)
	if err != nil {
		return nil, err
	}
	device.Addr = addr

	// Close the channel. The answer does not change the result.
	if disco, err := DisconnectRequest(channel, source); err == nil {
		_, _ = tr.Request(ctx, disco.Bytes(), timeout)
	}
	return &device, nil
}

// parseConnectResponse pulls the channel id out of a raw CONNECT
// RESPONSE and checks its status byte.
func parseConnectResponse(data []byte) (byte, error) {
	if len(data) < 8 {
		return 0, fmt.Errorf("knx: connect response too short: %d bytes", len(data))
	}
	if codec.ToInt(data[2:4]) != 0x0206 {
		return 0, fmt.Errorf("knx: expected connect response, got %s", codec.ToHex(data[2:4]))
	}
	if data[7] != 0 {
		return 0, fmt.Errorf("knx: connect refused: status 0x%02x", data[7])
	}
	return data[6], nil
}

// parseSearchResponse dissects a raw SEARCH RESPONSE datagram. Offsets
// walk the structure lengths so endpoints of unusual sizes still land
// on the device info DIB.
func parseSearchResponse(data []byte) (Device, error) {
	if len(data) < 8 {
		return Device{}, fmt.Errorf("knx: search response too short: %d bytes", len(data))
	}
	if codec.ToInt(data[2:4]) != 0x0202 {
		return Device{}, fmt.Errorf("knx: expected search response, got %s", codec.ToHex(data[2:4]))
	}
	// Skip the header and the control endpoint HPAI.
	return parseDeviceInfo(data, 6+int(data[6]))
}

// parseDeviceInfo reads a DIB DEVICE INFO starting at off.
func parseDeviceInfo(data []byte, off int) (Device, error) {
	if off < 0 || len(data) < off+54 {
		return Device{}, fmt.Errorf("knx: device info truncated")
	}
	if data[off+1] != 0x01 {
		return Device{}, fmt.Errorf("knx: expected device info DIB, got type 0x%02x", data[off+1])
	}
	return Device{
		IndividualAddress: codec.ToIndividualAddress(data[off+4 : off+6]),
		SerialNumber:      codec.ToHex(data[off+8 : off+14]),
		MulticastAddress:  codec.ToIPv4(data[off+14 : off+18]),
		MACAddress:        net.HardwareAddr(data[off+18 : off+24]).String(),
		Name:              codec.ToString(data[off+24 : off+54]),
	}, nil
}
