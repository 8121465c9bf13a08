// Package pcapio exports crafted frames to pcap files and reads frame
// payloads back out of captures. Frames travel as complete
// Ethernet/IPv4/UDP packets so standard capture tooling dissects them;
// both directions use the pure-Go pcapgo codec.
package pcapio

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

const snapLen = 65535

// Endpoint is one side of the synthesized UDP flow.
type Endpoint struct {
	IP   net.IP
	Port int
	MAC  net.HardwareAddr
}

// DefaultSource is the synthesized client side used when the caller
// leaves endpoint fields empty.
func DefaultSource() Endpoint {
	return Endpoint{
		IP:   net.IP{192, 168, 100, 10},
		Port: 50000,
		MAC:  net.HardwareAddr{0x00, 0x00, 0x00, 0x00, 0x00, 0x01},
	}
}

// DefaultDestination is the synthesized gateway side.
func DefaultDestination() Endpoint {
	return Endpoint{
		IP:   net.IP{192, 168, 100, 20},
		Port: 3671,
		MAC:  net.HardwareAddr{0x00, 0x00, 0x00, 0x00, 0x00, 0x02},
	}
}

func (e Endpoint) withDefaults(def Endpoint) Endpoint {
	if e.IP == nil {
		e.IP = def.IP
	}
	if e.Port == 0 {
		e.Port = def.Port
	}
	if e.MAC == nil {
		e.MAC = def.MAC
	}
	return e
}

// Writer appends frame payloads to a pcap file.
type Writer struct {
	file *os.File
	pw   *pcapgo.Writer
	src  Endpoint
	dst  Endpoint
}

// Create opens a pcap file for writing and emits the file header.
// Zero fields in either endpoint fall back to the defaults.
func Create(path string, src, dst Endpoint) (*Writer, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create pcap: %w", err)
	}
	pw := pcapgo.NewWriter(file)
	if err := pw.WriteFileHeader(snapLen, layers.LinkTypeEthernet); err != nil {
		file.Close()
		return nil, fmt.Errorf("write pcap header: %w", err)
	}
	return &Writer{
		file: file,
		pw:   pw,
		src:  src.withDefaults(DefaultSource()),
		dst:  dst.withDefaults(DefaultDestination()),
	}, nil
}

// WriteFrame records one frame payload as a packet from source to
// destination, stamped with the current time.
func (w *Writer) WriteFrame(payload []byte) error {
	return w.write(time.Now(), w.src, w.dst, payload)
}

// WriteReply records one payload in the reverse direction, for
// captures that carry both sides of an exchange.
func (w *Writer) WriteReply(payload []byte) error {
	return w.write(time.Now(), w.dst, w.src, payload)
}

// WriteFrameAt is WriteFrame with an explicit timestamp.
func (w *Writer) WriteFrameAt(ts time.Time, payload []byte) error {
	return w.write(ts, w.src, w.dst, payload)
}

func (w *Writer) write(ts time.Time, from, to Endpoint, payload []byte) error {
	eth := &layers.Ethernet{
		SrcMAC:       from.MAC,
		DstMAC:       to.MAC,
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    from.IP,
		DstIP:    to.IP,
	}
	udp := &layers.UDP{
		SrcPort: layers.UDPPort(from.Port),
		DstPort: layers.UDPPort(to.Port),
	}
	_ = udp.SetNetworkLayerForChecksum(ip)

	buffer := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{
		FixLengths:       true,
		ComputeChecksums: true,
	}
	if err := gopacket.SerializeLayers(buffer, opts, eth, ip, udp, gopacket.Payload(payload)); err != nil {
		return fmt.Errorf("serialize packet: %w", err)
	}
	data := buffer.Bytes()
	info := gopacket.CaptureInfo{
		Timestamp:     ts,
		CaptureLength: len(data),
		Length:        len(data),
	}
	if err := w.pw.WritePacket(info, data); err != nil {
		return fmt.Errorf("write packet: %w", err)
	}
	return nil
}

// Close closes the underlying file.
func (w *Writer) Close() error {
	return w.file.Close()
}
