package pcapio

import (
	"fmt"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// Packet is one UDP payload pulled from a capture, with enough flow
// metadata to tell the two directions apart.
type Packet struct {
	Timestamp time.Time
	SrcIP     string
	DstIP     string
	SrcPort   int
	DstPort   int
	Payload   []byte
}

// ReadUDPPayloads extracts UDP payloads from a pcap file. With a
// non-zero port only packets to or from that port are returned, so a
// capture with unrelated traffic filters down to the protocol flow.
func ReadUDPPayloads(path string, port int) ([]Packet, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pcap: %w", err)
	}
	defer file.Close()

	reader, err := pcapgo.NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("read pcap header: %w", err)
	}

	var out []Packet
	source := gopacket.NewPacketSource(reader, reader.LinkType())
	for packet := range source.Packets() {
		udpLayer := packet.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			continue
		}
		udp, _ := udpLayer.(*layers.UDP)
		if len(udp.Payload) == 0 {
			continue
		}
		if port != 0 && int(udp.SrcPort) != port && int(udp.DstPort) != port {
			continue
		}

		p := Packet{
			SrcPort: int(udp.SrcPort),
			DstPort: int(udp.DstPort),
			Payload: append([]byte(nil), udp.Payload...),
		}
		if md := packet.Metadata(); md != nil {
			p.Timestamp = md.Timestamp
		}
		if netLayer := packet.NetworkLayer(); netLayer != nil {
			src, dst := netLayer.NetworkFlow().Endpoints()
			p.SrcIP = src.String()
			p.DstIP = dst.String()
		}
		out = append(out, p)
	}
	return out, nil
}
