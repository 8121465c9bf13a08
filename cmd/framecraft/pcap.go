package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jcalloway/framecraft/codec"
	"github.com/jcalloway/framecraft/internal/pcapio"
	"github.com/jcalloway/framecraft/internal/render"
)

func newPcapCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pcap",
		Short: "Capture file operations",
		Long: `Move frames between hex and pcap captures.

Exported frames become complete Ethernet/IPv4/UDP packets, so any
capture tool dissects them. Dumping goes the other way: UDP payloads
out of an existing capture as raw hex, no specification involved.
Use parse --pcap to dissect capture payloads against a spec instead.`,
	}

	cmd.AddCommand(newPcapDumpCmd())
	cmd.AddCommand(newPcapExportCmd())

	return cmd
}

// --- pcap dump ---

type pcapDumpFlags struct {
	port  int
	index int
}

func newPcapDumpCmd() *cobra.Command {
	flags := &pcapDumpFlags{}

	cmd := &cobra.Command{
		Use:   "dump <capture.pcap>",
		Short: "Hex dump UDP payloads from a capture",
		Long: `Extract UDP payloads from a pcap file and print each one as an
offset/hex/ASCII dump with its flow metadata.

--port keeps only packets to or from one UDP port; --index picks a
single packet out of the matches.`,
		Example: `  # Every UDP payload in a capture
  framecraft pcap dump traffic.pcap

  # Only KNX traffic, second matching packet
  framecraft pcap dump traffic.pcap --port 3671 --index 2`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPcapDump(args[0], flags)
		},
	}

	cmd.Flags().IntVar(&flags.port, "port", 0, "Keep only packets to or from this UDP port (0 = all)")
	cmd.Flags().IntVar(&flags.index, "index", 0, "Dump only the Nth matching packet (1-based)")

	return cmd
}

func runPcapDump(path string, flags *pcapDumpFlags) error {
	log.LogStartup("pcap dump", "", "", rootOpts.configPath)

	packets, err := pcapio.ReadUDPPayloads(path, flags.port)
	if err != nil {
		return err
	}
	if len(packets) == 0 {
		return fmt.Errorf("no matching UDP payloads in %s", path)
	}
	if flags.index != 0 {
		if flags.index < 1 || flags.index > len(packets) {
			return fmt.Errorf("--index %d out of range; capture has %d matching packets", flags.index, len(packets))
		}
		packets = packets[flags.index-1 : flags.index]
	}

	for i, p := range packets {
		fmt.Fprintf(os.Stdout, "── packet %d  %s  %s:%d → %s:%d  %d bytes\n",
			i+1, p.Timestamp.Format("15:04:05.000000"), p.SrcIP, p.SrcPort, p.DstIP, p.DstPort, len(p.Payload))
		fmt.Fprint(os.Stdout, render.HexDump(p.Payload))
		fmt.Fprintln(os.Stdout)
	}
	fmt.Fprintf(os.Stdout, "%d payload(s)\n", len(packets))
	return nil
}

// --- pcap export ---

type pcapExportFlags struct {
	dst string
}

func newPcapExportCmd() *cobra.Command {
	flags := &pcapExportFlags{}

	cmd := &cobra.Command{
		Use:   "export <capture.pcap> [hex bytes]...",
		Short: "Write hex frames into a capture file",
		Long: `Wrap raw frame bytes in synthesized Ethernet/IPv4/UDP packets and
write them to a pcap file.

Each hex argument becomes one packet; with no hex arguments, one frame
per stdin line. The flow runs from the configured source endpoint to
--dst, or to a synthesized gateway address when --dst is omitted.`,
		Example: `  # Pipe a crafted frame straight into a capture
  framecraft craft "SEARCH REQUEST" --out hex | framecraft pcap export search.pcap

  # Several frames toward a real gateway address
  framecraft pcap export lab.pcap 06100201000e0801000000000000 \
      06100205001a... --dst 10.0.0.9:3671`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPcapExport(args[0], args[1:], flags)
		},
	}

	cmd.Flags().StringVar(&flags.dst, "dst", "", "Destination endpoint host:port for the synthesized flow")

	return cmd
}

func runPcapExport(path string, hexArgs []string, flags *pcapExportFlags) error {
	log.LogStartup("pcap export", "", "", rootOpts.configPath)

	payloads, err := readHexFrames(hexArgs)
	if err != nil {
		return err
	}
	if len(payloads) == 0 {
		return fmt.Errorf("no frames to export; pass hex arguments or pipe hex lines on stdin")
	}

	w, err := pcapio.Create(path, pcapSource(), pcapDestination(flags.dst))
	if err != nil {
		return err
	}
	for _, p := range payloads {
		if err := w.WriteFrame(p); err != nil {
			w.Close()
			return err
		}
	}
	if err := w.Close(); err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "Wrote %d frame(s) to %s\n", len(payloads), path)
	return nil
}

// readHexFrames decodes one frame per hex argument, falling back to one
// frame per stdin line when no arguments were given.
func readHexFrames(hexArgs []string) ([][]byte, error) {
	if len(hexArgs) == 0 {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			hexArgs = append(hexArgs, line)
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
	}

	payloads := make([][]byte, 0, len(hexArgs))
	for i, arg := range hexArgs {
		data, err := codec.FromHex(arg)
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", i+1, err)
		}
		payloads = append(payloads, data)
	}
	return payloads, nil
}
