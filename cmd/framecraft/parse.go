package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jcalloway/framecraft/codec"
	"github.com/jcalloway/framecraft/frame"
	"github.com/jcalloway/framecraft/internal/pcapio"
	"github.com/jcalloway/framecraft/spec"
)

type parseFlags struct {
	specName string
	pcapFile string
	port     int
	index    int
	out      string
}

func newParseCmd() *cobra.Command {
	flags := &parseFlags{}

	cmd := &cobra.Command{
		Use:   "parse [hex bytes]",
		Short: "Dissect raw frame bytes against a specification",
		Long: `Parse wire bytes into a frame tree and print it.

Bytes come from the hex argument, from stdin when the argument is
omitted, or from a pcap file with --pcap. Hex accepts an optional 0x
prefix and spaces or colons between byte pairs.

A pcap source extracts UDP payloads; --port narrows them to packets
touching one port and --index picks a single packet instead of
parsing all of them.

Parsing follows declared field sizes and resolves conditional blocks
from determinant values found in the data. Wrong length fields are
tolerated where the structure permits; what was on the wire is what
gets displayed.`,
		Example: `  # Dissect a captured search request
  framecraft parse 06100201000e0801c0a8010ae657

  # Pipe hex in
  echo "06 10 02 03 00 0e 08 01 c0 a8 01 0a e6 57" | framecraft parse

  # Every KNX payload in a capture
  framecraft parse --pcap traffic.pcap --port 3671

  # Just the third packet, as JSON
  framecraft parse --pcap traffic.pcap --index 3 --out json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hexArg := ""
			if len(args) > 0 {
				hexArg = args[0]
			}
			return runParse(hexArg, flags)
		},
	}

	cmd.Flags().StringVar(&flags.specName, "spec", "", "Specification: embedded name or file path (default from config)")
	cmd.Flags().StringVar(&flags.pcapFile, "pcap", "", "Read payloads from this pcap file instead of hex input")
	cmd.Flags().IntVar(&flags.port, "port", 0, "With --pcap, keep only packets to or from this UDP port (0 = all)")
	cmd.Flags().IntVar(&flags.index, "index", 0, "With --pcap, parse only the Nth matching packet (1-based)")
	cmd.Flags().StringVar(&flags.out, "out", "tree", "Output format: tree|hex|json")

	return cmd
}

func runParse(hexArg string, flags *parseFlags) error {
	sp, err := loadSpec(flags.specName)
	if err != nil {
		return err
	}
	log.LogStartup("parse", "", flags.specName, rootOpts.configPath)

	if flags.pcapFile != "" {
		return parsePcap(sp, flags)
	}

	data, err := readHexInput(hexArg)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return fmt.Errorf("no input bytes; pass hex as an argument, on stdin, or with --pcap")
	}

	f, err := frame.Parse(sp, data)
	if err != nil {
		return fmt.Errorf("parse %d bytes: %w", len(data), err)
	}
	return printFrame(f, flags.out)
}

func parsePcap(sp *spec.Specification, flags *parseFlags) error {
	packets, err := pcapio.ReadUDPPayloads(flags.pcapFile, flags.port)
	if err != nil {
		return err
	}
	if len(packets) == 0 {
		return fmt.Errorf("no matching UDP payloads in %s", flags.pcapFile)
	}
	if flags.index != 0 {
		if flags.index < 1 || flags.index > len(packets) {
			return fmt.Errorf("--index %d out of range; capture has %d matching packets", flags.index, len(packets))
		}
		packets = packets[flags.index-1 : flags.index]
	}

	failed := 0
	for i, p := range packets {
		fmt.Fprintf(os.Stdout, "── packet %d  %s:%d → %s:%d  %d bytes\n",
			i+1, p.SrcIP, p.SrcPort, p.DstIP, p.DstPort, len(p.Payload))
		f, err := frame.Parse(sp, p.Payload)
		if err != nil {
			failed++
			fmt.Fprintf(os.Stdout, "   not parseable: %v\n   %s\n", err, codec.ToHex(p.Payload))
			continue
		}
		if err := printFrame(f, flags.out); err != nil {
			return err
		}
	}
	if failed > 0 {
		log.Info("%d of %d payloads did not parse against this spec", failed, len(packets))
	}
	return nil
}

// readHexInput decodes the hex argument, falling back to stdin when no
// argument was given.
func readHexInput(hexArg string) ([]byte, error) {
	if hexArg == "" {
		raw, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		hexArg = strings.TrimSpace(string(raw))
	}
	if hexArg == "" {
		return nil, nil
	}
	data, err := codec.FromHex(hexArg)
	if err != nil {
		return nil, err
	}
	return data, nil
}
