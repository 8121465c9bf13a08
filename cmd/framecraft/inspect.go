package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jcalloway/framecraft/codec"
	"github.com/jcalloway/framecraft/frame"
	"github.com/jcalloway/framecraft/internal/pcapio"
	"github.com/jcalloway/framecraft/internal/ui"
	"github.com/jcalloway/framecraft/spec"
)

type inspectFlags struct {
	specName string
	sets     []string
	hexInput string
	pcapFile string
	port     int
	index    int
	out      string
}

func newInspectCmd() *cobra.Command {
	flags := &inspectFlags{}

	cmd := &cobra.Command{
		Use:   "inspect [frame type]",
		Short: "Explore and edit a frame interactively",
		Long: `Open a frame in the full-screen inspector: the field tree on the
left, the live hex rendering on the right. Arrow keys walk the fields,
enter edits the selected one, and every edit reserializes the frame so
length fields and the hex pane follow along.

The frame comes from the same three sources the other commands use: a
frame type with --set overrides, raw bytes with --hex, or a packet out
of a capture with --pcap. On exit the frame's final bytes are printed,
so an inspect session composes with 'framecraft send --hex'.`,
		Example: `  # Build a connect request and poke at it
  framecraft inspect "CONNECT REQUEST"

  # Dissect bytes interactively
  framecraft inspect --hex 06100203000e0801c0a8010ae657

  # Open the third KNX packet from a capture
  framecraft inspect --pcap session.pcap --index 3`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			typeName := ""
			if len(args) > 0 {
				typeName = args[0]
			}
			if typeName == "" && flags.hexInput == "" && flags.pcapFile == "" {
				_ = cmd.Help()
				return fmt.Errorf("frame type argument, --hex or --pcap required")
			}
			return runInspect(typeName, flags)
		},
	}

	cmd.Flags().StringVar(&flags.specName, "spec", "", "Specification: embedded name or file path (default from config)")
	cmd.Flags().StringArrayVar(&flags.sets, "set", nil, "Override a field before opening: name=value (repeatable)")
	cmd.Flags().StringVar(&flags.hexInput, "hex", "", "Parse these bytes instead of crafting a frame")
	cmd.Flags().StringVar(&flags.pcapFile, "pcap", "", "Parse a frame out of this pcap file")
	cmd.Flags().IntVar(&flags.port, "port", 0, "With --pcap, only packets touching this UDP port (0 for all)")
	cmd.Flags().IntVar(&flags.index, "index", 1, "With --pcap, which matching packet to open (1-based)")
	cmd.Flags().StringVar(&flags.out, "out", "hex", "Output format on exit: hex|tree|json")

	return cmd
}

func runInspect(typeName string, flags *inspectFlags) error {
	sp, err := loadSpec(flags.specName)
	if err != nil {
		return err
	}
	log.LogStartup("inspect", "", flags.specName, rootOpts.configPath)

	f, err := inspectFrame(sp, typeName, flags)
	if err != nil {
		return err
	}

	if _, err := ui.RunInspector(f); err != nil {
		return fmt.Errorf("inspector: %w", err)
	}

	log.LogHex("inspected frame", f.Bytes())
	return printFrame(f, flags.out)
}

// inspectFrame builds the frame to open: crafted by type, parsed from
// hex, or parsed out of a capture.
func inspectFrame(sp *spec.Specification, typeName string, flags *inspectFlags) (*frame.Frame, error) {
	switch {
	case flags.hexInput != "":
		data, err := codec.FromHex(flags.hexInput)
		if err != nil {
			return nil, err
		}
		f, err := frame.Parse(sp, data)
		if err != nil {
			return nil, fmt.Errorf("parse %d bytes: %w", len(data), err)
		}
		return f, nil
	case flags.pcapFile != "":
		packets, err := pcapio.ReadUDPPayloads(flags.pcapFile, flags.port)
		if err != nil {
			return nil, err
		}
		if len(packets) == 0 {
			return nil, fmt.Errorf("%s: no matching UDP packets", flags.pcapFile)
		}
		if flags.index < 1 || flags.index > len(packets) {
			return nil, fmt.Errorf("--index %d out of range: capture has %d matching packet(s)", flags.index, len(packets))
		}
		p := packets[flags.index-1]
		f, err := frame.Parse(sp, p.Payload)
		if err != nil {
			return nil, fmt.Errorf("packet %d (%s:%d): %w", flags.index, p.SrcIP, p.SrcPort, err)
		}
		return f, nil
	default:
		overrides, err := parseSets(flags.sets)
		if err != nil {
			return nil, err
		}
		f, err := frame.New(sp, typeName, overrides)
		if err != nil {
			return nil, suggestTypes(sp, typeName, err)
		}
		return f, nil
	}
}
