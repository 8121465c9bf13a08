package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"github.com/jcalloway/framecraft/codec"
	"github.com/jcalloway/framecraft/frame"
	"github.com/jcalloway/framecraft/fuzz"
	"github.com/jcalloway/framecraft/internal/ui"
	"github.com/jcalloway/framecraft/spec"
)

type craftFlags struct {
	specName    string
	sets        []string
	interactive bool
	out         string
	pcapFile    string
	copyHex     bool
}

func newCraftCmd() *cobra.Command {
	flags := &craftFlags{}

	cmd := &cobra.Command{
		Use:   "craft [frame type]",
		Short: "Build a frame from a specification",
		Long: `Build a protocol frame of the given type and print it.

The frame type selects the layout through the specification's code
tables (for the built-in KNXnet/IP spec: SEARCH REQUEST, CONNECT
REQUEST, TUNNELING REQUEST and so on; see 'framecraft specs show').
Length fields and the header's total length are computed automatically.

Field values are overridden with repeated --set name=value flags.
Values read as hex (0x prefix or byte pairs), decimal numbers, IPv4
dotted quads, KNX individual (1.2.3) or group (1/2/3) addresses, or
raw text. Overridden fields keep their value even where it breaks the
protocol; crafting non-conformant frames is the point.

With --interactive an operator walks through type selection and field
inputs instead of flags.`,
		Example: `  # Default search request as a field tree
  framecraft craft "SEARCH REQUEST"

  # Tunneling request with channel and payload overrides, as raw hex
  framecraft craft "TUNNELING REQUEST" --set "communication channel id=0x15" \
    --set "destination address=1/2/3" --out hex

  # Deliberately wrong total length
  framecraft craft "DESCRIPTION REQUEST" --set "total length=9999"

  # Walk through the fields interactively, then export a capture
  framecraft craft --interactive --pcap crafted.pcap`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			typeName := ""
			if len(args) > 0 {
				typeName = args[0]
			}
			if typeName == "" && !flags.interactive {
				_ = cmd.Help()
				return fmt.Errorf("frame type argument or --interactive required")
			}
			return runCraft(typeName, flags)
		},
	}

	cmd.Flags().StringVar(&flags.specName, "spec", "", "Specification: embedded name or file path (default from config)")
	cmd.Flags().StringArrayVar(&flags.sets, "set", nil, "Override a field: name=value (repeatable)")
	cmd.Flags().BoolVarP(&flags.interactive, "interactive", "i", false, "Build the frame through the interactive wizard")
	cmd.Flags().StringVar(&flags.out, "out", "tree", "Output format: tree|hex|json")
	cmd.Flags().StringVar(&flags.pcapFile, "pcap", "", "Also append the frame to this pcap file")
	cmd.Flags().BoolVar(&flags.copyHex, "copy", false, "Copy the frame hex to the clipboard")

	return cmd
}

func runCraft(typeName string, flags *craftFlags) error {
	sp, err := loadSpec(flags.specName)
	if err != nil {
		return err
	}
	log.LogStartup("craft", "", flags.specName, rootOpts.configPath)

	var f *frame.Frame
	switch {
	case flags.interactive:
		result, err := ui.RunCraftForm(sp)
		if errors.Is(err, ui.ErrDeclined) {
			fmt.Fprintln(os.Stdout, "Discarded.")
			return nil
		}
		if err != nil {
			return err
		}
		f = result.Frame
		log.Verbose("crafted %s with %d edits", result.Type, len(result.Edits))
	default:
		overrides, err := parseSets(flags.sets)
		if err != nil {
			return err
		}
		f, err = frame.New(sp, typeName, overrides)
		if err != nil {
			return suggestTypes(sp, typeName, err)
		}
	}

	if err := printFrame(f, flags.out); err != nil {
		return err
	}
	log.LogHex("crafted frame", f.Bytes())

	if flags.pcapFile != "" {
		if err := writeFramePcap(flags.pcapFile, f.Bytes()); err != nil {
			return err
		}
		log.Info("Wrote %d bytes to %s", f.Len(), flags.pcapFile)
	}
	if flags.copyHex {
		if err := clipboard.WriteAll(codec.ToHex(f.Bytes())); err != nil {
			return fmt.Errorf("copy to clipboard: %w", err)
		}
		fmt.Fprintln(os.Stdout, "Copied frame hex to clipboard.")
	}
	return nil
}

// suggestTypes decorates an unknown-type error with the names the
// specification does accept.
func suggestTypes(sp *spec.Specification, typeName string, err error) error {
	if !errors.Is(err, frame.ErrUnknownType) {
		return err
	}
	types := fuzz.FrameTypes(sp)
	if len(types) == 0 {
		return err
	}
	return fmt.Errorf("%w\nknown frame types: %s", err, strings.Join(types, ", "))
}
