package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	ferrors "github.com/jcalloway/framecraft/internal/errors"
	"github.com/jcalloway/framecraft/internal/render"
	"github.com/jcalloway/framecraft/layers/knx"
)

type discoverFlags struct {
	timeoutMs int
	output    string
}

func newDiscoverCmd() *cobra.Command {
	flags := &discoverFlags{}

	cmd := &cobra.Command{
		Use:   "discover [host:port]",
		Short: "Find KNXnet/IP devices on the network",
		Long: `Multicast a search request to the standard KNX group (224.0.23.12:3671)
and list every gateway that answers with its identity: name, individual
address, serial number, MAC and routing multicast group.

With a host:port argument the multicast sweep is skipped and that one
device is asked to describe itself over unicast instead, which works
across routed networks where multicast does not reach.`,
		Example: `  # Sweep the local network
  framecraft discover

  # Ask one gateway directly, machine-readable
  framecraft discover 192.168.1.10:3671 --output json

  # Slow network, wait longer for answers
  framecraft discover --timeout-ms 10000`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr := ""
			if len(args) > 0 {
				addr = args[0]
			}
			return runDiscover(addr, flags)
		},
	}

	cmd.Flags().IntVar(&flags.timeoutMs, "timeout-ms", 0, "How long to wait for answers in milliseconds (default from config)")
	cmd.Flags().StringVar(&flags.output, "output", "text", "Output format: text|json")

	return cmd
}

func runDiscover(addr string, flags *discoverFlags) error {
	timeout := cfg.Timeouts.Discover()
	if flags.timeoutMs > 0 {
		timeout = time.Duration(flags.timeoutMs) * time.Millisecond
	}
	log.LogStartup("discover", addr, "", rootOpts.configPath)

	ctx, cancel := context.WithTimeout(context.Background(), timeout+time.Second)
	defer cancel()

	var devices []knx.Device
	if addr != "" {
		device, err := knx.Describe(ctx, addr, timeout)
		if err != nil {
			return ferrors.WrapNetworkError(err, addr)
		}
		devices = []knx.Device{*device}
	} else {
		var err error
		devices, err = knx.Discover(ctx, timeout)
		if err != nil {
			return ferrors.WrapNetworkError(err, knx.MulticastAddr)
		}
	}
	log.Info("discover: %d device(s)", len(devices))

	switch flags.output {
	case "json":
		data, err := json.MarshalIndent(devices, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal JSON: %w", err)
		}
		fmt.Fprintf(os.Stdout, "%s\n", data)
	case "text":
		printDevices(devices)
	default:
		return fmt.Errorf("invalid output format %q; must be text or json", flags.output)
	}
	return nil
}

func printDevices(devices []knx.Device) {
	if len(devices) == 0 {
		fmt.Fprintln(os.Stdout, "No devices answered.")
		return
	}
	t := render.Table{
		Headers: []string{"NAME", "ADDRESS", "INDIVIDUAL", "MAC", "MULTICAST", "SERIAL"},
	}
	for _, d := range devices {
		t.Rows = append(t.Rows, []string{
			d.Name, d.Addr, d.IndividualAddress, d.MACAddress, d.MulticastAddress, d.SerialNumber,
		})
	}
	fmt.Fprint(os.Stdout, t.Render())
	fmt.Fprintf(os.Stdout, "\n%d device(s) found\n", len(devices))
}
