package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jcalloway/framecraft/codec"
	"github.com/jcalloway/framecraft/frame"
	ferrors "github.com/jcalloway/framecraft/internal/errors"
	"github.com/jcalloway/framecraft/internal/pcapio"
	"github.com/jcalloway/framecraft/spec"
	"github.com/jcalloway/framecraft/transport"
)

type sendFlags struct {
	specName  string
	target    string
	trans     string
	sets      []string
	hexInput  string
	out       string
	pcapFile  string
	listen    bool
	noReply   bool
	timeoutMs int
}

func newSendCmd() *cobra.Command {
	flags := &sendFlags{}

	cmd := &cobra.Command{
		Use:   "send [frame type]",
		Short: "Send a frame and print the reply",
		Long: `Craft a frame (or take raw hex), send it to the target, wait for a
reply and dissect it.

The frame is built exactly like 'framecraft craft': a type argument
plus --set overrides, or raw bytes with --hex. The reply is parsed
against the same specification and printed; a reply that does not
parse is shown as hex so nothing the device said is lost.

By default one reply is awaited. --listen keeps collecting replies
until the exchange timeout passes, which suits frames that trigger
several answers. --no-reply returns right after the send.`,
		Example: `  # Probe a gateway with a description request
  framecraft send "DESCRIPTION REQUEST" --target 192.168.1.10:3671

  # Disconnect channel 21, do not wait for the answer
  framecraft send "DISCONNECT REQUEST" --set "communication channel id=21" \
    --target 192.168.1.10:3671 --no-reply

  # Replay raw bytes over TCP and keep the exchange in a capture
  framecraft send --hex 06100203000e0801c0a8010ae657 \
    --target 192.168.1.10:3671 --transport tcp --pcap exchange.pcap`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			typeName := ""
			if len(args) > 0 {
				typeName = args[0]
			}
			if typeName == "" && flags.hexInput == "" {
				_ = cmd.Help()
				return fmt.Errorf("frame type argument or --hex required")
			}
			return runSend(typeName, flags)
		},
	}

	cmd.Flags().StringVar(&flags.specName, "spec", "", "Specification: embedded name or file path (default from config)")
	cmd.Flags().StringVar(&flags.target, "target", "", "Destination host:port (default from config)")
	cmd.Flags().StringVar(&flags.trans, "transport", "", "Transport: udp|tcp (default from config)")
	cmd.Flags().StringArrayVar(&flags.sets, "set", nil, "Override a field: name=value (repeatable)")
	cmd.Flags().StringVar(&flags.hexInput, "hex", "", "Send these raw bytes instead of crafting a frame")
	cmd.Flags().StringVar(&flags.out, "out", "tree", "Reply output format: tree|hex|json")
	cmd.Flags().StringVar(&flags.pcapFile, "pcap", "", "Record the exchange to this pcap file")
	cmd.Flags().BoolVar(&flags.listen, "listen", false, "Collect replies until the timeout instead of stopping at the first")
	cmd.Flags().BoolVar(&flags.noReply, "no-reply", false, "Send without waiting for a reply")
	cmd.Flags().IntVar(&flags.timeoutMs, "timeout-ms", 0, "Reply timeout in milliseconds (default from config)")

	return cmd
}

func runSend(typeName string, flags *sendFlags) error {
	sp, err := loadSpec(flags.specName)
	if err != nil {
		return err
	}

	target := flags.target
	if target == "" {
		if cfg.Target.Host == "" {
			return fmt.Errorf("no target: pass --target or set target.host in the config")
		}
		target = cfg.Target.Addr()
	}
	kind := transportKind(flags.trans)
	if flags.trans == "" {
		kind = transportKind(cfg.Target.Transport)
	}
	timeout := cfg.Timeouts.Exchange()
	if flags.timeoutMs > 0 {
		timeout = time.Duration(flags.timeoutMs) * time.Millisecond
	}
	log.LogStartup("send", target, flags.specName, rootOpts.configPath)

	data, err := buildPayload(sp, typeName, flags)
	if err != nil {
		return err
	}

	tr, err := transport.New(kind)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts.Connect())
	err = tr.Connect(ctx, target)
	cancel()
	if err != nil {
		return ferrors.WrapNetworkError(err, target)
	}
	defer func() { _ = tr.Disconnect() }()

	var capture *pcapio.Writer
	if flags.pcapFile != "" {
		capture, err = pcapio.Create(flags.pcapFile, pcapSource(), pcapDestination(target))
		if err != nil {
			return err
		}
		defer capture.Close()
	}

	start := time.Now()
	if err := tr.Send(context.Background(), data); err != nil {
		return ferrors.WrapNetworkError(err, target)
	}
	log.LogHex("sent frame", data)
	if capture != nil {
		if err := capture.WriteFrame(data); err != nil {
			return err
		}
	}
	fmt.Fprintf(os.Stdout, "Sent %d bytes to %s\n", len(data), target)

	if flags.noReply {
		return nil
	}
	return awaitReplies(sp, tr, target, timeout, flags, capture, start)
}

// buildPayload produces the bytes to send: raw hex wins, otherwise a
// crafted frame of the named type.
func buildPayload(sp *spec.Specification, typeName string, flags *sendFlags) ([]byte, error) {
	if flags.hexInput != "" {
		data, err := codec.FromHex(flags.hexInput)
		if err != nil {
			return nil, err
		}
		if len(data) == 0 {
			return nil, fmt.Errorf("--hex decoded to zero bytes")
		}
		return data, nil
	}
	overrides, err := parseSets(flags.sets)
	if err != nil {
		return nil, err
	}
	f, err := frame.New(sp, typeName, overrides)
	if err != nil {
		return nil, suggestTypes(sp, typeName, err)
	}
	return f.Bytes(), nil
}

// awaitReplies reads one reply, or keeps reading until the deadline
// with --listen, printing each one.
func awaitReplies(sp *spec.Specification, tr transport.Transport, target string, timeout time.Duration, flags *sendFlags, capture *pcapio.Writer, start time.Time) error {
	deadline := time.Now().Add(timeout)
	got := 0
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		reply, err := tr.Receive(context.Background(), remaining)
		if err != nil {
			if got == 0 {
				rtt := time.Since(start).Seconds() * 1000
				log.LogExchange("send", target, false, rtt, err)
				return ferrors.WrapNetworkError(err, target)
			}
			break
		}
		got++
		rtt := time.Since(start).Seconds() * 1000
		log.LogExchange("send", target, true, rtt, nil)
		log.LogHex("reply", reply)
		if capture != nil {
			if err := capture.WriteReply(reply); err != nil {
				return err
			}
		}

		fmt.Fprintf(os.Stdout, "\nReply %d (%d bytes, %.1fms):\n", got, len(reply), rtt)
		f, err := frame.Parse(sp, reply)
		if err != nil {
			fmt.Fprintf(os.Stdout, "not parseable against this spec: %v\n%s\n", err, codec.ToHex(reply))
		} else if err := printFrame(f, flags.out); err != nil {
			return err
		}

		if !flags.listen {
			break
		}
	}
	if got == 0 {
		fmt.Fprintln(os.Stdout, "No replies before the timeout.")
	}
	return nil
}
