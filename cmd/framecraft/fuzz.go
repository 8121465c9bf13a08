package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jcalloway/framecraft/fuzz"
	"github.com/jcalloway/framecraft/internal/artifact"
	"github.com/jcalloway/framecraft/internal/logging"
	"github.com/jcalloway/framecraft/internal/pcapio"
	"github.com/jcalloway/framecraft/internal/progress"
	"github.com/jcalloway/framecraft/transport"
)

type fuzzFlags struct {
	specName     string
	target       string
	trans        string
	iterations   int
	seed         int64
	rate         float64
	delayMs      int
	stopOnError  bool
	manifestPath string
	saveManifest string
	changelog    string
	pcapFile     string
	outDir       string
}

func newFuzzCmd() *cobra.Command {
	flags := &fuzzFlags{}

	cmd := &cobra.Command{
		Use:   "fuzz [frame type]...",
		Short: "Mutate frames and send them at a target",
		Long: `Run a mutation campaign: enumerate frame shapes from the
specification, flip random field bytes in each, and send the results.
Length fields are left alone so frames stay plausible enough to reach
the parser under test.

Without type arguments every frame shape the specification can produce
is fuzzed. The campaign is reproducible: the seed and rate land in the
manifest, and --save-manifest writes it for an exact replay with
--manifest. --changelog records every mutation as YAML so a crash can
be traced back to the bytes that caused it. --out-dir keeps everything
from one run together: a timestamped directory with the manifest, the
changelog, a pcap of every sent frame and a summary.

Interrupting with Ctrl-C stops the run and still prints the summary.`,
		Example: `  # Fuzz every frame shape, 10 iterations each
  framecraft fuzz --target 192.168.1.10:3671

  # Reproducible run against one frame type, keep all artifacts
  framecraft fuzz "CONNECT REQUEST" --target 192.168.1.10:3671 \
    --seed 42 --iterations 100 --out-dir runs/

  # Replay a recorded campaign
  framecraft fuzz --manifest runs/20250817-142310/manifest.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFuzz(args, flags)
		},
	}

	cmd.Flags().StringVar(&flags.specName, "spec", "", "Specification: embedded name or file path (default from config)")
	cmd.Flags().StringVar(&flags.target, "target", "", "Destination host:port (default from config)")
	cmd.Flags().StringVar(&flags.trans, "transport", "", "Transport: udp|tcp (default from config)")
	cmd.Flags().IntVar(&flags.iterations, "iterations", 0, "Mutation trials per frame shape (default from config)")
	cmd.Flags().Int64Var(&flags.seed, "seed", 0, "Random seed; 0 picks one and reports it")
	cmd.Flags().Float64Var(&flags.rate, "rate", 0, "Fraction of mutable fields to touch per frame, 0..1 (default from config)")
	cmd.Flags().IntVar(&flags.delayMs, "delay-ms", 0, "Pause between sends in milliseconds (default from config)")
	cmd.Flags().BoolVar(&flags.stopOnError, "stop-on-error", false, "Abort the campaign on the first send failure")
	cmd.Flags().StringVar(&flags.manifestPath, "manifest", "", "Run the campaign described by this manifest file")
	cmd.Flags().StringVar(&flags.saveManifest, "save-manifest", "", "Write the effective manifest here for later replay")
	cmd.Flags().StringVar(&flags.changelog, "changelog", "", "Append one YAML record per mutation to this file")
	cmd.Flags().StringVar(&flags.pcapFile, "pcap", "", "Record every sent frame to this pcap file")
	cmd.Flags().StringVar(&flags.outDir, "out-dir", "", "Collect manifest, changelog, pcap and summary in a run directory here")

	return cmd
}

func runFuzz(types []string, flags *fuzzFlags) error {
	manifest, err := fuzzManifest(types, flags)
	if err != nil {
		return err
	}
	sp, err := loadSpec(manifest.Spec)
	if err != nil {
		return err
	}
	tr, err := transport.New(transportKind(manifest.Transport))
	if err != nil {
		return err
	}
	campaign, err := fuzz.NewCampaign(manifest, sp, tr)
	if err != nil {
		return err
	}
	manifest = campaign.Manifest()
	log.LogStartup("fuzz", manifest.Target, manifest.Spec, rootOpts.configPath)

	// A run directory supplies default paths for the per-run files;
	// explicit flags still win and are recorded as given.
	var run *artifact.Run
	changelogPath := flags.changelog
	pcapPath := flags.pcapFile
	if flags.outDir != "" {
		run, err = artifact.NewRun(flags.outDir, manifest)
		if err != nil {
			return err
		}
		if err := run.WriteManifest(); err != nil {
			return err
		}
		if changelogPath == "" {
			changelogPath = run.ChangelogPath()
		}
		if pcapPath == "" {
			pcapPath = run.CapturePath()
		}
		run.SetChangelog(changelogPath)
		run.SetCapture(pcapPath)
	}

	if flags.saveManifest != "" {
		if err := manifest.Save(flags.saveManifest); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Manifest saved to %s\n", flags.saveManifest)
	}

	params := fuzz.Params{Logger: log}
	if changelogPath != "" {
		f, err := os.Create(changelogPath)
		if err != nil {
			return fmt.Errorf("create changelog: %w", err)
		}
		defer f.Close()
		params.Changelog = f
	}
	if pcapPath != "" {
		w, err := pcapio.Create(pcapPath, pcapSource(), pcapDestination(manifest.Target))
		if err != nil {
			return err
		}
		defer w.Close()
		params.Capture = func(payload []byte) { _ = w.WriteFrame(payload) }
	}

	// The meter would interleave with per-send log lines, so it only
	// runs between silent and verbose.
	var meter *progress.Meter
	if lvl := log.GetLevel(); lvl > logging.LogLevelSilent && lvl < logging.LogLevelVerbose {
		params.Progress = func(done, total int) {
			if meter == nil {
				meter = progress.NewMeter(os.Stderr, total, "fuzzing")
			}
			meter.Set(done)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		<-sigChan
		fmt.Fprintf(os.Stderr, "\nReceived interrupt, stopping campaign...\n")
		cancel()
	}()

	fmt.Fprintf(os.Stdout, "Campaign %s against %s (seed %d, rate %.2f)\n",
		manifest.CampaignID, manifest.Target, manifest.Seed, manifest.Rate)

	result, runErr := campaign.Run(ctx, params)
	if meter != nil {
		meter.Finish()
	}

	fmt.Fprintln(os.Stdout)
	fmt.Fprintf(os.Stdout, "Campaign finished\n")
	fmt.Fprintf(os.Stdout, "  Frame shapes: %d\n", result.Shapes)
	fmt.Fprintf(os.Stdout, "  Frames sent:  %d\n", result.Sent)
	fmt.Fprintf(os.Stdout, "  Send errors:  %d\n", result.Errors)
	fmt.Fprintf(os.Stdout, "  Elapsed:      %.1fs\n", result.Elapsed.Seconds())

	if run != nil {
		if err := run.Finalize(result, runErr); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "  Artifacts:    %s\n", run.Dir())
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

// fuzzManifest assembles the campaign manifest: a file when --manifest
// is given, otherwise flags layered over the configured defaults.
func fuzzManifest(types []string, flags *fuzzFlags) (fuzz.Manifest, error) {
	if flags.manifestPath != "" {
		return fuzz.LoadManifest(flags.manifestPath)
	}

	target := flags.target
	if target == "" {
		if cfg.Target.Host == "" {
			return fuzz.Manifest{}, fmt.Errorf("no target: pass --target or set target.host in the config")
		}
		target = cfg.Target.Addr()
	}

	m := fuzz.NewManifest(target)
	m.Spec = flags.specName
	m.Types = types
	m.Iterations = cfg.Fuzz.Iterations
	m.Rate = cfg.Fuzz.Rate
	m.DelayMs = cfg.Fuzz.DelayMs
	m.StopOnError = flags.stopOnError
	if flags.trans != "" {
		m.Transport = flags.trans
	} else if cfg.Target.Transport != "" {
		m.Transport = cfg.Target.Transport
	}
	if flags.iterations > 0 {
		m.Iterations = flags.iterations
	}
	if flags.seed != 0 {
		m.Seed = flags.seed
	}
	if flags.rate > 0 {
		m.Rate = flags.rate
	}
	if flags.delayMs > 0 {
		m.DelayMs = flags.delayMs
	}
	return m, nil
}
