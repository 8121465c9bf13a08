package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/jcalloway/framecraft/internal/config"
	"github.com/jcalloway/framecraft/internal/logging"
	"github.com/jcalloway/framecraft/internal/render"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// rootOptions are the persistent flags every subcommand inherits.
type rootOptions struct {
	configPath string
	logLevel   string
	logFile    string
	noColor    bool
}

var (
	rootOpts rootOptions
	cfg      *config.Config
	log      *logging.Logger
)

// setup loads configuration and builds the logger before any
// subcommand runs. A missing default config file falls back to
// built-in defaults; a missing --config file is an error.
func setup(cmd *cobra.Command, args []string) error {
	if cmd.Name() == "version" {
		return nil
	}
	path := rootOpts.configPath
	explicit := path != ""
	if path == "" {
		path = config.DefaultPath()
	}

	loaded, err := config.Load(path, false)
	switch {
	case err == nil:
		cfg = loaded
	case !explicit && errors.Is(err, fs.ErrNotExist):
		cfg = config.CreateDefault()
	default:
		return err
	}

	level := cfg.Logging.Level
	if rootOpts.logLevel != "" {
		level = rootOpts.logLevel
	}
	parsed, err := logging.ParseLevel(level)
	if err != nil {
		return err
	}
	logFile := cfg.Logging.File
	if rootOpts.logFile != "" {
		logFile = rootOpts.logFile
	}
	log, err = logging.NewLoggerWithOptions(parsed, logFile, cfg.Logging.Format, cfg.Logging.LogEveryN)
	if err != nil {
		return err
	}

	if rootOpts.noColor {
		render.Plain(true)
	}
	return nil
}

func teardown(cmd *cobra.Command, args []string) {
	if log != nil {
		_ = log.Close()
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "framecraft",
		Short: "Craft, dissect and fuzz protocol frames from YAML specifications",
		Long: `Framecraft builds network protocol frames from declarative YAML
specifications, with KNXnet/IP built in. Frames stay editable field by
field up to the moment they serialize, so the tool doubles as a
dissector, a crafting console and a dumb fuzzer for protocol testing.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setup,
		PersistentPostRun: teardown,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&rootOpts.configPath, "config", "", "Config file (default framecraft.yaml, env FRAMECRAFT_CONFIG)")
	pf.StringVar(&rootOpts.logLevel, "log-level", "", "Log level: silent|error|info|verbose|debug")
	pf.StringVar(&rootOpts.logFile, "log-file", "", "Also write logs to this file")
	pf.BoolVar(&rootOpts.noColor, "no-color", false, "Disable styled output")

	rootCmd.AddCommand(newCraftCmd())
	rootCmd.AddCommand(newParseCmd())
	rootCmd.AddCommand(newSendCmd())
	rootCmd.AddCommand(newDiscoverCmd())
	rootCmd.AddCommand(newFuzzCmd())
	rootCmd.AddCommand(newSpecsCmd())
	rootCmd.AddCommand(newInspectCmd())
	rootCmd.AddCommand(newPcapCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
