package config

// Configuration loading and validation for framecraft

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jcalloway/framecraft/internal/errors"
	"github.com/jcalloway/framecraft/internal/logging"
)

// EnvConfigPath overrides the default config file location. It is the
// only environment variable framecraft reads; everything else comes
// from the file or from flags.
const EnvConfigPath = "FRAMECRAFT_CONFIG"

// EmbeddedSpecName selects the built-in KNXnet/IP description.
const EmbeddedSpecName = "knxnet"

// DefaultPort is the KNXnet/IP control port.
const DefaultPort = 3671

// DefaultPath returns the config file location: the environment
// override when set, otherwise framecraft.yaml in the working
// directory.
func DefaultPath() string {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	return "framecraft.yaml"
}

// TargetConfig is the destination commands use when no address is
// given on the command line.
type TargetConfig struct {
	Host      string `yaml:"host,omitempty"`
	Port      int    `yaml:"port"`
	Transport string `yaml:"transport"` // "udp" or "tcp"
}

// Addr joins host and port into a dial address.
func (t TargetConfig) Addr() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

// SpecConfig selects the protocol description commands load and where
// additional descriptions are searched.
type SpecConfig struct {
	Default string   `yaml:"default"`         // embedded spec name or a file path
	Paths   []string `yaml:"paths,omitempty"` // directories searched for named specs
}

// Find resolves a spec name to a file path. A name that is already a
// readable path wins; otherwise each configured directory is searched
// for name, name.yaml and name.json. The embedded spec name never
// reaches this lookup.
func (s SpecConfig) Find(name string) (string, error) {
	if _, err := os.Stat(name); err == nil {
		return name, nil
	}
	for _, dir := range s.Paths {
		for _, candidate := range []string{name, name + ".yaml", name + ".json"} {
			p := filepath.Join(dir, candidate)
			if _, err := os.Stat(p); err == nil {
				return p, nil
			}
		}
	}
	return "", fmt.Errorf("spec %q not found (searched %d configured paths)", name, len(s.Paths))
}

// TimeoutConfig bounds blocking network operations.
type TimeoutConfig struct {
	ConnectMs  int `yaml:"connect_ms"`
	ExchangeMs int `yaml:"exchange_ms"`
	DiscoverMs int `yaml:"discover_ms"`
}

// Connect returns the connection timeout.
func (t TimeoutConfig) Connect() time.Duration { return time.Duration(t.ConnectMs) * time.Millisecond }

// Exchange returns the per-exchange reply timeout.
func (t TimeoutConfig) Exchange() time.Duration {
	return time.Duration(t.ExchangeMs) * time.Millisecond
}

// Discover returns the discovery collection window.
func (t TimeoutConfig) Discover() time.Duration {
	return time.Duration(t.DiscoverMs) * time.Millisecond
}

// LoggingConfig controls log formatting and verbosity.
type LoggingConfig struct {
	Level     string `yaml:"level,omitempty"`  // "silent","error","info","verbose","debug"
	Format    string `yaml:"format,omitempty"` // "text" or "json"
	LogEveryN int    `yaml:"log_every_n,omitempty"`
	File      string `yaml:"file,omitempty"`
}

// PcapConfig sets defaults for pcap export. The writer synthesizes
// Ethernet/IP/UDP headers around frame payloads; these fields seed the
// source side when a command does not say otherwise.
type PcapConfig struct {
	SourceIP   string `yaml:"source_ip,omitempty"`
	SourcePort int    `yaml:"source_port,omitempty"`
}

// FuzzConfig sets campaign defaults the fuzz command starts from.
type FuzzConfig struct {
	Iterations int     `yaml:"iterations,omitempty"`
	Rate       float64 `yaml:"rate,omitempty"`
	DelayMs    int     `yaml:"delay_ms,omitempty"`
}

// Config is the framecraft tool configuration.
type Config struct {
	Target   TargetConfig  `yaml:"target"`
	Spec     SpecConfig    `yaml:"spec"`
	Timeouts TimeoutConfig `yaml:"timeouts"`
	Logging  LoggingConfig `yaml:"logging,omitempty"`
	Pcap     PcapConfig    `yaml:"pcap,omitempty"`
	Fuzz     FuzzConfig    `yaml:"fuzz,omitempty"`
}

// CreateDefault returns the configuration commands run with when no
// config file exists.
func CreateDefault() *Config {
	return &Config{
		Target: TargetConfig{
			Port:      DefaultPort,
			Transport: "udp",
		},
		Spec: SpecConfig{
			Default: EmbeddedSpecName,
		},
		Timeouts: TimeoutConfig{
			ConnectMs:  3000,
			ExchangeMs: 3000,
			DiscoverMs: 2000,
		},
		Logging: LoggingConfig{
			Level:     "info",
			Format:    "text",
			LogEveryN: 1,
		},
		Fuzz: FuzzConfig{
			Iterations: 10,
			Rate:       0.1,
		},
	}
}

// WriteDefault writes the default configuration to a file.
func WriteDefault(path string) error {
	data, err := yaml.Marshal(CreateDefault())
	if err != nil {
		return fmt.Errorf("marshal default config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Load reads a configuration file, fills defaults and validates. If
// the file does not exist and autoCreate is set, a default file is
// written first; without autoCreate a missing file is an error.
func Load(path string, autoCreate bool) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, errors.WrapConfigError(fmt.Errorf("read config file: %w", err), path)
		}
		if !autoCreate {
			// Preserve the not-exist error so callers can fall back to
			// built-in defaults when no config file exists.
			return nil, errors.WrapConfigError(fmt.Errorf("config file not found: %w", err), path)
		}
		if err := WriteDefault(path); err != nil {
			return nil, fmt.Errorf("create default config: %w", err)
		}
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, errors.WrapConfigError(fmt.Errorf("read created config file: %w", err), path)
		}
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}

	applyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Target.Port == 0 {
		cfg.Target.Port = DefaultPort
	}
	if cfg.Target.Transport == "" {
		cfg.Target.Transport = "udp"
	}
	if cfg.Spec.Default == "" {
		cfg.Spec.Default = EmbeddedSpecName
	}
	if cfg.Timeouts.ConnectMs == 0 {
		cfg.Timeouts.ConnectMs = 3000
	}
	if cfg.Timeouts.ExchangeMs == 0 {
		cfg.Timeouts.ExchangeMs = 3000
	}
	if cfg.Timeouts.DiscoverMs == 0 {
		cfg.Timeouts.DiscoverMs = 2000
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Logging.LogEveryN == 0 {
		cfg.Logging.LogEveryN = 1
	}
	if cfg.Fuzz.Iterations == 0 {
		cfg.Fuzz.Iterations = 10
	}
	if cfg.Fuzz.Rate == 0 {
		cfg.Fuzz.Rate = 0.1
	}
}

// Validate checks a configuration after defaults are applied.
func Validate(cfg *Config) error {
	if cfg.Target.Port < 1 || cfg.Target.Port > 65535 {
		return fmt.Errorf("target.port must be between 1 and 65535, got %d", cfg.Target.Port)
	}
	if cfg.Target.Transport != "udp" && cfg.Target.Transport != "tcp" {
		return fmt.Errorf("target.transport must be 'udp' or 'tcp', got '%s'", cfg.Target.Transport)
	}
	if cfg.Timeouts.ConnectMs < 0 || cfg.Timeouts.ExchangeMs < 0 || cfg.Timeouts.DiscoverMs < 0 {
		return fmt.Errorf("timeouts values must be >= 0")
	}
	if _, err := logging.ParseLevel(cfg.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	switch cfg.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json")
	}
	if cfg.Logging.LogEveryN < 0 {
		return fmt.Errorf("logging.log_every_n must be >= 0")
	}
	if cfg.Pcap.SourcePort < 0 || cfg.Pcap.SourcePort > 65535 {
		return fmt.Errorf("pcap.source_port must be between 0 and 65535, got %d", cfg.Pcap.SourcePort)
	}
	if cfg.Pcap.SourceIP != "" && net.ParseIP(cfg.Pcap.SourceIP) == nil {
		return fmt.Errorf("pcap.source_ip '%s' is not a valid IP address", cfg.Pcap.SourceIP)
	}
	if cfg.Fuzz.Iterations < 0 {
		return fmt.Errorf("fuzz.iterations must be >= 0")
	}
	if cfg.Fuzz.Rate < 0 || cfg.Fuzz.Rate > 1 {
		return fmt.Errorf("fuzz.rate must be between 0 and 1")
	}
	if cfg.Fuzz.DelayMs < 0 {
		return fmt.Errorf("fuzz.delay_ms must be >= 0")
	}
	return nil
}
