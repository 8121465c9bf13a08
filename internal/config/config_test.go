package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := CreateDefault()
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "default config",
			mutate:  func(cfg *Config) {},
			wantErr: false,
		},
		{
			name:    "port zero",
			mutate:  func(cfg *Config) { cfg.Target.Port = 0 },
			wantErr: true,
		},
		{
			name:    "port too large",
			mutate:  func(cfg *Config) { cfg.Target.Port = 70000 },
			wantErr: true,
		},
		{
			name:    "bad transport",
			mutate:  func(cfg *Config) { cfg.Target.Transport = "serial" },
			wantErr: true,
		},
		{
			name:    "tcp transport",
			mutate:  func(cfg *Config) { cfg.Target.Transport = "tcp" },
			wantErr: false,
		},
		{
			name:    "negative timeout",
			mutate:  func(cfg *Config) { cfg.Timeouts.ExchangeMs = -1 },
			wantErr: true,
		},
		{
			name:    "bad log level",
			mutate:  func(cfg *Config) { cfg.Logging.Level = "chatty" },
			wantErr: true,
		},
		{
			name:    "bad log format",
			mutate:  func(cfg *Config) { cfg.Logging.Format = "xml" },
			wantErr: true,
		},
		{
			name:    "bad pcap source ip",
			mutate:  func(cfg *Config) { cfg.Pcap.SourceIP = "not-an-ip" },
			wantErr: true,
		},
		{
			name:    "valid pcap source",
			mutate:  func(cfg *Config) { cfg.Pcap.SourceIP = "192.168.1.10"; cfg.Pcap.SourcePort = 50000 },
			wantErr: false,
		},
		{
			name:    "fuzz rate above one",
			mutate:  func(cfg *Config) { cfg.Fuzz.Rate = 1.5 },
			wantErr: true,
		},
		{
			name:    "negative fuzz delay",
			mutate:  func(cfg *Config) { cfg.Fuzz.DelayMs = -5 },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := Validate(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "framecraft.yaml")
	content := `
target:
  host: "192.168.1.50"
  port: 3671
  transport: udp

spec:
  default: knxnet

logging:
  level: verbose
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path, false)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Target.Host != "192.168.1.50" {
		t.Errorf("target host: got %q, want %q", cfg.Target.Host, "192.168.1.50")
	}
	if got := cfg.Target.Addr(); got != "192.168.1.50:3671" {
		t.Errorf("target addr: got %q, want %q", got, "192.168.1.50:3671")
	}
	if cfg.Logging.Level != "verbose" {
		t.Errorf("logging level: got %q, want verbose", cfg.Logging.Level)
	}
}

func TestLoadDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "framecraft.yaml")
	content := `
target:
  host: "10.0.0.2"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path, false)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Target.Port != DefaultPort {
		t.Errorf("target port: got %d, want %d (default)", cfg.Target.Port, DefaultPort)
	}
	if cfg.Target.Transport != "udp" {
		t.Errorf("target transport: got %q, want udp (default)", cfg.Target.Transport)
	}
	if cfg.Spec.Default != EmbeddedSpecName {
		t.Errorf("spec default: got %q, want %q", cfg.Spec.Default, EmbeddedSpecName)
	}
	if got := cfg.Timeouts.Exchange(); got != 3*time.Second {
		t.Errorf("exchange timeout: got %v, want 3s (default)", got)
	}
	if cfg.Fuzz.Iterations != 10 || cfg.Fuzz.Rate != 0.1 {
		t.Errorf("fuzz defaults: got %d/%v, want 10/0.1", cfg.Fuzz.Iterations, cfg.Fuzz.Rate)
	}
}

func TestLoadMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope.yaml")

	if _, err := Load(path, false); err == nil {
		t.Fatal("Load without autoCreate should fail on a missing file")
	}

	cfg, err := Load(path, true)
	if err != nil {
		t.Fatalf("Load with autoCreate failed: %v", err)
	}
	if cfg.Target.Port != DefaultPort {
		t.Errorf("created config port: got %d, want %d", cfg.Target.Port, DefaultPort)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("default config file was not written: %v", err)
	}
}

func TestLoadInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "framecraft.yaml")
	content := `
target:
  host: "10.0.0.2"
  transport: carrier-pigeon
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := Load(path, false); err == nil {
		t.Fatal("Load should reject an unknown transport")
	}
}

func TestDefaultPathEnvOverride(t *testing.T) {
	t.Setenv(EnvConfigPath, "/tmp/other.yaml")
	if got := DefaultPath(); got != "/tmp/other.yaml" {
		t.Errorf("DefaultPath with env: got %q", got)
	}

	t.Setenv(EnvConfigPath, "")
	if got := DefaultPath(); got != "framecraft.yaml" {
		t.Errorf("DefaultPath without env: got %q", got)
	}
}

func TestSpecFind(t *testing.T) {
	dir := t.TempDir()
	specPath := filepath.Join(dir, "custom.yaml")
	if err := os.WriteFile(specPath, []byte("frame: []\nblocks: {}\ncodes: {}\n"), 0o644); err != nil {
		t.Fatalf("write spec: %v", err)
	}

	s := SpecConfig{Paths: []string{dir}}

	if got, err := s.Find(specPath); err != nil || got != specPath {
		t.Errorf("Find(literal path): got %q, %v", got, err)
	}
	if got, err := s.Find("custom"); err != nil || got != specPath {
		t.Errorf("Find(name): got %q, %v", got, err)
	}
	if _, err := s.Find("missing"); err == nil {
		t.Error("Find(missing) should fail")
	}
}
