package main

import (
	"bytes"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/jcalloway/framecraft/internal/config"
	"github.com/jcalloway/framecraft/internal/logging"
)

func setTestGlobals(t *testing.T) {
	t.Helper()
	cfg = config.CreateDefault()
	l, err := logging.NewLogger(logging.LogLevelSilent, "")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	log = l
}

func captureStdout(w io.Writer) func() {
	orig := os.Stdout
	r, wpipe, err := os.Pipe()
	if err != nil {
		panic(err)
	}
	os.Stdout = wpipe

	done := make(chan struct{})
	go func() {
		_, _ = io.Copy(w, r)
		close(done)
	}()

	return func() {
		_ = wpipe.Close()
		<-done
		os.Stdout = orig
	}
}

func TestRunCraftHexOutput(t *testing.T) {
	setTestGlobals(t)
	buf := &bytes.Buffer{}
	restore := captureStdout(buf)
	err := runCraft("SEARCH REQUEST", &craftFlags{
		out:  "hex",
		sets: []string{"ip address=192.168.1.10", "port=58967"},
	})
	restore()
	if err != nil {
		t.Fatalf("runCraft failed: %v", err)
	}
	got := strings.TrimSpace(buf.String())
	if got != "06100201000e0801c0a8010ae657" {
		t.Fatalf("crafted hex: got %s", got)
	}
}

func TestRunCraftKeepsOverriddenTotalLength(t *testing.T) {
	setTestGlobals(t)
	buf := &bytes.Buffer{}
	restore := captureStdout(buf)
	err := runCraft("DESCRIPTION REQUEST", &craftFlags{
		out:  "hex",
		sets: []string{"total length=9999"},
	})
	restore()
	if err != nil {
		t.Fatalf("runCraft failed: %v", err)
	}
	got := strings.TrimSpace(buf.String())
	if got != "06100203270f0801000000000000" {
		t.Fatalf("crafted hex: got %s", got)
	}
}

func TestRunCraftUnknownTypeSuggests(t *testing.T) {
	setTestGlobals(t)
	restore := captureStdout(io.Discard)
	err := runCraft("SEARCH DEMAND", &craftFlags{out: "hex"})
	restore()
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "SEARCH REQUEST") {
		t.Fatalf("error should list known types, got: %v", err)
	}
}

func TestRunParseJSON(t *testing.T) {
	setTestGlobals(t)
	buf := &bytes.Buffer{}
	restore := captureStdout(buf)
	err := runParse("06100201000e0801c0a8010ae657", &parseFlags{out: "json"})
	restore()
	if err != nil {
		t.Fatalf("runParse failed: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, `"SEARCH REQUEST"`) {
		t.Fatalf("JSON output missing frame type:\n%s", out)
	}
	if !strings.Contains(out, `"c0a8010a"`) {
		t.Fatalf("JSON output missing ip address bytes:\n%s", out)
	}
}

func TestRunParseRejectsBadFormat(t *testing.T) {
	setTestGlobals(t)
	restore := captureStdout(io.Discard)
	err := runParse("06100201000e0801000000000000", &parseFlags{out: "yaml"})
	restore()
	if err == nil || !strings.Contains(err.Error(), "invalid output format") {
		t.Fatalf("expected format error, got: %v", err)
	}
}

func TestCraftParsePcapRoundTrip(t *testing.T) {
	setTestGlobals(t)
	path := filepath.Join(t.TempDir(), "crafted.pcap")

	restore := captureStdout(io.Discard)
	err := runCraft("CONNECT REQUEST", &craftFlags{out: "hex", pcapFile: path})
	restore()
	if err != nil {
		t.Fatalf("runCraft failed: %v", err)
	}

	buf := &bytes.Buffer{}
	restore = captureStdout(buf)
	err = runParse("", &parseFlags{pcapFile: path, out: "json"})
	restore()
	if err != nil {
		t.Fatalf("runParse failed: %v", err)
	}
	if !strings.Contains(buf.String(), `"CONNECT REQUEST"`) {
		t.Fatalf("capture round trip lost the frame type:\n%s", buf.String())
	}
}

func TestRunSpecsShowEmbedded(t *testing.T) {
	setTestGlobals(t)
	buf := &bytes.Buffer{}
	restore := captureStdout(buf)
	err := runSpecsShow("", &specsShowFlags{})
	restore()
	if err != nil {
		t.Fatalf("runSpecsShow failed: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Frame template:", "HEADER", "service identifier", "TUNNELING REQUEST", "Frame shapes"} {
		if !strings.Contains(out, want) {
			t.Fatalf("show output missing %q:\n%s", want, out)
		}
	}
}

func TestRunSpecsShowBlockFilter(t *testing.T) {
	setTestGlobals(t)
	buf := &bytes.Buffer{}
	restore := captureStdout(buf)
	err := runSpecsShow("", &specsShowFlags{blockName: "connect request"})
	restore()
	if err != nil {
		t.Fatalf("runSpecsShow failed: %v", err)
	}
	if !strings.Contains(buf.String(), "control endpoint") {
		t.Fatalf("block filter output missing field:\n%s", buf.String())
	}

	restore = captureStdout(io.Discard)
	err = runSpecsShow("", &specsShowFlags{blockName: "NO SUCH BLOCK"})
	restore()
	if err == nil || !strings.Contains(err.Error(), "unknown block") {
		t.Fatalf("expected unknown block error, got: %v", err)
	}
}

func TestRunSpecsList(t *testing.T) {
	setTestGlobals(t)
	buf := &bytes.Buffer{}
	restore := captureStdout(buf)
	err := runSpecsList()
	restore()
	if err != nil {
		t.Fatalf("runSpecsList failed: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "knxnet") || !strings.Contains(out, "embedded") {
		t.Fatalf("list output missing embedded spec:\n%s", out)
	}
}

func TestSpecEntriesIncludeConfiguredPaths(t *testing.T) {
	setTestGlobals(t)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "myproto.yaml"), []byte("frame: []\n"), 0o644); err != nil {
		t.Fatalf("write spec file: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write stray file: %v", err)
	}
	cfg.Spec.Paths = []string{dir}

	entries := specEntries()
	if len(entries) != 2 {
		t.Fatalf("entries: got %d want 2 (%v)", len(entries), entries)
	}
	if entries[0].name != config.EmbeddedSpecName || entries[0].source != "embedded" {
		t.Fatalf("first entry should be the embedded spec, got %+v", entries[0])
	}
	if entries[1].name != "myproto" {
		t.Fatalf("second entry: got %+v", entries[1])
	}
}

func TestFuzzManifestFromFlags(t *testing.T) {
	setTestGlobals(t)
	flags := &fuzzFlags{
		target:     "10.0.0.5:3671",
		iterations: 7,
		seed:       42,
		rate:       0.5,
		delayMs:    3,
	}
	m, err := fuzzManifest([]string{"SEARCH REQUEST"}, flags)
	if err != nil {
		t.Fatalf("fuzzManifest failed: %v", err)
	}
	if m.Target != "10.0.0.5:3671" {
		t.Fatalf("target: got %s", m.Target)
	}
	if m.Iterations != 7 || m.Seed != 42 || m.Rate != 0.5 || m.DelayMs != 3 {
		t.Fatalf("flag overrides not applied: %+v", m)
	}
	if len(m.Types) != 1 || m.Types[0] != "SEARCH REQUEST" {
		t.Fatalf("types: got %v", m.Types)
	}
	if m.Transport != "udp" {
		t.Fatalf("transport: got %s", m.Transport)
	}
	if _, err := uuid.Parse(m.CampaignID); err != nil {
		t.Fatalf("campaign id %q: %v", m.CampaignID, err)
	}
}

func TestFuzzManifestRequiresTarget(t *testing.T) {
	setTestGlobals(t)
	cfg.Target.Host = ""
	_, err := fuzzManifest(nil, &fuzzFlags{})
	if err == nil || !strings.Contains(err.Error(), "no target") {
		t.Fatalf("expected missing target error, got: %v", err)
	}
}

func TestFuzzManifestFromFile(t *testing.T) {
	setTestGlobals(t)
	path := filepath.Join(t.TempDir(), "campaign.yaml")
	doc := "api_version: v1\ntarget: 10.0.0.9:3671\ntypes: [\"TUNNELING REQUEST\"]\niterations: 3\nseed: 99\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	m, err := fuzzManifest(nil, &fuzzFlags{manifestPath: path})
	if err != nil {
		t.Fatalf("fuzzManifest failed: %v", err)
	}
	if m.Target != "10.0.0.9:3671" || m.Iterations != 3 || m.Seed != 99 {
		t.Fatalf("loaded manifest: %+v", m)
	}
	if len(m.Types) != 1 || m.Types[0] != "TUNNELING REQUEST" {
		t.Fatalf("loaded types: %v", m.Types)
	}
}

func TestRunFuzzOutDir(t *testing.T) {
	setTestGlobals(t)
	lc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer lc.Close()
	go func() {
		buf := make([]byte, 2048)
		for {
			if _, _, err := lc.ReadFrom(buf); err != nil {
				return
			}
		}
	}()

	outDir := filepath.Join(t.TempDir(), "runs")
	restore := captureStdout(io.Discard)
	err = runFuzz([]string{"SEARCH REQUEST"}, &fuzzFlags{
		target:     lc.LocalAddr().String(),
		iterations: 2,
		seed:       7,
		rate:       0.5,
		outDir:     outDir,
	})
	restore()
	if err != nil {
		t.Fatalf("runFuzz failed: %v", err)
	}

	entries, err := os.ReadDir(outDir)
	if err != nil {
		t.Fatalf("read out dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one run directory, got %d", len(entries))
	}
	runDir := filepath.Join(outDir, entries[0].Name())
	for _, name := range []string{"manifest.yaml", "changelog.yaml", "capture.pcap", "summary.txt", "run.json"} {
		if _, err := os.Stat(filepath.Join(runDir, name)); err != nil {
			t.Fatalf("missing artifact %s: %v", name, err)
		}
	}

	record, err := os.ReadFile(filepath.Join(runDir, "run.json"))
	if err != nil {
		t.Fatalf("read run.json: %v", err)
	}
	if !strings.Contains(string(record), `"sent": 2`) {
		t.Fatalf("run.json should record 2 sent frames:\n%s", record)
	}
}

func TestVersionJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	restore := captureStdout(buf)
	cmd := newVersionCmd()
	cmd.SetArgs([]string{"--json"})
	err := cmd.Execute()
	restore()
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, `"version"`) || !strings.Contains(out, `"commit"`) {
		t.Fatalf("JSON version output: %s", out)
	}
}

func TestPcapDestination(t *testing.T) {
	ep := pcapDestination("192.168.1.10:3671")
	if ep.IP.String() != "192.168.1.10" || ep.Port != 3671 {
		t.Fatalf("endpoint: %+v", ep)
	}
	if ep := pcapDestination("not an address"); ep.IP != nil || ep.Port != 0 {
		t.Fatalf("bad target should map to the zero endpoint, got %+v", ep)
	}
}
