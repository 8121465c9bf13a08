// Package artifact lays out the on-disk record of a fuzz campaign
// run: a timestamped directory holding the manifest, the mutation
// changelog, the packet capture and a machine-readable result file.
package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jcalloway/framecraft/fuzz"
)

// Fixed file names inside a run directory.
const (
	ManifestFile  = "manifest.yaml"
	ChangelogFile = "changelog.yaml"
	CaptureFile   = "capture.pcap"
	SummaryFile   = "summary.txt"
	RecordFile    = "run.json"
)

// Record is the run metadata written to run.json.
type Record struct {
	RunID      string    `json:"run_id"`
	CampaignID string    `json:"campaign_id"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
	Duration   string    `json:"duration"`

	Spec       string  `json:"spec,omitempty"`
	Target     string  `json:"target"`
	Transport  string  `json:"transport,omitempty"`
	Iterations int     `json:"iterations"`
	Seed       int64   `json:"seed"`
	Rate       float64 `json:"rate"`

	Stats Stats  `json:"stats"`
	Error string `json:"error,omitempty"`

	Artifacts Paths `json:"artifacts"`
}

// Stats carries the campaign counters into the record.
type Stats struct {
	Shapes  int    `json:"shapes"`
	Sent    int    `json:"sent"`
	Errors  int    `json:"errors"`
	Elapsed string `json:"elapsed"`
}

// Paths lists the files a run produced. Entries are relative to the
// run directory unless a flag redirected them elsewhere.
type Paths struct {
	Manifest  string `json:"manifest,omitempty"`
	Changelog string `json:"changelog,omitempty"`
	Capture   string `json:"capture,omitempty"`
	Summary   string `json:"summary"`
	Record    string `json:"record"`
}

// Run owns one campaign's output directory.
type Run struct {
	dir      string
	manifest fuzz.Manifest
	record   Record
}

// NewRun creates a timestamped run directory under dir and seeds the
// record from the manifest. Call it after the campaign normalized the
// manifest so the effective seed and rate land in the record.
func NewRun(dir string, m fuzz.Manifest) (*Run, error) {
	id := time.Now().Format("20060102-150405")
	runDir := filepath.Join(dir, id)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return nil, fmt.Errorf("create run directory: %w", err)
	}

	return &Run{
		dir:      runDir,
		manifest: m,
		record: Record{
			RunID:      id,
			CampaignID: m.CampaignID,
			StartTime:  time.Now(),
			Spec:       m.Spec,
			Target:     m.Target,
			Transport:  m.Transport,
			Iterations: m.Iterations,
			Seed:       m.Seed,
			Rate:       m.Rate,
			Artifacts: Paths{
				Summary: SummaryFile,
				Record:  RecordFile,
			},
		},
	}, nil
}

// Dir returns the run directory path.
func (r *Run) Dir() string { return r.dir }

// ID returns the run identifier, which doubles as the directory name.
func (r *Run) ID() string { return r.record.RunID }

// ManifestPath returns where the manifest copy belongs.
func (r *Run) ManifestPath() string { return filepath.Join(r.dir, ManifestFile) }

// ChangelogPath returns where the mutation changelog belongs.
func (r *Run) ChangelogPath() string { return filepath.Join(r.dir, ChangelogFile) }

// CapturePath returns where the packet capture belongs.
func (r *Run) CapturePath() string { return filepath.Join(r.dir, CaptureFile) }

// SummaryPath returns where the human-readable summary belongs.
func (r *Run) SummaryPath() string { return filepath.Join(r.dir, SummaryFile) }

// RecordPath returns where run.json belongs.
func (r *Run) RecordPath() string { return filepath.Join(r.dir, RecordFile) }

// WriteManifest saves the campaign manifest into the run directory so
// the run can be replayed from its own artifacts.
func (r *Run) WriteManifest() error {
	if err := r.manifest.Save(r.ManifestPath()); err != nil {
		return err
	}
	r.record.Artifacts.Manifest = ManifestFile
	return nil
}

// SetChangelog records where the changelog was written.
func (r *Run) SetChangelog(path string) {
	r.record.Artifacts.Changelog = r.rel(path)
}

// SetCapture records where the packet capture was written.
func (r *Run) SetCapture(path string) {
	r.record.Artifacts.Capture = r.rel(path)
}

// rel shortens paths inside the run directory to their base name and
// leaves redirected paths untouched.
func (r *Run) rel(path string) string {
	if filepath.Dir(path) == r.dir {
		return filepath.Base(path)
	}
	return path
}

// Finalize stamps the end time, folds the campaign result into the
// record and writes summary.txt and run.json.
func (r *Run) Finalize(res fuzz.Result, runErr error) error {
	r.record.EndTime = time.Now()
	r.record.Duration = r.record.EndTime.Sub(r.record.StartTime).String()
	r.record.Stats = Stats{
		Shapes:  res.Shapes,
		Sent:    res.Sent,
		Errors:  res.Errors,
		Elapsed: res.Elapsed.String(),
	}
	if runErr != nil {
		r.record.Error = runErr.Error()
	}

	if err := r.writeSummary(); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	if err := r.writeRecord(); err != nil {
		return fmt.Errorf("write run record: %w", err)
	}
	return nil
}

// writeSummary writes the human-readable run report.
func (r *Run) writeSummary() error {
	f, err := os.Create(r.SummaryPath())
	if err != nil {
		return err
	}
	defer f.Close()

	fmt.Fprintf(f, "Framecraft Campaign Summary\n")
	fmt.Fprintf(f, "===========================\n\n")

	fmt.Fprintf(f, "Run ID:      %s\n", r.record.RunID)
	fmt.Fprintf(f, "Campaign ID: %s\n", r.record.CampaignID)
	fmt.Fprintf(f, "Start Time:  %s\n", r.record.StartTime.Format(time.RFC3339))
	fmt.Fprintf(f, "End Time:    %s\n", r.record.EndTime.Format(time.RFC3339))
	fmt.Fprintf(f, "Duration:    %s\n\n", r.record.Duration)

	if r.record.Spec != "" {
		fmt.Fprintf(f, "Spec:       %s\n", r.record.Spec)
	}
	fmt.Fprintf(f, "Target:     %s\n", r.record.Target)
	if r.record.Transport != "" {
		fmt.Fprintf(f, "Transport:  %s\n", r.record.Transport)
	}
	fmt.Fprintf(f, "Iterations: %d per shape\n", r.record.Iterations)
	fmt.Fprintf(f, "Seed:       %d\n", r.record.Seed)
	fmt.Fprintf(f, "Rate:       %.2f\n\n", r.record.Rate)

	fmt.Fprintf(f, "Results\n")
	fmt.Fprintf(f, "-------\n")
	fmt.Fprintf(f, "Frame shapes: %d\n", r.record.Stats.Shapes)
	fmt.Fprintf(f, "Sent:         %d\n", r.record.Stats.Sent)
	fmt.Fprintf(f, "Send errors:  %d\n\n", r.record.Stats.Errors)

	if r.record.Error != "" {
		fmt.Fprintf(f, "Error: %s\n\n", r.record.Error)
	}

	fmt.Fprintf(f, "Artifacts\n")
	fmt.Fprintf(f, "---------\n")
	if r.record.Artifacts.Manifest != "" {
		fmt.Fprintf(f, "Manifest:  %s\n", r.record.Artifacts.Manifest)
	}
	if r.record.Artifacts.Changelog != "" {
		fmt.Fprintf(f, "Changelog: %s\n", r.record.Artifacts.Changelog)
	}
	if r.record.Artifacts.Capture != "" {
		fmt.Fprintf(f, "Capture:   %s\n", r.record.Artifacts.Capture)
	}
	fmt.Fprintf(f, "Summary:   %s\n", r.record.Artifacts.Summary)
	fmt.Fprintf(f, "Record:    %s\n", r.record.Artifacts.Record)

	return nil
}

// writeRecord writes the run metadata as JSON.
func (r *Run) writeRecord() error {
	data, err := json.MarshalIndent(r.record, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(r.RecordPath(), data, 0o644)
}
