package fuzz

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/jcalloway/framecraft/frame"
	"github.com/jcalloway/framecraft/internal/logging"
	"github.com/jcalloway/framecraft/spec"
	"github.com/jcalloway/framecraft/transport"
)

// APIVersion is the current campaign manifest schema version.
const APIVersion = "v1"

// DefaultIterations is the number of mutation trials per generated
// frame shape when the manifest does not say otherwise.
const DefaultIterations = 10

// Manifest describes a mutation campaign. It round-trips through YAML
// so a campaign can be saved, reviewed and replayed. The campaign id
// is a UUID kept in string form for the document.
type Manifest struct {
	APIVersion  string   `yaml:"api_version"`
	CampaignID  string   `yaml:"campaign_id"`
	Spec        string   `yaml:"spec,omitempty"`
	Target      string   `yaml:"target"`
	Transport   string   `yaml:"transport,omitempty"`
	Types       []string `yaml:"types,omitempty"`
	Iterations  int      `yaml:"iterations,omitempty"`
	Seed        int64    `yaml:"seed,omitempty"`
	Rate        float64  `yaml:"rate,omitempty"`
	DelayMs     int      `yaml:"delay_ms,omitempty"`
	StopOnError bool     `yaml:"stop_on_error,omitempty"`
}

// NewManifest returns a manifest for target with defaults filled in
// and a fresh campaign id.
func NewManifest(target string) Manifest {
	return Manifest{
		APIVersion: APIVersion,
		CampaignID: uuid.New().String(),
		Target:     target,
		Transport:  string(transport.KindUDP),
		Iterations: DefaultIterations,
		Rate:       DefaultRate,
	}
}

// LoadManifest reads and validates a manifest file.
func LoadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("parse manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

// Save writes the manifest as YAML.
func (m Manifest) Save(path string) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// Validate checks the fields a run depends on.
func (m Manifest) Validate() error {
	if m.Target == "" {
		return fmt.Errorf("manifest: target is required")
	}
	if m.CampaignID != "" {
		if _, err := uuid.Parse(m.CampaignID); err != nil {
			return fmt.Errorf("manifest: campaign_id: %w", err)
		}
	}
	if m.Iterations < 0 {
		return fmt.Errorf("manifest: iterations must not be negative")
	}
	if m.Rate < 0 || m.Rate > 1 {
		return fmt.Errorf("manifest: rate %v outside [0, 1]", m.Rate)
	}
	if m.DelayMs < 0 {
		return fmt.Errorf("manifest: delay_ms must not be negative")
	}
	switch transport.Kind(m.Transport) {
	case "", transport.KindUDP, transport.KindTCP:
	default:
		return fmt.Errorf("manifest: unknown transport %q", m.Transport)
	}
	return nil
}

// Delay returns the per-iteration pause.
func (m Manifest) Delay() time.Duration {
	return time.Duration(m.DelayMs) * time.Millisecond
}

// Params carries the run-time collaborators a campaign reports to.
// All of them are optional.
type Params struct {
	// Logger receives progress and error lines.
	Logger *logging.Logger
	// Changelog receives one YAML document per mutation.
	Changelog io.Writer
	// Capture sees every datagram handed to the transport, for pcap
	// recording.
	Capture func(payload []byte)
	// Progress is told how many iterations have finished out of the
	// total planned, once before the first send and after every
	// iteration.
	Progress func(done, total int)
}

// Result summarizes a finished or aborted run.
type Result struct {
	Shapes  int
	Sent    int
	Errors  int
	Elapsed time.Duration
}

// Campaign iterates mutate-and-send over every frame shape the
// manifest selects. Each iteration rebuilds the pristine default
// frame, so mutations never accumulate across sends.
type Campaign struct {
	manifest Manifest
	sp       *spec.Specification
	tr       transport.Transport
	mut      *Mutator
}

// NewCampaign wires a campaign from its manifest. The specification
// provides the frames and the transport the wire.
func NewCampaign(m Manifest, sp *spec.Specification, tr transport.Transport) (*Campaign, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if m.APIVersion == "" {
		m.APIVersion = APIVersion
	}
	id := uuid.New()
	if m.CampaignID == "" {
		m.CampaignID = id.String()
	} else {
		// Already checked by Validate.
		id = uuid.MustParse(m.CampaignID)
	}
	if m.Iterations == 0 {
		m.Iterations = DefaultIterations
	}

	mut := NewMutator(m.Seed, m.Rate)
	mut.CampaignID = id
	m.Seed = mut.Seed()
	m.Rate = mut.Rate()

	return &Campaign{manifest: m, sp: sp, tr: tr, mut: mut}, nil
}

// Manifest returns the campaign's manifest with generated fields
// (campaign id, effective seed and rate) filled in, ready to save for
// a replay.
func (c *Campaign) Manifest() Manifest { return c.manifest }

// Run connects to the target and sends mutated frames until every
// iteration ran, the context ends, or, with stop_on_error set, a send
// fails.
func (c *Campaign) Run(ctx context.Context, p Params) (Result, error) {
	log := p.Logger
	if log == nil {
		log, _ = logging.NewLogger(logging.LogLevelSilent, "")
	}

	var res Result
	gens, err := c.generate()
	if err != nil {
		return res, err
	}
	res.Shapes = len(gens)

	if err := c.tr.Connect(ctx, c.manifest.Target); err != nil {
		return res, fmt.Errorf("connect %s: %w", c.manifest.Target, err)
	}
	defer func() { _ = c.tr.Disconnect() }()

	var enc *yaml.Encoder
	if p.Changelog != nil {
		enc = yaml.NewEncoder(p.Changelog)
		defer enc.Close()
	}

	log.Info("Campaign %s: %d frame shapes, %d iterations each, seed %d",
		c.manifest.CampaignID, len(gens), c.manifest.Iterations, c.mut.Seed())

	start := time.Now()
	err = c.loop(ctx, log, gens, enc, p, &res)
	res.Elapsed = time.Since(start)
	return res, err
}

func (c *Campaign) loop(ctx context.Context, log *logging.Logger, gens []Generated, enc *yaml.Encoder, p Params, res *Result) error {
	total := len(gens) * c.manifest.Iterations
	done := 0
	report := func() {
		if p.Progress != nil {
			p.Progress(done, total)
		}
	}
	report()

	for _, g := range gens {
		for i := 0; i < c.manifest.Iterations; i++ {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			fr, err := frame.New(c.sp, g.Type, g.Overrides)
			if err != nil {
				return fmt.Errorf("rebuild %s: %w", g.Label(), err)
			}

			rep, err := c.mut.Mutate(fr)
			if err != nil {
				if errors.Is(err, ErrNothingToMutate) {
					log.Verbose("%s: nothing to mutate, skipping shape", g.Label())
					done += c.manifest.Iterations - i
					report()
					break
				}
				return fmt.Errorf("mutate %s: %w", g.Label(), err)
			}
			rep.Type = g.Label()

			data := fr.Bytes()
			sendErr := c.tr.Send(ctx, data)
			if p.Capture != nil {
				p.Capture(data)
			}
			if sendErr != nil {
				res.Errors++
				log.Info("send %s: %v", g.Label(), sendErr)
				if c.manifest.StopOnError {
					return fmt.Errorf("send %s: %w", g.Label(), sendErr)
				}
			} else {
				res.Sent++
				log.Verbose("sent %s (%d bytes, %d changes)", g.Label(), len(data), len(rep.Changes))
				log.LogHex("frame", data)
			}

			if enc != nil {
				if err := enc.Encode(rep); err != nil {
					return fmt.Errorf("changelog: %w", err)
				}
			}

			done++
			report()

			if d := c.manifest.Delay(); d > 0 {
				t := time.NewTimer(d)
				select {
				case <-ctx.Done():
					t.Stop()
					return ctx.Err()
				case <-t.C:
				}
			}
		}
	}
	return nil
}

func (c *Campaign) generate() ([]Generated, error) {
	if len(c.manifest.Types) == 0 {
		return GenerateAll(c.sp)
	}
	var out []Generated
	for _, typeName := range c.manifest.Types {
		gens, err := Generate(c.sp, typeName)
		if err != nil {
			return nil, err
		}
		out = append(out, gens...)
	}
	return out, nil
}
