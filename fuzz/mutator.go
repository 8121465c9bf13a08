// Package fuzz generates, mutates and replays protocol frames against
// a live target. A campaign sweeps every frame shape a specification
// can produce, flips random payload bytes in each, and keeps a
// changelog so a crash can be traced back to the exact bytes that
// caused it.
package fuzz

import (
	"errors"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/jcalloway/framecraft/codec"
	"github.com/jcalloway/framecraft/frame"
	"github.com/jcalloway/framecraft/spec"
)

// DefaultRate is the fraction of mutable payload bytes changed per
// mutation pass.
const DefaultRate = 0.1

// ErrNothingToMutate reports a frame with no mutable payload bytes.
var ErrNothingToMutate = errors.New("fuzz: frame has no mutable bytes")

// Change records one byte flip: the dotted path of the field it hit,
// the offset inside that field's value, and the byte before and after.
type Change struct {
	Path   string `yaml:"path"`
	Offset int    `yaml:"offset"`
	Old    byte   `yaml:"old"`
	New    byte   `yaml:"new"`
}

// Report is the changelog entry for one mutated frame.
type Report struct {
	CampaignID uuid.UUID `yaml:"campaign_id"`
	Type       string    `yaml:"type,omitempty"`
	Seed       int64     `yaml:"seed"`
	Frame      string    `yaml:"frame"`
	Changes    []Change  `yaml:"changes"`
}

// Mutator flips random bytes in a frame's payload fields. Length
// fields and the header's total length slot are left alone, so a
// mutated frame keeps its structural envelope and the damage lands on
// semantic content. The same seed replays the same flips.
type Mutator struct {
	CampaignID uuid.UUID

	seed int64
	rate float64
	rng  *rand.Rand
}

// NewMutator returns a mutator with a fresh campaign id. A zero seed
// draws one from the clock; a rate outside (0, 1] falls back to
// DefaultRate.
func NewMutator(seed int64, rate float64) *Mutator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if rate <= 0 || rate > 1 {
		rate = DefaultRate
	}
	return &Mutator{
		CampaignID: uuid.New(),
		seed:       seed,
		rate:       rate,
		rng:        rand.New(rand.NewSource(seed)),
	}
}

// Seed returns the seed the mutator was built with.
func (m *Mutator) Seed() int64 { return m.seed }

// Rate returns the fraction of mutable bytes changed per pass.
func (m *Mutator) Rate() float64 { return m.rate }

// Mutate flips bytes in place and reports what changed. The flip
// count is the rate applied to the frame's mutable byte total, at
// least one.
func (m *Mutator) Mutate(fr *frame.Frame) (Report, error) {
	rep := Report{CampaignID: m.CampaignID, Seed: m.seed}

	targets := mutableFields(fr)
	total := 0
	for _, t := range targets {
		total += t.field.Len()
	}
	if total == 0 {
		return rep, ErrNothingToMutate
	}

	flips := int(float64(total)*m.rate + 0.5)
	if flips < 1 {
		flips = 1
	}
	for i := 0; i < flips; i++ {
		pos := m.rng.Intn(total)
		var tgt target
		for _, t := range targets {
			if pos < t.field.Len() {
				tgt = t
				break
			}
			pos -= t.field.Len()
		}

		val := tgt.field.Bytes()
		old := val[pos]
		next := byte(m.rng.Intn(256))
		if next == old {
			next ^= 0xff
		}
		val[pos] = next
		tgt.field.SetValue(val)

		rep.Changes = append(rep.Changes, Change{Path: tgt.path, Offset: pos, Old: old, New: next})
	}

	rep.Frame = codec.ToHex(fr.Bytes())
	return rep, nil
}

type target struct {
	path  string
	field *frame.Field
}

// mutableFields lists payload fields in wire order with their dotted
// paths. Length fields and the total length slot are excluded.
func mutableFields(fr *frame.Frame) []target {
	var out []target
	collectFields(fr.Root(), "", &out)
	return out
}

func collectFields(b *frame.Block, prefix string, out *[]target) {
	for _, n := range b.Children() {
		switch c := n.(type) {
		case *frame.Field:
			if c.IsLength() || spec.NormalizeName(c.Name()) == "total_length" {
				continue
			}
			*out = append(*out, target{path: joinPath(prefix, c.Name()), field: c})
		case *frame.Block:
			collectFields(c, joinPath(prefix, c.Name()), out)
		}
	}
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}
