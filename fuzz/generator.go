package fuzz

import (
	"fmt"
	"sort"

	"github.com/jcalloway/framecraft/codec"
	"github.com/jcalloway/framecraft/frame"
	"github.com/jcalloway/framecraft/spec"
)

// Generated pairs a built frame with the recipe that produced it, so
// a campaign can rebuild a pristine copy for every iteration.
type Generated struct {
	Type      string
	Variant   string
	Overrides map[string]any
	Frame     *frame.Frame
}

// Label names the generated shape for logs and changelogs.
func (g Generated) Label() string {
	if g.Variant == "" {
		return g.Type
	}
	return g.Type + " [" + g.Variant + "]"
}

// FrameTypes lists the type names the template's conditional slots
// accept, in code table order.
func FrameTypes(sp *spec.Specification) []string {
	var out []string
	seen := make(map[string]bool)
	for _, d := range sp.Template {
		if d.Kind != spec.KindConditional {
			continue
		}
		for _, e := range tableEntries(sp, d.DependsOn) {
			norm := spec.NormalizeName(e.name)
			if seen[norm] {
				continue
			}
			seen[norm] = true
			out = append(out, e.name)
		}
	}
	return out
}

// GenerateAll builds one default frame per type the specification
// names, for smoke sweeps and campaign input. Types carrying
// secondary determinant fields (a cEMI message code, a connection
// type) expand into one frame per table entry, so the sweep reaches
// every block layout the specification can produce.
func GenerateAll(sp *spec.Specification) ([]Generated, error) {
	types := FrameTypes(sp)
	if len(types) == 0 {
		return nil, fmt.Errorf("fuzz: specification has no typed template slot")
	}
	var out []Generated
	for _, typeName := range types {
		gens, err := Generate(sp, typeName)
		if err != nil {
			return nil, err
		}
		out = append(out, gens...)
	}
	return out, nil
}

// Generate builds the default frame for one type, expanded across the
// values of any secondary determinant fields it carries.
func Generate(sp *spec.Specification, typeName string) ([]Generated, error) {
	base, err := frame.New(sp, typeName, nil)
	if err != nil {
		return nil, fmt.Errorf("fuzz: build %q: %w", typeName, err)
	}

	secondary := secondaryDeterminants(sp, base)
	if len(secondary) == 0 {
		return []Generated{{Type: typeName, Frame: base}}, nil
	}

	var out []Generated
	for _, field := range secondary {
		for _, e := range tableEntries(sp, field) {
			ov := map[string]any{field: e.value}
			fr, err := frame.New(sp, typeName, ov)
			if err != nil {
				return nil, fmt.Errorf("fuzz: build %q with %s=%s: %w", typeName, field, e.key, err)
			}
			out = append(out, Generated{
				Type:      typeName,
				Variant:   field + "=" + e.key,
				Overrides: ov,
				Frame:     fr,
			})
		}
	}
	return out, nil
}

// secondaryDeterminants lists determinant fields present in the frame
// beyond the ones the template itself resolves types through.
func secondaryDeterminants(sp *spec.Specification, fr *frame.Frame) []string {
	primary := make(map[string]bool)
	for _, d := range sp.Template {
		if d.Kind == spec.KindConditional {
			primary[spec.NormalizeName(d.DependsOn)] = true
		}
	}
	tables := make(map[string]bool, len(sp.Codes))
	for field := range sp.Codes {
		tables[spec.NormalizeName(field)] = true
	}

	var out []string
	seen := make(map[string]bool)
	for _, f := range fr.Fields() {
		norm := spec.NormalizeName(f.Name())
		if primary[norm] || seen[norm] || !tables[norm] {
			continue
		}
		seen[norm] = true
		out = append(out, f.Name())
	}
	return out
}

type tableEntry struct {
	key   string
	value []byte
	name  string
}

// tableEntries returns the code table for field sorted by key, so
// enumeration order is stable run to run.
func tableEntries(sp *spec.Specification, field string) []tableEntry {
	norm := spec.NormalizeName(field)
	for key, table := range sp.Codes {
		if spec.NormalizeName(key) != norm {
			continue
		}
		out := make([]tableEntry, 0, len(table))
		for k, name := range table {
			b, err := codec.FromHex(k)
			if err != nil {
				continue
			}
			out = append(out, tableEntry{key: codec.ToHex(b), value: b, name: name})
		}
		sort.Slice(out, func(i, j int) bool { return out[i].key < out[j].key })
		return out
	}
	return nil
}
