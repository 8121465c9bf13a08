// Package spec loads protocol specification documents: declarative
// YAML or JSON files describing a frame template, a catalog of block
// templates, and code tables that map field values to block types and
// display names. A loaded Specification is immutable and shared;
// frames are built from it but never write back into it.
package spec

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/jcalloway/framecraft/codec"
)

// Sections names the three top-level document keys a specification is
// read from. Protocols that organize their files differently override
// the defaults at load time.
type Sections struct {
	Template string
	Blocks   string
	Codes    string
}

// DefaultSections returns the conventional section names.
func DefaultSections() Sections {
	return Sections{Template: "frame", Blocks: "blocks", Codes: "codes"}
}

// Specification is a parsed protocol description. Template holds the
// ordered top-level slots of a frame, Blocks the catalog of reusable
// block templates, and Codes the value-to-name tables used to resolve
// conditional references and to display field values.
type Specification struct {
	Path     string
	Sections Sections
	Template []Descriptor
	Blocks   map[string][]Descriptor
	Codes    map[string]map[string]string

	blockIndex map[string]string            // normalized type name -> Blocks key
	codeIndex  map[string]map[string]string // normalized field -> lowercase hex -> name
	codeNames  map[string]string            // normalized field -> Codes key
}

// NormalizeName folds a display name to its lookup form: lowercased,
// with every run of non-alphanumeric characters collapsed to a single
// underscore. "Header Length", "header_length" and "header length"
// all address the same entry.
func NormalizeName(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	gap := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			gap = false
		} else if !gap {
			b.WriteByte('_')
			gap = true
		}
	}
	return b.String()
}

// BlockTypes lists the catalog's block type names, sorted.
func (s *Specification) BlockTypes() []string {
	names := make([]string, 0, len(s.Blocks))
	for name := range s.Blocks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasBlock reports whether the catalog defines typeName, under name
// normalization.
func (s *Specification) HasBlock(typeName string) bool {
	_, ok := s.blockIndex[NormalizeName(typeName)]
	return ok
}

// BlockDescriptors returns the template for typeName from the catalog.
func (s *Specification) BlockDescriptors(typeName string) ([]Descriptor, bool) {
	key, ok := s.blockIndex[NormalizeName(typeName)]
	if !ok {
		return nil, false
	}
	return s.Blocks[key], true
}

// CodeTables lists the determinant field names that have code tables,
// sorted.
func (s *Specification) CodeTables() []string {
	names := make([]string, 0, len(s.Codes))
	for name := range s.Codes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResolveConditional maps the observed value of a determinant field to
// the name its code table assigns. The value's full byte string is
// the key: leading zeros are significant, so a two-byte 0x0201 and a
// one-byte 0x01 are distinct entries.
func (s *Specification) ResolveConditional(field string, value []byte) (string, error) {
	table, ok := s.codeIndex[NormalizeName(field)]
	if !ok {
		return "", &ResolutionError{Field: field, Reason: "no code table for field"}
	}
	name, ok := table[codec.ToHex(value)]
	if !ok {
		return "", &ResolutionError{Field: field, Value: value, Reason: "no entry in code table"}
	}
	return name, nil
}

// CodeValue performs the reverse lookup: the determinant value whose
// table entry carries the given name. When several values share a
// name the numerically lowest wins. The second return is false if the
// field has no table or the name appears in none of its entries.
func (s *Specification) CodeValue(field, name string) ([]byte, bool) {
	table, ok := s.codeIndex[NormalizeName(field)]
	if !ok {
		return nil, false
	}
	want := NormalizeName(name)
	keys := make([]string, 0, len(table))
	for k, v := range table {
		if NormalizeName(v) == want {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return nil, false
	}
	sort.Strings(keys)
	b, err := codec.FromHex(keys[0])
	if err != nil {
		return nil, false
	}
	return b, true
}

// DeterminantsFor scans every code table for entries named name and
// returns the determinant values they imply, keyed by normalized
// field name. Building a frame "by type" seeds its determinant fields
// from this map.
func (s *Specification) DeterminantsFor(name string) map[string][]byte {
	out := make(map[string][]byte)
	for field := range s.codeIndex {
		if v, ok := s.CodeValue(field, name); ok {
			out[field] = v
		}
	}
	return out
}

// MarshalYAML renders the specification back into its document form,
// under the configured section names.
func (s *Specification) MarshalYAML() (any, error) {
	doc := make(map[string]any, 3)
	if len(s.Template) > 0 {
		doc[s.Sections.Template] = s.Template
	}
	if len(s.Blocks) > 0 {
		doc[s.Sections.Blocks] = s.Blocks
	}
	if len(s.Codes) > 0 {
		doc[s.Sections.Codes] = s.Codes
	}
	return doc, nil
}

func (s *Specification) buildIndexes() error {
	s.blockIndex = make(map[string]string, len(s.Blocks))
	for key := range s.Blocks {
		norm := NormalizeName(key)
		if prev, dup := s.blockIndex[norm]; dup {
			return fmt.Errorf("blocks %q and %q collide after normalization", prev, key)
		}
		s.blockIndex[norm] = key
	}
	s.codeIndex = make(map[string]map[string]string, len(s.Codes))
	s.codeNames = make(map[string]string, len(s.Codes))
	for field, table := range s.Codes {
		norm := NormalizeName(field)
		if prev, dup := s.codeNames[norm]; dup {
			return fmt.Errorf("code tables %q and %q collide after normalization", prev, field)
		}
		s.codeNames[norm] = field
		idx := make(map[string]string, len(table))
		for key, name := range table {
			b, err := codec.FromHex(key)
			if err != nil {
				return fmt.Errorf("code table %q: %w", field, err)
			}
			canon := codec.ToHex(b)
			if prev, dup := idx[canon]; dup && prev != name {
				return fmt.Errorf("code table %q: key %q maps to both %q and %q", field, canon, prev, name)
			}
			idx[canon] = name
		}
		s.codeIndex[norm] = idx
	}
	return nil
}
