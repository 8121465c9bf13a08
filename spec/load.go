package spec

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// cache holds loaded specifications keyed by absolute path plus
// section names. Loading the same file twice returns the same
// *Specification; the file is read once.
var cache sync.Map

// Load reads and validates the specification file at path, caching
// the result. Subsequent loads of the same path return the cached
// Specification. JSON files are accepted as well as YAML, JSON being
// a YAML subset.
func Load(path string) (*Specification, error) {
	return LoadSections(path, DefaultSections())
}

// LoadSections is Load with explicit section names, for documents
// that keep their template, block catalog or code tables under
// non-default keys. Distinct section names cache independently.
func LoadSections(path string, sections Sections) (*Specification, error) {
	key := cacheKey(path, sections)
	if v, ok := cache.Load(key); ok {
		return v.(*Specification), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &FormatError{Path: path, Err: err}
	}
	sp, err := ParseSections(data, sections)
	if err != nil {
		if fe, ok := err.(*FormatError); ok {
			fe.Path = path
		}
		return nil, err
	}
	sp.Path = path
	actual, _ := cache.LoadOrStore(key, sp)
	return actual.(*Specification), nil
}

// Parse builds a specification from an in-memory document, bypassing
// the cache. Embedded specifications and tests use this path.
func Parse(data []byte) (*Specification, error) {
	return ParseSections(data, DefaultSections())
}

// ParseSections is Parse with explicit section names.
func ParseSections(data []byte, sections Sections) (*Specification, error) {
	var doc map[string]yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &FormatError{Err: fmt.Errorf("not a mapping document: %w", err)}
	}
	sp := &Specification{
		Sections: sections,
		Blocks:   map[string][]Descriptor{},
		Codes:    map[string]map[string]string{},
	}
	// All three sections must be present, empty or not. A document
	// without them is some other kind of file.
	for _, name := range []string{sections.Template, sections.Blocks, sections.Codes} {
		if _, ok := doc[name]; !ok {
			return nil, &FormatError{Err: fmt.Errorf("missing section %q", name)}
		}
	}
	if node := doc[sections.Template]; node.Kind != 0 {
		if err := node.Decode(&sp.Template); err != nil {
			return nil, &FormatError{Err: fmt.Errorf("section %q: %w", sections.Template, err)}
		}
	}
	if node := doc[sections.Blocks]; node.Kind != 0 {
		if err := node.Decode(&sp.Blocks); err != nil {
			return nil, &FormatError{Err: fmt.Errorf("section %q: %w", sections.Blocks, err)}
		}
	}
	if node := doc[sections.Codes]; node.Kind != 0 {
		if err := node.Decode(&sp.Codes); err != nil {
			return nil, &FormatError{Err: fmt.Errorf("section %q: %w", sections.Codes, err)}
		}
	}
	if err := sp.buildIndexes(); err != nil {
		return nil, &FormatError{Err: err}
	}
	if err := sp.validate(); err != nil {
		return nil, &FormatError{Err: err}
	}
	return sp, nil
}

func cacheKey(path string, sections Sections) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = filepath.Clean(path)
	}
	return abs + "\x00" + sections.Template + "\x00" + sections.Blocks + "\x00" + sections.Codes
}

// validate checks the referential invariants: every fixed block
// reference names a catalog entry, every conditional names a field
// that has a code table, and no chain of fixed references loops back
// on itself.
func (s *Specification) validate() error {
	for i, d := range s.Template {
		if err := s.checkEntry(d); err != nil {
			return fmt.Errorf("%s[%d]: %w", s.Sections.Template, i, err)
		}
	}
	for _, typeName := range s.BlockTypes() {
		for i, d := range s.Blocks[typeName] {
			if err := s.checkEntry(d); err != nil {
				return fmt.Errorf("block %q[%d]: %w", typeName, i, err)
			}
		}
	}
	state := map[string]int{}
	for _, typeName := range s.BlockTypes() {
		if err := s.checkCycle(typeName, state); err != nil {
			return err
		}
	}
	return nil
}

func (s *Specification) checkEntry(d Descriptor) error {
	switch d.Kind {
	case KindField:
		if d.Name == "" {
			return fmt.Errorf("field entry: missing name")
		}
		if d.Size <= 0 {
			return fmt.Errorf("field %q: size must be positive, got %d", d.Name, d.Size)
		}
	case KindBlock:
		if !s.HasBlock(d.BlockType) {
			return fmt.Errorf("entry %q: unknown block type %q", d.Name, d.BlockType)
		}
	case KindConditional:
		if _, ok := s.codeIndex[NormalizeName(d.DependsOn)]; !ok {
			return fmt.Errorf("entry %q: determinant %q has no code table", d.Name, d.DependsOn)
		}
	default:
		return fmt.Errorf("entry %q: unknown kind %v", d.Name, d.Kind)
	}
	return nil
}

// checkCycle walks fixed block references depth-first. Conditional
// references are excluded here; the frame builder guards those at
// build time, when the chosen types are known.
func (s *Specification) checkCycle(typeName string, state map[string]int) error {
	const (
		visiting = 1
		done     = 2
	)
	norm := NormalizeName(typeName)
	switch state[norm] {
	case done:
		return nil
	case visiting:
		return fmt.Errorf("block %q: circular reference", typeName)
	}
	state[norm] = visiting
	for _, d := range s.Blocks[s.blockIndex[norm]] {
		if d.Kind != KindBlock {
			continue
		}
		if err := s.checkCycle(d.BlockType, state); err != nil {
			return err
		}
	}
	state[norm] = done
	return nil
}
