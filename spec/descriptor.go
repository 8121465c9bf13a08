package spec

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jcalloway/framecraft/codec"
)

// Kind discriminates the three entry shapes a block template may hold.
type Kind int

const (
	// KindField is a leaf: a named byte array of fixed size.
	KindField Kind = iota
	// KindBlock nests another block type from the catalog.
	KindBlock
	// KindConditional nests a block whose type is chosen at build or
	// parse time from the value of a determinant field.
	KindConditional
)

func (k Kind) String() string {
	switch k {
	case KindField:
		return "field"
	case KindBlock:
		return "block"
	case KindConditional:
		return "conditional"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Descriptor is one entry of a block template. Exactly one shape is
// active, selected by Kind; the other fields are zero.
type Descriptor struct {
	Kind Kind
	Name string

	// Field entries.
	Size     int
	IsLength bool
	Default  []byte

	// Block entries.
	BlockType string

	// Conditional entries.
	DependsOn string
}

// conditionalPrefix marks a type reference that is resolved through a
// code table instead of naming a catalog block directly.
const conditionalPrefix = "depends:"

type descriptorRaw struct {
	Type     string `yaml:"type"`
	Name     string `yaml:"name,omitempty"`
	Size     int    `yaml:"size,omitempty"`
	IsLength bool   `yaml:"is_length,omitempty"`
	Default  string `yaml:"default,omitempty"`
}

func (d *Descriptor) UnmarshalYAML(value *yaml.Node) error {
	var raw descriptorRaw
	if err := value.Decode(&raw); err != nil {
		return err
	}
	return d.fromRaw(raw)
}

func (d *Descriptor) fromRaw(raw descriptorRaw) error {
	if raw.Type == "" {
		return fmt.Errorf("entry %q: missing type", raw.Name)
	}
	switch {
	case raw.Type == "field":
		if raw.Name == "" {
			return fmt.Errorf("field entry: missing name")
		}
		if raw.Size <= 0 {
			return fmt.Errorf("field %q: size must be positive, got %d", raw.Name, raw.Size)
		}
		var def []byte
		if raw.Default != "" {
			b, err := codec.FromHex(raw.Default)
			if err != nil {
				return fmt.Errorf("field %q: default: %w", raw.Name, err)
			}
			def = b
		}
		*d = Descriptor{Kind: KindField, Name: raw.Name, Size: raw.Size, IsLength: raw.IsLength, Default: def}
	case strings.HasPrefix(raw.Type, conditionalPrefix):
		field := strings.TrimSpace(strings.TrimPrefix(raw.Type, conditionalPrefix))
		if field == "" {
			return fmt.Errorf("entry %q: empty determinant after %q", raw.Name, conditionalPrefix)
		}
		name := raw.Name
		if name == "" {
			name = field
		}
		*d = Descriptor{Kind: KindConditional, Name: name, DependsOn: field}
	default:
		name := raw.Name
		if name == "" {
			name = strings.ToLower(raw.Type)
		}
		*d = Descriptor{Kind: KindBlock, Name: name, BlockType: raw.Type}
	}
	return nil
}

func (d Descriptor) MarshalYAML() (any, error) {
	raw := descriptorRaw{Name: d.Name}
	switch d.Kind {
	case KindField:
		raw.Type = "field"
		raw.Size = d.Size
		raw.IsLength = d.IsLength
		if len(d.Default) > 0 {
			raw.Default = codec.ToHex(d.Default)
		}
	case KindBlock:
		raw.Type = d.BlockType
	case KindConditional:
		raw.Type = conditionalPrefix + d.DependsOn
	default:
		return nil, fmt.Errorf("entry %q: unknown kind %v", d.Name, d.Kind)
	}
	return raw, nil
}
