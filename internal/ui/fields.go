// Package ui holds the interactive surfaces: a huh crafting wizard
// and a bubbletea frame inspector with clipboard export.
package ui

import (
	"strconv"
	"strings"

	"github.com/jcalloway/framecraft/codec"
	"github.com/jcalloway/framecraft/frame"
	"github.com/jcalloway/framecraft/spec"
)

// FieldRef pairs a field with its dotted location in the frame tree.
type FieldRef struct {
	Path  string
	Field *frame.Field
}

// Fields lists every field with its path, in wire order.
func Fields(f *frame.Frame) []FieldRef {
	var out []FieldRef
	walkFields(f.Root(), "", &out, false)
	return out
}

// EditableFields lists the fields the wizard offers for input: wire
// order, minus the length bookkeeping the engine maintains itself.
func EditableFields(f *frame.Frame) []FieldRef {
	var out []FieldRef
	walkFields(f.Root(), "", &out, true)
	return out
}

func walkFields(b *frame.Block, prefix string, out *[]FieldRef, skipLengths bool) {
	for _, n := range b.Children() {
		switch c := n.(type) {
		case *frame.Field:
			if skipLengths && (c.IsLength() || spec.NormalizeName(c.Name()) == "total_length") {
				continue
			}
			*out = append(*out, FieldRef{Path: joinPath(prefix, c.Name()), Field: c})
		case *frame.Block:
			walkFields(c, joinPath(prefix, c.Name()), out, skipLengths)
		}
	}
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

// ParseValue interprets operator input for a field. Hex needs a 0x
// prefix, a letter, or byte-pair separators; unadorned digits read as
// decimal; everything else stays a string, which downstream
// conversion resolves as an address form or raw text. Empty input
// returns nil, meaning keep the current value.
func ParseValue(s string) (any, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") || looksHex(s) {
		return codec.FromHex(s)
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	return s, nil
}

// looksHex reports whether s reads as hex byte pairs rather than a
// decimal number or text: an even count of hex digits carrying at
// least one letter or separator to make the intent unambiguous.
func looksHex(s string) bool {
	digits, letters, seps := 0, 0, 0
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F'):
			letters++
		case r == ' ' || r == ':':
			seps++
		default:
			return false
		}
	}
	n := digits + letters
	return n > 0 && n%2 == 0 && (letters > 0 || seps > 0)
}
