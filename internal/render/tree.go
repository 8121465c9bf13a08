package render

import (
	"fmt"
	"net"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jcalloway/framecraft/frame"
	"github.com/jcalloway/framecraft/spec"
)

// treeLine is one row of the tree render, kept unstyled until the
// column widths are known.
type treeLine struct {
	stem     string
	name     string
	isBlock  bool
	isLength bool
	typeNote string
	hex      string
	note     string
	decoded  bool
}

// Tree renders a frame as an indented field tree with hex values and
// decode hints.
func Tree(f *frame.Frame) string { return TreeStyled(f, active) }

// TreeStyled renders the tree with an explicit style set. Field bytes
// are shown exactly as they would serialize; nothing is recomputed, so
// a parsed frame with lying lengths renders what was on the wire.
func TreeStyled(f *frame.Frame, s Styles) string {
	var lines []treeLine
	kids := f.Root().Children()
	for i, c := range kids {
		lines = collectNode(lines, f.Spec(), c, "", i == len(kids)-1)
	}

	// Box-drawing stems are multi-byte, so widths are measured in
	// cells, not bytes.
	nameCol := 0
	for _, l := range lines {
		if w := lipgloss.Width(l.stem + l.name); !l.isBlock && w > nameCol {
			nameCol = w
		}
	}

	var b strings.Builder
	b.WriteString(s.Title.Render(titleOf(f)))
	b.WriteString(s.Note.Render(fmt.Sprintf("  %d bytes", f.Len())))
	b.WriteByte('\n')
	for _, l := range lines {
		b.WriteString(s.Stem.Render(l.stem))
		switch {
		case l.isBlock:
			b.WriteString(s.BlockName.Render(l.name))
			if l.typeNote != "" {
				b.WriteString(s.BlockType.Render(" <" + l.typeNote + ">"))
			}
		default:
			nameStyle := s.FieldName
			if l.isLength {
				nameStyle = s.Length
			}
			b.WriteString(nameStyle.Render(l.name))
			pad := nameCol - lipgloss.Width(l.stem+l.name)
			b.WriteString(strings.Repeat(" ", pad+2))
			b.WriteString(s.Hex.Render(l.hex))
			if l.note != "" {
				noteStyle := s.Note
				if l.decoded {
					noteStyle = s.Decoded
				}
				b.WriteString("  " + noteStyle.Render(l.note))
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// titleOf names the render after the resolved body type when there is
// one, mirroring how frames are requested by type name.
func titleOf(f *frame.Frame) string {
	if body := f.Body(); body != nil && body.Type() != "" {
		return body.Type()
	}
	return strings.ToUpper(f.Root().Name())
}

func collectNode(lines []treeLine, sp *spec.Specification, n frame.Node, prefix string, last bool) []treeLine {
	branch, cont := "├─ ", "│  "
	if last {
		branch, cont = "└─ ", "   "
	}
	switch v := n.(type) {
	case *frame.Block:
		l := treeLine{stem: prefix + branch, name: strings.ToUpper(v.Name()), isBlock: true}
		if t := v.Type(); t != "" && !strings.EqualFold(t, v.Name()) {
			l.typeNote = t
		}
		lines = append(lines, l)
		kids := v.Children()
		for i, c := range kids {
			lines = collectNode(lines, sp, c, prefix+cont, i == len(kids)-1)
		}
	case *frame.Field:
		note, decoded := FieldNote(sp, v)
		lines = append(lines, treeLine{
			stem:     prefix + branch,
			name:     v.Name(),
			isLength: v.IsLength(),
			hex:      SpacedHex(v.Bytes()),
			note:     note,
			decoded:  decoded,
		})
	}
	return lines
}

// FieldNote derives a human reading of a field value: the code-table
// name it selects, a decimal for lengths and ports, dotted or KNX
// address forms, or the text a printable payload spells. The boolean
// reports whether the note decodes the value (as opposed to restating
// it numerically).
func FieldNote(sp *spec.Specification, f *frame.Field) (string, bool) {
	b := f.Bytes()
	if name, err := sp.ResolveConditional(f.Name(), b); err == nil {
		return name, true
	}
	norm := spec.NormalizeName(f.Name())
	switch {
	case f.IsLength() || norm == "total_length":
		return fmt.Sprintf("= %d", f.Int()), false
	case strings.Contains(norm, "port") && len(b) == 2:
		return fmt.Sprintf("= %d", f.Int()), false
	case strings.Contains(norm, "individual_address") && len(b) == 2:
		return f.IndividualAddress(), true
	case strings.Contains(norm, "address") && len(b) == 4:
		return f.IPv4(), true
	case strings.Contains(norm, "mac") && len(b) == 6:
		return net.HardwareAddr(b).String(), true
	}
	if t := printableText(b); t != "" {
		return fmt.Sprintf("%q", t), true
	}
	return "", false
}

// printableText returns the ASCII string a field spells, or "" when
// the value does not look like text. Trailing NUL padding is ignored;
// anything unprintable before it disqualifies the field.
func printableText(b []byte) string {
	end := len(b)
	for end > 0 && b[end-1] == 0 {
		end--
	}
	if end < 3 {
		return ""
	}
	for _, c := range b[:end] {
		if c < 0x20 || c > 0x7e {
			return ""
		}
	}
	return string(b[:end])
}

// SpacedHex renders bytes as two-digit groups: "06 10 02 01".
func SpacedHex(b []byte) string {
	if len(b) == 0 {
		return "(empty)"
	}
	var sb strings.Builder
	for i, c := range b {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%02x", c)
	}
	return sb.String()
}
