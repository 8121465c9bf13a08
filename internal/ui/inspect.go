package ui

import (
	"fmt"
	"strings"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jcalloway/framecraft/codec"
	"github.com/jcalloway/framecraft/frame"
	"github.com/jcalloway/framecraft/internal/render"
)

// Inspector is a bubbletea model over a frame: navigate the fields,
// edit values in place, watch the bytes re-serialize, copy the hex
// out.
type Inspector struct {
	frame  *frame.Frame
	refs   []FieldRef
	styles render.Styles

	cursor   int
	editing  bool
	input    string
	status   string
	quitting bool
}

// NewInspector builds the model; styling follows the active render
// styles, so --no-color reaches here too.
func NewInspector(f *frame.Frame) *Inspector {
	return &Inspector{frame: f, refs: Fields(f), styles: render.Active()}
}

// Init implements tea.Model.
func (m *Inspector) Init() tea.Cmd { return nil }

// clipboardMsg reports a finished clipboard write.
type clipboardMsg struct {
	bytes int
	err   error
}

func copyHexCmd(data []byte) tea.Cmd {
	return func() tea.Msg {
		return clipboardMsg{bytes: len(data), err: clipboard.WriteAll(codec.ToHex(data))}
	}
}

// Update implements tea.Model.
func (m *Inspector) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case clipboardMsg:
		if msg.err != nil {
			m.status = "clipboard: " + msg.err.Error()
		} else {
			m.status = fmt.Sprintf("copied %d bytes as hex", msg.bytes)
		}
		return m, nil
	case tea.KeyMsg:
		if m.editing {
			return m.updateEdit(msg)
		}
		return m.updateBrowse(msg)
	}
	return m, nil
}

func (m *Inspector) updateBrowse(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.refs)-1 {
			m.cursor++
		}
	case "enter", "e":
		if len(m.refs) > 0 {
			m.editing = true
			m.input = codec.ToHex(m.refs[m.cursor].Field.Bytes())
			m.status = ""
		}
	case "c":
		return m, copyHexCmd(m.frame.Bytes())
	}
	return m, nil
}

func (m *Inspector) updateEdit(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		m.commitEdit()
	case tea.KeyEscape:
		m.editing = false
		m.input = ""
	case tea.KeyBackspace:
		if len(m.input) > 0 {
			m.input = m.input[:len(m.input)-1]
		}
	case tea.KeySpace:
		m.input += " "
	case tea.KeyRunes:
		m.input += string(msg.Runes)
	case tea.KeyCtrlC:
		m.quitting = true
		return m, tea.Quit
	}
	return m, nil
}

// commitEdit applies the typed value to the selected field. Hex input
// sets the exact width typed, so fields can grow or shrink; numeric
// and text input keeps the current width. Enclosing lengths recompute
// on their own.
func (m *Inspector) commitEdit() {
	ref := m.refs[m.cursor]
	v, err := ParseValue(m.input)
	if err != nil {
		m.status = err.Error()
		return
	}
	if v != nil {
		if b, ok := v.([]byte); ok {
			ref.Field.SetValue(b)
		} else {
			ref.Field.SetValue(codec.Normalize(v, ref.Field.Len()))
		}
		m.status = "set " + ref.Path
	}
	m.editing = false
	m.input = ""
}

// View implements tea.Model.
func (m *Inspector) View() string {
	if m.quitting {
		return ""
	}
	s := m.styles
	data := m.frame.Bytes()

	var b strings.Builder
	b.WriteString(s.Title.Render("FRAME INSPECTOR"))
	b.WriteString(s.Note.Render(fmt.Sprintf("  %d fields, %d bytes", len(m.refs), len(data))))
	b.WriteString("\n\n")

	pathCol := 0
	for _, ref := range m.refs {
		if len(ref.Path) > pathCol {
			pathCol = len(ref.Path)
		}
	}
	for i, ref := range m.refs {
		marker := "  "
		nameStyle := s.FieldName
		if ref.Field.IsLength() {
			nameStyle = s.Length
		}
		if i == m.cursor {
			marker = "> "
		}
		b.WriteString(marker)
		b.WriteString(nameStyle.Render(ref.Path))
		b.WriteString(strings.Repeat(" ", pathCol-len(ref.Path)+2))
		b.WriteString(s.Hex.Render(render.SpacedHex(ref.Field.Bytes())))
		if note, decoded := render.FieldNote(m.frame.Spec(), ref.Field); note != "" {
			noteStyle := s.Note
			if decoded {
				noteStyle = s.Decoded
			}
			b.WriteString("  " + noteStyle.Render(note))
		}
		b.WriteByte('\n')
	}

	b.WriteByte('\n')
	if m.editing {
		b.WriteString(s.Header.Render("edit "+m.refs[m.cursor].Path+": ") + m.input + "█\n")
	} else if m.status != "" {
		b.WriteString(s.Note.Render(m.status) + "\n")
	}
	b.WriteByte('\n')
	b.WriteString(render.HexDumpStyled(data, s))
	b.WriteString("\n" + s.Note.Render("↑/↓ move   enter edit   c copy hex   q quit") + "\n")
	return b.String()
}

// RunInspector opens the inspector full screen and returns the
// frame's serialized bytes as they stood when the operator quit.
func RunInspector(f *frame.Frame) ([]byte, error) {
	if _, err := tea.NewProgram(NewInspector(f), tea.WithAltScreen()).Run(); err != nil {
		return nil, err
	}
	return f.Bytes(), nil
}
