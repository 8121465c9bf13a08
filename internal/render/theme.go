// Package render turns frames and raw payloads into styled terminal
// output: an indented field tree, hex dumps, and plain data tables.
// Colors follow the Tokyo Night palette with light-background
// fallbacks; Plain(true) strips all styling for --no-color runs and
// piped output.
package render

import "github.com/charmbracelet/lipgloss"

// Theme defines the color roles used by the renderers.
type Theme struct {
	TextPrimary lipgloss.TerminalColor // field names, main text
	TextDim     lipgloss.TerminalColor // secondary text, block types
	TextMuted   lipgloss.TerminalColor // tree stems, separators

	Accent  lipgloss.TerminalColor // titles, block names
	Success lipgloss.TerminalColor // decoded values
	Warning lipgloss.TerminalColor // length fields
	Error   lipgloss.TerminalColor // failures
	Info    lipgloss.TerminalColor // hex bytes
	Purple  lipgloss.TerminalColor // alternative accent
}

// DefaultTheme pairs Tokyo Night storm colors with their day-variant
// counterparts for light terminals.
var DefaultTheme = Theme{
	TextPrimary: lipgloss.AdaptiveColor{Light: "#3760bf", Dark: "#c0caf5"},
	TextDim:     lipgloss.AdaptiveColor{Light: "#6172b0", Dark: "#565f89"},
	TextMuted:   lipgloss.AdaptiveColor{Light: "#848cb5", Dark: "#414868"},

	Accent:  lipgloss.AdaptiveColor{Light: "#2e7de9", Dark: "#7aa2f7"},
	Success: lipgloss.AdaptiveColor{Light: "#587539", Dark: "#9ece6a"},
	Warning: lipgloss.AdaptiveColor{Light: "#8c6c3e", Dark: "#e0af68"},
	Error:   lipgloss.AdaptiveColor{Light: "#f52a65", Dark: "#f7768e"},
	Info:    lipgloss.AdaptiveColor{Light: "#007197", Dark: "#7dcfff"},
	Purple:  lipgloss.AdaptiveColor{Light: "#7847bd", Dark: "#bb9af7"},
}

// Styles holds the pre-built lipgloss styles the renderers draw with.
type Styles struct {
	Title     lipgloss.Style // frame title line
	BlockName lipgloss.Style // block names in the tree
	BlockType lipgloss.Style // resolved block type annotations
	FieldName lipgloss.Style // field names
	Length    lipgloss.Style // names of length-bearing fields
	Hex       lipgloss.Style // raw byte columns
	Decoded   lipgloss.Style // code-table and address decodes
	Note      lipgloss.Style // numeric side notes
	Stem      lipgloss.Style // tree branch characters
	Offset    lipgloss.Style // hex dump offset column
	ASCII     lipgloss.Style // hex dump ASCII gutter
	Header    lipgloss.Style // table headers
	Separator lipgloss.Style // table rules
	Error     lipgloss.Style // error text
}

// NewStyles builds the style set for a theme.
func NewStyles(t Theme) Styles {
	return Styles{
		Title:     lipgloss.NewStyle().Foreground(t.Accent).Bold(true),
		BlockName: lipgloss.NewStyle().Foreground(t.Purple).Bold(true),
		BlockType: lipgloss.NewStyle().Foreground(t.TextDim),
		FieldName: lipgloss.NewStyle().Foreground(t.TextPrimary),
		Length:    lipgloss.NewStyle().Foreground(t.Warning),
		Hex:       lipgloss.NewStyle().Foreground(t.Info),
		Decoded:   lipgloss.NewStyle().Foreground(t.Success),
		Note:      lipgloss.NewStyle().Foreground(t.TextDim),
		Stem:      lipgloss.NewStyle().Foreground(t.TextMuted),
		Offset:    lipgloss.NewStyle().Foreground(t.TextDim),
		ASCII:     lipgloss.NewStyle().Foreground(t.TextMuted),
		Header:    lipgloss.NewStyle().Foreground(t.TextDim).Bold(true),
		Separator: lipgloss.NewStyle().Foreground(t.TextMuted),
		Error:     lipgloss.NewStyle().Foreground(t.Error).Bold(true),
	}
}

// PlainStyles returns styles that pass text through untouched.
func PlainStyles() Styles {
	plain := lipgloss.NewStyle()
	return Styles{
		Title: plain, BlockName: plain, BlockType: plain,
		FieldName: plain, Length: plain, Hex: plain,
		Decoded: plain, Note: plain, Stem: plain,
		Offset: plain, ASCII: plain,
		Header: plain, Separator: plain, Error: plain,
	}
}

var active = NewStyles(DefaultTheme)

// Plain switches the package-level renderers to unstyled output.
func Plain(on bool) {
	if on {
		active = PlainStyles()
	} else {
		active = NewStyles(DefaultTheme)
	}
}

// Active returns the styles the package-level renderers currently use.
func Active() Styles { return active }
