package render

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Table renders rows under a styled header, columns sized to content.
// Used for discovery results and spec listings.
type Table struct {
	Headers []string
	Rows    [][]string
}

// Render renders the table with the package-level styles.
func (t Table) Render() string { return t.RenderStyled(active) }

// RenderStyled renders the table with an explicit style set.
func (t Table) RenderStyled(s Styles) string {
	if len(t.Headers) == 0 {
		return ""
	}

	widths := make([]int, len(t.Headers))
	for i, h := range t.Headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range t.Rows {
		for i, cell := range row {
			if i < len(widths) {
				if w := lipgloss.Width(cell); w > widths[i] {
					widths[i] = w
				}
			}
		}
	}

	var b strings.Builder
	for i, h := range t.Headers {
		b.WriteString(s.Header.Render(padRight(h, widths[i])))
		if i < len(t.Headers)-1 {
			b.WriteString("  ")
		}
	}
	b.WriteByte('\n')

	total := 0
	for i, w := range widths {
		total += w
		if i < len(widths)-1 {
			total += 2
		}
	}
	b.WriteString(s.Separator.Render(strings.Repeat("─", total)))
	b.WriteByte('\n')

	for _, row := range t.Rows {
		for i := range t.Headers {
			cell := ""
			if i < len(row) {
				cell = row[i]
			}
			b.WriteString(padRight(cell, widths[i]))
			if i < len(t.Headers)-1 {
				b.WriteString("  ")
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func padRight(s string, width int) string {
	if pad := width - lipgloss.Width(s); pad > 0 {
		return s + strings.Repeat(" ", pad)
	}
	return s
}
