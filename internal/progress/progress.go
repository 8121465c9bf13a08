// Package progress draws a single-line campaign progress meter. The
// meter lives on stderr so frame output and logs on stdout stay
// parseable, and renders are throttled so a fast send loop does not
// drown the terminal in carriage returns.
package progress

import (
	"fmt"
	"io"
	"strings"
	"time"
)

const (
	barWidth        = 40
	defaultInterval = 100 * time.Millisecond
)

// Meter tracks done-out-of-total work and redraws in place on every
// Set. It is not safe for concurrent use; the campaign loop is the
// single writer.
type Meter struct {
	w     io.Writer
	label string
	total int
	done  int

	start time.Time
	last  time.Time
	every time.Duration
	drawn bool
}

// NewMeter returns a meter for total units of work, labeled on the
// left of the bar. Writes go to w, usually os.Stderr.
func NewMeter(w io.Writer, total int, label string) *Meter {
	return &Meter{
		w:     w,
		label: label,
		total: total,
		start: time.Now(),
		every: defaultInterval,
	}
}

// Set moves the meter to done units and redraws, unless the previous
// draw was under the throttle interval ago and the work is not
// finished yet.
func (m *Meter) Set(done int) {
	m.done = done
	now := time.Now()
	if m.drawn && now.Sub(m.last) < m.every && m.done < m.total {
		return
	}
	m.last = now
	m.draw()
}

// Finish completes the bar and ends the line, so following output
// starts clean. A meter that never drew stays silent.
func (m *Meter) Finish() {
	if !m.drawn {
		return
	}
	m.draw()
	fmt.Fprintln(m.w)
}

func (m *Meter) draw() {
	m.drawn = true

	percent := 100.0
	if m.total > 0 {
		percent = float64(m.done) / float64(m.total) * 100
	}
	filled := int(float64(barWidth) * percent / 100)
	if filled > barWidth {
		filled = barWidth
	}
	bar := strings.Repeat("=", filled)
	if filled < barWidth {
		bar += ">" + strings.Repeat("-", barWidth-filled-1)
	}

	elapsed := time.Since(m.start)
	line := fmt.Sprintf("\r%s [%s] %d/%d (%.0f%%) %s",
		m.label, bar, m.done, m.total, percent, formatDuration(elapsed))
	if m.done > 0 && m.done < m.total {
		rate := float64(m.done) / elapsed.Seconds()
		if rate > 0 {
			remaining := float64(m.total-m.done) / rate
			line += " eta " + formatDuration(time.Duration(remaining*float64(time.Second)))
		}
	}
	fmt.Fprint(m.w, line)
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	default:
		return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
	}
}
