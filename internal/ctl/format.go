// Package ctl implements the client-side commands for logctl.
// It talks to a running gnsslogd over HTTP and WebSocket and renders the
// results to the terminal.
package ctl

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// ANSI escape codes for terminal formatting.
const (
	reset  = "\033[0m"
	bold   = "\033[1m"
	dim    = "\033[2m"
	red    = "\033[31m"
	green  = "\033[32m"
	yellow = "\033[33m"
	blue   = "\033[34m"
	cyan   = "\033[36m"
	white  = "\033[37m"
)

// colorEnabled reports whether stdout is a terminal. When output is piped
// or redirected, ANSI escape codes are suppressed.
func colorEnabled() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

// stateColor returns the ANSI color code appropriate for a power state.
func stateColor(state string) string {
	if !colorEnabled() {
		return ""
	}
	switch state {
	case "ACTIVE":
		return green
	case "PENDING_SLEEP":
		return yellow
	case "ASLEEP":
		return blue
	case "WAKING":
		return cyan
	case "RESETTING":
		return red
	default:
		return white
	}
}

// colorize wraps text with an ANSI color sequence.
// Returns the text unchanged when color output is disabled.
func colorize(color, text string) string {
	if !colorEnabled() {
		return text
	}
	return color + text + reset
}

// header returns a bold section header, or plain text when color is off.
func header(title string) string {
	if colorEnabled() {
		return bold + title + reset
	}
	return title
}

// padRight pads s with spaces to reach the given width.
func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

// formatDuration renders a time.Duration as a compact human string like
// "2h 14m 8s" or "45s".
func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}

// formatBytes renders a byte count as a human-readable string.
func formatBytes(b int64) string {
	switch {
	case b >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(b)/float64(1<<10))
	default:
		return fmt.Sprintf("%d B", b)
	}
}

// table accumulates rows and prints them with aligned columns.
type table struct {
	indent  string
	headers []string
	rows    [][]string
	rightAl map[int]bool
}

func newTable(indent string, headers ...string) *table {
	return &table{indent: indent, headers: headers, rightAl: map[int]bool{}}
}

// alignRight right-aligns the given column index.
func (t *table) alignRight(col int) {
	t.rightAl[col] = true
}

func (t *table) row(cells ...string) {
	t.rows = append(t.rows, cells)
}

// flush prints the accumulated table with a dim separator under the header.
func (t *table) flush() {
	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = len(h)
	}
	for _, r := range t.rows {
		for i, c := range r {
			if i < len(widths) && len(c) > widths[i] {
				widths[i] = len(c)
			}
		}
	}

	line := func(cells []string, color string) {
		parts := make([]string, len(cells))
		for i, c := range cells {
			if t.rightAl[i] {
				parts[i] = strings.Repeat(" ", widths[i]-len(c)) + c
			} else {
				parts[i] = padRight(c, widths[i])
			}
			if color != "" {
				parts[i] = colorize(color, parts[i])
			}
		}
		fmt.Println(t.indent + strings.Join(parts, "  "))
	}

	line(t.headers, dim)
	total := len(t.headers)*2 - 2
	for _, w := range widths {
		total += w
	}
	fmt.Println(t.indent + colorize(dim, strings.Repeat("─", total)))
	for _, r := range t.rows {
		line(r, "")
	}
}
