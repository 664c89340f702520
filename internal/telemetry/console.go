package telemetry

import (
	"regexp"
	"strings"
)

// DefaultConsoleLines is the retained-line cap for the console buffer.
const DefaultConsoleLines = 500

// ansiEscape matches CSI escape sequences: colors, cursor movement and
// erase codes.
var ansiEscape = regexp.MustCompile(`\x1b\[[0-9;]*[A-Za-z]`)

// CleanLine strips ANSI escape sequences and trailing CR/LF from a raw
// console line.
func CleanLine(raw string) string {
	return strings.TrimRight(ansiEscape.ReplaceAllString(raw, ""), "\r\n")
}

// Console is a sliding window over recent console lines: once the cap
// is reached the oldest lines fall off silently. It is a view buffer,
// not an archive.
//
// Console is not safe for concurrent use; the owning session serializes
// access.
type Console struct {
	lines []string
	max   int
}

// NewConsole creates a console buffer retaining at most max lines.
// Non-positive max falls back to DefaultConsoleLines.
func NewConsole(max int) *Console {
	if max <= 0 {
		max = DefaultConsoleLines
	}
	return &Console{max: max}
}

// Append cleans and appends one output line, returning the cleaned line
// and whether it was kept. Lines empty after stripping are dropped.
func (c *Console) Append(raw string) (string, bool) {
	line := CleanLine(raw)
	if line == "" {
		return "", false
	}
	c.lines = append(c.lines, line)
	if over := len(c.lines) - c.max; over > 0 {
		c.lines = append([]string(nil), c.lines[over:]...)
	}
	return line, true
}

// Backfill prepends history lines ahead of whatever is already
// buffered. The cap still holds; when history plus current output
// exceeds it, the oldest lines are dropped first.
func (c *Console) Backfill(history []string) {
	cleaned := make([]string, 0, len(history))
	for _, raw := range history {
		if line := CleanLine(raw); line != "" {
			cleaned = append(cleaned, line)
		}
	}
	if len(cleaned) == 0 {
		return
	}
	merged := append(cleaned, c.lines...)
	if over := len(merged) - c.max; over > 0 {
		merged = merged[over:]
	}
	c.lines = append([]string(nil), merged...)
}

// Clear empties the buffer.
func (c *Console) Clear() {
	c.lines = nil
}

// Lines returns a copy of the buffered lines, oldest first.
func (c *Console) Lines() []string {
	return append([]string(nil), c.lines...)
}

// Len returns the number of buffered lines.
func (c *Console) Len() int {
	return len(c.lines)
}
