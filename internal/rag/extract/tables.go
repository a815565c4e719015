package extract

import (
	"strings"
)

// renderMarkdown renders a cell grid as a Markdown table. The first row is
// treated as the header and followed by a separator row; short rows are
// right-padded to the widest row. Ragged input never panics.
func renderMarkdown(grid [][]string) string {
	width := 0
	for _, r := range grid {
		if len(r) > width {
			width = len(r)
		}
	}
	if width == 0 {
		return ""
	}

	var b strings.Builder
	for i, r := range grid {
		b.WriteString("|")
		for col := 0; col < width; col++ {
			v := ""
			if col < len(r) {
				v = sanitizeCell(r[col])
			}
			b.WriteString(" ")
			b.WriteString(v)
			b.WriteString(" |")
		}
		b.WriteString("\n")

		if i == 0 {
			b.WriteString("|")
			for col := 0; col < width; col++ {
				b.WriteString(" --- |")
			}
			b.WriteString("\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// sanitizeCell flattens a cell value onto one line, collapses whitespace
// runs, and escapes pipes so the value cannot break the table syntax.
func sanitizeCell(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	return strings.ReplaceAll(s, "|", `\|`)
}

// takeTrailing returns the last at most max characters of s, trimmed.
// When the cut lands mid-line the partial first line is dropped, so the
// result starts on a line boundary unless it is a single long line.
func takeTrailing(s string, max int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}

	cut := string(runes[len(runes)-max:])
	if i := strings.IndexByte(cut, '\n'); i >= 0 && i+1 < len(cut) {
		cut = cut[i+1:]
	}
	return strings.TrimSpace(cut)
}
