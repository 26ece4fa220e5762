package ui

import (
	"strings"

	markdown "github.com/MichaelMure/go-term-markdown"
	"github.com/mattn/go-runewidth"
)

const defaultWidth = 100

// RenderMarkdown renders assistant markdown for the terminal.
func RenderMarkdown(content string, width int) string {
	if width <= 0 {
		width = defaultWidth
	}
	rendered := markdown.Render(content, width, 0)
	return strings.TrimRight(string(rendered), "\n")
}

// TruncateLine shortens a line to a display width, runewidth-aware so
// wide CJK glyphs count double.
func TruncateLine(line string, width int) string {
	if runewidth.StringWidth(line) <= width {
		return line
	}
	return runewidth.Truncate(line, width, "...")
}
