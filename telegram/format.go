package telegram

import (
	"fmt"
	"html"
	"strings"
	"unicode/utf8"

	"github.com/gomarkdown/markdown/ast"
	"github.com/gomarkdown/markdown/parser"

	"ocode/tools"
)

// MaxMessageLen is Telegram's practical message cap, held a little under
// the hard 4096 limit to leave room for closing tags.
const MaxMessageLen = 4000

// FormatHTML converts assistant markdown to the HTML subset Telegram
// accepts (b, i, code, pre, a). Tool-call blocks are stripped first; the
// raw fenced JSON is protocol, not conversation.
func FormatHTML(text string) string {
	text = strings.TrimSpace(tools.StripToolBlocks(text))
	if text == "" {
		return ""
	}

	p := parser.NewWithExtensions(parser.CommonExtensions &^ parser.Autolink)
	doc := p.Parse([]byte(text))

	var b strings.Builder
	renderNode(&b, doc)
	return strings.TrimSpace(b.String())
}

func renderNode(b *strings.Builder, node ast.Node) {
	switch n := node.(type) {
	case *ast.Text:
		b.WriteString(html.EscapeString(string(n.Literal)))
	case *ast.Softbreak, *ast.Hardbreak:
		b.WriteString("\n")
	case *ast.Strong:
		b.WriteString("<b>")
		renderChildren(b, n)
		b.WriteString("</b>")
	case *ast.Emph:
		b.WriteString("<i>")
		renderChildren(b, n)
		b.WriteString("</i>")
	case *ast.Code:
		b.WriteString("<code>")
		b.WriteString(html.EscapeString(string(n.Literal)))
		b.WriteString("</code>")
	case *ast.CodeBlock:
		if lang := string(n.Info); lang != "" {
			fmt.Fprintf(b, "<pre><code class=\"language-%s\">", html.EscapeString(lang))
			b.WriteString(html.EscapeString(strings.TrimRight(string(n.Literal), "\n")))
			b.WriteString("</code></pre>\n\n")
		} else {
			b.WriteString("<pre>")
			b.WriteString(html.EscapeString(strings.TrimRight(string(n.Literal), "\n")))
			b.WriteString("</pre>\n\n")
		}
	case *ast.Link:
		fmt.Fprintf(b, "<a href=%q>", string(n.Destination))
		renderChildren(b, n)
		b.WriteString("</a>")
	case *ast.Heading:
		b.WriteString("<b>")
		renderChildren(b, n)
		b.WriteString("</b>\n\n")
	case *ast.Paragraph:
		renderChildren(b, n)
		// List items carry their own separators.
		if _, inItem := n.GetParent().(*ast.ListItem); !inItem {
			b.WriteString("\n\n")
		}
	case *ast.ListItem:
		b.WriteString("• ")
		renderChildren(b, n)
		b.WriteString("\n")
	case *ast.List:
		renderChildren(b, n)
		b.WriteString("\n")
	default:
		renderChildren(b, node)
	}
}

func renderChildren(b *strings.Builder, node ast.Node) {
	for _, child := range node.GetChildren() {
		renderNode(b, child)
	}
}

// SplitMessage cuts text into chunks of at most limit characters
// (runes, so multi-byte text is never split mid-glyph), preferring line
// boundaries. A single oversized line is hard-split.
func SplitMessage(text string, limit int) []string {
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	var parts []string
	var current strings.Builder
	currentLen := 0
	flush := func() {
		if chunk := strings.TrimRight(current.String(), "\n"); chunk != "" {
			parts = append(parts, chunk)
		}
		current.Reset()
		currentLen = 0
	}

	for _, line := range strings.Split(text, "\n") {
		runes := []rune(line)
		for len(runes) > limit {
			flush()
			parts = append(parts, string(runes[:limit]))
			runes = runes[limit:]
		}
		if currentLen+len(runes)+1 > limit {
			flush()
		}
		current.WriteString(string(runes))
		current.WriteString("\n")
		currentLen += len(runes) + 1
	}
	flush()
	return parts
}
