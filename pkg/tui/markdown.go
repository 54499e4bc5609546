package tui

import (
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
)

// AI analyses and chat replies arrive as markdown; everything else in the
// cockpit is plain text. Rendering failures fall back to the raw input so a
// bad terminal profile never hides a diagnosis.

var newRenderer = sync.OnceValue(func() *glamour.TermRenderer {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(0), // the inspector viewport wraps
	)
	if err != nil {
		return nil
	}
	return r
})

func renderMarkdown(md string) string {
	r := newRenderer()
	if r == nil || strings.TrimSpace(md) == "" {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return strings.TrimRight(out, "\n")
}

// renderMarkdownWidth wraps at a fixed column width for the chat overlay,
// which has no viewport of its own.
func renderMarkdownWidth(md string, width int) string {
	if strings.TrimSpace(md) == "" {
		return md
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return renderMarkdown(md)
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return strings.TrimRight(out, "\n")
}
