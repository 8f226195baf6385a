package ui

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/rs/zerolog/log"
)

// Renderer turns an answer into terminal output.
type Renderer interface {
	Render(text string, width int) string
}

// PlainRenderer leaves text untouched.
type PlainRenderer struct{}

func (PlainRenderer) Render(text string, _ int) string { return text }

// MarkdownRenderer renders answers with glamour. Renderers are cached per
// width since the transcript is re-rendered on every update.
type MarkdownRenderer struct {
	style     string
	renderers map[int]*glamour.TermRenderer
}

func NewMarkdownRenderer(style string) *MarkdownRenderer {
	if style == "" {
		style = "dark"
	}
	return &MarkdownRenderer{style: style, renderers: map[int]*glamour.TermRenderer{}}
}

func (r *MarkdownRenderer) Render(text string, width int) string {
	if width <= 0 {
		width = 80
	}
	tr, ok := r.renderers[width]
	if !ok {
		var err error
		tr, err = glamour.NewTermRenderer(
			glamour.WithStandardStyle(r.style),
			glamour.WithWordWrap(width),
		)
		if err != nil {
			log.Debug().Err(err).Msg("markdown renderer unavailable")
			return text
		}
		r.renderers[width] = tr
	}
	out, err := tr.Render(text)
	if err != nil {
		log.Debug().Err(err).Msg("could not render markdown")
		return text
	}
	return strings.Trim(out, "\n")
}

// RenderMarkdown is a one-shot render for line-mode output.
func RenderMarkdown(text string) string {
	out, err := glamour.Render(text, "dark")
	if err != nil {
		return text
	}
	return out
}
