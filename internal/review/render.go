package review

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// Renderer turns markdown into terminal output. Plain output is used
// when stdout is not a TTY or the terminal reports no color support, so
// piping a review session into a file stays readable.
type Renderer struct {
	tr    *glamour.TermRenderer
	plain bool
}

// NewRenderer builds a renderer for the given output. Any glamour setup
// failure silently degrades to plain text.
func NewRenderer(out io.Writer) *Renderer {
	r := &Renderer{plain: true}

	f, ok := out.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return r
	}
	if termenv.NewOutput(f).ColorProfile() == termenv.Ascii {
		return r
	}

	width := 100
	if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 0 && w < width {
		width = w
	}

	tr, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return r
	}
	r.tr = tr
	r.plain = false
	return r
}

// Render returns the markdown formatted for the terminal.
func (r *Renderer) Render(markdown string) string {
	if r.plain || r.tr == nil {
		return markdown
	}
	out, err := r.tr.Render(markdown)
	if err != nil {
		return markdown
	}
	return out
}

// rule returns a horizontal divider sized for review output.
func rule() string {
	return strings.Repeat("─", 60)
}

// scoreLine formats a critique score for display, if present.
func scoreLine(score *float64) string {
	if score == nil {
		return ""
	}
	return fmt.Sprintf("score: %.1f/10", *score)
}
