// Package render writes matches for people (colored text) and for programs
// (JSON lines).
package render

import (
	"bufio"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/termenv"

	"github.com/asheshgoplani/evalgrep/internal/evallog"
	"github.com/asheshgoplani/evalgrep/internal/scan"
)

// Renderer writes matches in the order it receives them.
type Renderer interface {
	Render(m scan.Match) error
	Flush() error
}

// Ellipsis marks truncated content.
const Ellipsis = "…"

// ANSI palette indices, so the terminal theme decides the exact shade.
var (
	colorRed     = lipgloss.Color("1")
	colorGreen   = lipgloss.Color("2")
	colorYellow  = lipgloss.Color("3")
	colorBlue    = lipgloss.Color("4")
	colorMagenta = lipgloss.Color("5")
	colorCyan    = lipgloss.Color("6")
)

// RoleColor returns the color used for a role tag.
func RoleColor(r evallog.Role) lipgloss.Color {
	switch r {
	case evallog.RoleSystem:
		return colorMagenta
	case evallog.RoleUser:
		return colorBlue
	case evallog.RoleAssistant:
		return colorGreen
	case evallog.RoleTool:
		return colorYellow
	}
	return colorRed
}

// TextOptions configures the text renderer.
type TextOptions struct {
	// Profile selects escape sequences; termenv.Ascii disables styling.
	Profile termenv.Profile

	// Truncate limits content to this many display columns (0 = no limit).
	Truncate int
}

type textStyles struct {
	file      lipgloss.Style
	sampleID  lipgloss.Style
	epoch     lipgloss.Style
	highlight lipgloss.Style
	roles     map[evallog.Role]lipgloss.Style
}

// Text renders each match as a header line followed by the message content:
//
//	<file> sample <id> epoch <n> | [role]
//	<content>
//
// Matched spans are highlighted in bold red.
type Text struct {
	w        *bufio.Writer
	styles   textStyles
	truncate int
}

// NewText returns a text renderer writing to w.
func NewText(w io.Writer, opts TextOptions) *Text {
	r := lipgloss.NewRenderer(w)
	r.SetColorProfile(opts.Profile)

	base := r.NewStyle().TabWidth(lipgloss.NoTabConversion)
	st := textStyles{
		file:      base.Foreground(colorCyan),
		sampleID:  base.Foreground(colorYellow),
		epoch:     base.Foreground(colorGreen),
		highlight: base.Foreground(colorRed).Bold(true),
		roles:     make(map[evallog.Role]lipgloss.Style, len(evallog.Roles)),
	}
	for _, role := range evallog.Roles {
		st.roles[role] = base.Foreground(RoleColor(role)).Bold(true)
	}

	truncate := opts.Truncate
	if truncate < 0 {
		truncate = 0
	}
	return &Text{w: bufio.NewWriter(w), styles: st, truncate: truncate}
}

// Render writes one match.
func (t *Text) Render(m scan.Match) error {
	roleStyle, ok := t.styles.roles[m.Role]
	if !ok {
		roleStyle = t.styles.highlight
	}

	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(t.styles.file.Render(filepath.Base(m.Path)))
	b.WriteString(" sample ")
	b.WriteString(t.styles.sampleID.Render(m.SampleID))
	b.WriteString(" epoch ")
	b.WriteString(t.styles.epoch.Render(strconv.Itoa(m.Epoch)))
	b.WriteString(" | ")
	b.WriteString(roleStyle.Render("[" + m.Role.String() + "]"))
	b.WriteString("\n")

	content, spans, cut := Truncate(m.Content, m.Spans, t.truncate)
	t.writeHighlighted(&b, content, spans)
	if cut {
		b.WriteString(Ellipsis)
	}
	b.WriteString("\n\n")

	_, err := t.w.WriteString(b.String())
	return err
}

// Flush writes any buffered output.
func (t *Text) Flush() error { return t.w.Flush() }

func (t *Text) writeHighlighted(b *strings.Builder, content string, spans []scan.Span) {
	pos := 0
	for _, sp := range spans {
		if sp.Start < pos || sp.End > len(content) || sp.Start >= sp.End {
			continue
		}
		b.WriteString(content[pos:sp.Start])
		b.WriteString(styleLines(t.styles.highlight, content[sp.Start:sp.End]))
		pos = sp.End
	}
	b.WriteString(content[pos:])
}

// styleLines styles each line of s on its own; lipgloss pads multi-line
// blocks to a common width.
func styleLines(st lipgloss.Style, s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if line != "" {
			lines[i] = st.Render(line)
		}
	}
	return strings.Join(lines, "\n")
}

// Truncate cuts content to at most width display columns, reserving one
// column for the ellipsis, and clips spans to what remains. It reports
// whether anything was cut. width 0 disables truncation.
func Truncate(content string, spans []scan.Span, width int) (string, []scan.Span, bool) {
	if width <= 0 || runewidth.StringWidth(content) <= width {
		return content, spans, false
	}
	cut := runewidth.Truncate(content, width-runewidth.StringWidth(Ellipsis), "")

	var kept []scan.Span
	for _, sp := range spans {
		if sp.Start >= len(cut) {
			break
		}
		if sp.End > len(cut) {
			sp.End = len(cut)
		}
		kept = append(kept, sp)
	}
	return cut, kept, true
}
