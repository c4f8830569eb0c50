package report

import (
	"fmt"
	"html"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"clinical-deid/internal/extract"
	"clinical-deid/internal/oracle"
)

// color pairs a CSS color name with its hex value for terminals.
type color struct {
	css string
	hex string
}

// typeColors is indexed by extract.Type.
var typeColors = [...]color{
	extract.TypeDisease:    {"lightcoral", "#F08080"},
	extract.TypeMedication: {"lightgreen", "#90EE90"},
	extract.TypeSymptom:    {"orange", "#FFA500"},
	extract.TypeLabTest:    {"lightblue", "#ADD8E6"},
	extract.TypeProcedure:  {"violet", "#EE82EE"},
}

var fallbackColor = color{"yellow", "#FFFF00"}

func colorFor(t extract.Type) color {
	if int(t) >= 0 && int(t) < len(typeColors) {
		return typeColors[t]
	}
	return fallbackColor
}

// segment is a run of text, highlighted when typ is set.
type segment struct {
	text string
	typ  *extract.Type
}

// segments splits text around entities. Entity offsets are characters.
// When entities overlap, the first in start order wins; this keeps one
// highlight for a surface matched under two types.
func segments(text string, entities []extract.Entity) []segment {
	ri := oracle.NewRuneIndex(text)
	type span struct {
		start, end int
		typ        extract.Type
	}
	spans := make([]span, 0, len(entities))
	for _, e := range entities {
		s, en := ri.ByteOffset(e.Start), ri.ByteOffset(e.End)
		if s < 0 || en < 0 || s >= en {
			continue
		}
		spans = append(spans, span{s, en, e.Type})
	}
	sort.SliceStable(spans, func(i, j int) bool { return spans[i].start < spans[j].start })

	var out []segment
	pos := 0
	for _, sp := range spans {
		if sp.start < pos {
			continue
		}
		if sp.start > pos {
			out = append(out, segment{text: text[pos:sp.start]})
		}
		typ := sp.typ
		out = append(out, segment{text: text[sp.start:sp.end], typ: &typ})
		pos = sp.end
	}
	if pos < len(text) {
		out = append(out, segment{text: text[pos:]})
	}
	return out
}

// HighlightHTML returns text as an HTML fragment with each entity wrapped
// in a colored span. All text is escaped.
func HighlightHTML(text string, entities []extract.Entity) string {
	var b strings.Builder
	b.WriteString(`<div style="font-family:monospace; white-space:pre-wrap">`)
	for _, seg := range segments(text, entities) {
		if seg.typ == nil {
			b.WriteString(html.EscapeString(seg.text))
			continue
		}
		fmt.Fprintf(&b, `<span style="background-color:%s;" title="%s">%s</span>`,
			colorFor(*seg.typ).css, seg.typ.String(), html.EscapeString(seg.text))
	}
	b.WriteString(`</div>`)
	return b.String()
}

// PlainHTML returns text escaped inside the same container, without
// highlighting. Used for the original-text view.
func PlainHTML(text string) string {
	return `<div style="font-family:monospace; white-space:pre-wrap">` + html.EscapeString(text) + `</div>`
}

// RenderTerminal returns text with entities drawn as colored blocks for
// terminal output. The renderer decides the color profile; pass
// lipgloss.DefaultRenderer() for stdout.
func RenderTerminal(r *lipgloss.Renderer, text string, entities []extract.Entity) string {
	styles := make(map[extract.Type]lipgloss.Style, len(typeColors))
	for _, t := range extract.Types() {
		styles[t] = r.NewStyle().
			Background(lipgloss.Color(colorFor(t).hex)).
			Foreground(lipgloss.Color("#000000"))
	}
	var b strings.Builder
	for _, seg := range segments(text, entities) {
		if seg.typ == nil {
			b.WriteString(seg.text)
			continue
		}
		b.WriteString(styles[*seg.typ].Render(seg.text))
	}
	return b.String()
}

// Legend returns one styled sample per type, space separated.
func Legend(r *lipgloss.Renderer) string {
	parts := make([]string, 0, len(typeColors))
	for _, t := range extract.Types() {
		parts = append(parts, r.NewStyle().
			Background(lipgloss.Color(colorFor(t).hex)).
			Foreground(lipgloss.Color("#000000")).
			Padding(0, 1).
			Render(t.String()))
	}
	return strings.Join(parts, " ")
}
