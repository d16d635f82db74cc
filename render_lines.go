package main

import (
	"strings"

	"treelight/internal/highlight"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

// renderTokenLine renders one document line with its token spans
// applied. Span offsets are byte offsets into text; gaps between spans
// render in the base text style. The output never exceeds width
// display columns.
func renderTokenLine(text string, spans []highlight.LineSpan, selected bool, width int) string {
	if width <= 0 {
		return ""
	}
	cut, truncated := lineCut(text, width)

	base := classStyle(highlight.ClassText, selected)

	var b strings.Builder
	pos := 0
	for _, span := range spans {
		start := clamp(span.Start, 0, cut)
		end := clamp(span.End, 0, cut)
		if start > pos {
			b.WriteString(base.Render(expandTabs(text[pos:start])))
			pos = start
		}
		if end <= pos {
			continue
		}
		if start < pos {
			start = pos
		}
		b.WriteString(classStyle(span.Class, selected).Render(expandTabs(text[start:end])))
		pos = end
	}
	if pos < cut {
		b.WriteString(base.Render(expandTabs(text[pos:cut])))
	}
	if truncated {
		b.WriteString(base.Render("..."))
	}

	return b.String()
}

// lineCut returns the byte offset where text must stop so its expanded
// form fits in width columns, and whether anything was cut. Three
// columns are reserved for the ellipsis when cutting.
func lineCut(text string, width int) (int, bool) {
	if lineDisplayWidth(text) <= width {
		return len(text), false
	}
	budget := max(0, width-3)
	w := 0
	for i, r := range text {
		rw := runeDisplayWidth(r)
		if w+rw > budget {
			return i, true
		}
		w += rw
	}
	return len(text), false
}

func lineDisplayWidth(text string) int {
	w := 0
	for _, r := range text {
		w += runeDisplayWidth(r)
	}
	return w
}

func runeDisplayWidth(r rune) int {
	if r == '\t' {
		return 4 // matches expandTabs
	}
	return runewidth.RuneWidth(r)
}

func classStyle(class highlight.Class, selected bool) lipgloss.Style {
	style := lipgloss.NewStyle().Foreground(lipgloss.Color(appTheme.Text))
	if selected {
		style = style.Background(lipgloss.Color(appTheme.SelectionBG))
	}

	switch class {
	case highlight.ClassKeyword:
		return style.Foreground(lipgloss.Color(appTheme.Keyword))
	case highlight.ClassString:
		return style.Foreground(lipgloss.Color(appTheme.String))
	case highlight.ClassNumber:
		return style.Foreground(lipgloss.Color(appTheme.Number))
	case highlight.ClassComment:
		return style.Foreground(lipgloss.Color(appTheme.Comment)).Italic(true)
	case highlight.ClassFunction:
		return style.Foreground(lipgloss.Color(appTheme.Function))
	case highlight.ClassVariable:
		return style.Foreground(lipgloss.Color(appTheme.Variable))
	case highlight.ClassType:
		return style.Foreground(lipgloss.Color(appTheme.Type))
	case highlight.ClassProperty:
		return style.Foreground(lipgloss.Color(appTheme.Property))
	case highlight.ClassTag:
		return style.Foreground(lipgloss.Color(appTheme.Tag))
	case highlight.ClassOperator:
		return style.Foreground(lipgloss.Color(appTheme.Operator)).Faint(true)
	case highlight.ClassPunctuation:
		return style.Foreground(lipgloss.Color(appTheme.Punctuation))
	case highlight.ClassConstant:
		return style.Foreground(lipgloss.Color(appTheme.Constant))
	case highlight.ClassEmbedded:
		return style.Foreground(lipgloss.Color(appTheme.Embedded))
	default:
		return style
	}
}
