package main

import (
	"fmt"
	"strings"

	"treelight/internal/highlight"

	"github.com/charmbracelet/lipgloss"
)

func (m model) View() string {
	if m.width <= 0 || m.height <= 0 {
		return ""
	}

	header := m.renderHeader()
	body := m.renderBody(m.width, m.bodyHeight())
	footer := m.renderFooter()
	return lipgloss.JoinVertical(lipgloss.Left, header, body, footer)
}

func (m model) renderHeader() string {
	fileStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(appTheme.Header)).Bold(true)
	metaStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(appTheme.Muted))
	inputStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(appTheme.Text)).Background(lipgloss.Color(appTheme.InputBG)).Padding(0, 1)

	meta := fmt.Sprintf(" %s | %d lines | %d tokens | %s", m.langID, m.lines.LineCount(), m.tokenCount, appTheme.Name)
	if m.gotoActive {
		meta = " " + inputStyle.Render(m.gotoInput.View())
	}

	name := truncateText(m.path, max(0, m.width-lipgloss.Width(meta)))
	line := fileStyle.Render(name) + metaStyle.Render(meta)
	return padRightANSI(truncateText(line, m.width), m.width)
}

func (m model) renderFooter() string {
	footerStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(appTheme.Muted))
	errStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(appTheme.Error))

	text := "up/down move  pgup/pgdn jump  g goto  r re-tokenize  q quit"
	if m.status != "" {
		text += "  |  " + m.status
	}
	line := footerStyle.Render(truncateText(text, m.width))
	if m.errMsg != "" {
		line += "  " + errStyle.Render(truncateText(m.errMsg, m.width))
	}
	return padRightANSI(line, m.width)
}

func (m model) renderBody(width int, height int) string {
	if width <= 0 || height <= 0 {
		return ""
	}

	numStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(appTheme.Dim))
	curStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(appTheme.Accent)).Bold(true)

	total := m.lines.LineCount()
	gutter := numberGutterWidth(total)
	codeWidth := max(0, width-gutter-1)

	lines := make([]string, 0, height)
	for i := m.offset; i < total && len(lines) < height; i++ {
		prefix := fmt.Sprintf("%*d ", gutter, i+1)
		if i == m.cursor {
			prefix = curStyle.Render(prefix)
		} else {
			prefix = numStyle.Render(prefix)
		}

		code := renderTokenLine(m.lines.Line(i), m.lineSpans(i), i == m.cursor, codeWidth)
		if i == m.cursor {
			code = padRightANSI(code, codeWidth)
		}
		lines = append(lines, prefix+code)
	}

	for len(lines) < height {
		lines = append(lines, "")
	}

	return strings.Join(lines, "\n")
}

func (m model) lineSpans(line int) []highlight.LineSpan {
	if line < 0 || line >= len(m.spans) {
		return nil
	}
	return m.spans[line]
}

func numberGutterWidth(total int) int {
	width := 1
	for total >= 10 {
		total /= 10
		width++
	}
	return max(4, width)
}
