package termui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/lessonlab/codepad/internal/console"
)

type styles struct {
	tabActive    lipgloss.Style
	tabInactive  lipgloss.Style
	tabModified  lipgloss.Style
	sidebar      lipgloss.Style
	sidebarTitle lipgloss.Style
	statusBar    lipgloss.Style
	statusError  lipgloss.Style
	consolePane  lipgloss.Style
	lineStdout   lipgloss.Style
	lineStderr   lipgloss.Style
	lineInfo     lipgloss.Style
	lineError    lipgloss.Style
	lineResult   lipgloss.Style
	lineEcho     lipgloss.Style
	inputPrompt  lipgloss.Style
}

func newStyles() styles {
	return styles{
		tabActive:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("62")).Padding(0, 1),
		tabInactive:  lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Padding(0, 1),
		tabModified:  lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Padding(0, 1),
		sidebar:      lipgloss.NewStyle().Border(lipgloss.NormalBorder(), false, true, false, false).BorderForeground(lipgloss.Color("240")).Padding(0, 1),
		sidebarTitle: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("75")),
		statusBar:    lipgloss.NewStyle().Foreground(lipgloss.Color("250")).Background(lipgloss.Color("236")).Padding(0, 1),
		statusError:  lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Background(lipgloss.Color("236")).Padding(0, 1),
		consolePane:  lipgloss.NewStyle().Border(lipgloss.NormalBorder(), true, false, false, false).BorderForeground(lipgloss.Color("240")),
		lineStdout:   lipgloss.NewStyle(),
		lineStderr:   lipgloss.NewStyle().Foreground(lipgloss.Color("203")),
		lineInfo:     lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Italic(true),
		lineError:    lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		lineResult:   lipgloss.NewStyle().Foreground(lipgloss.Color("75")),
		lineEcho:     lipgloss.NewStyle().Foreground(lipgloss.Color("114")),
		inputPrompt:  lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
	}
}

func (s styles) lineStyle(kind console.LineKind) lipgloss.Style {
	switch kind {
	case console.LineStderr:
		return s.lineStderr
	case console.LineInfo:
		return s.lineInfo
	case console.LineError:
		return s.lineError
	case console.LineResult:
		return s.lineResult
	case console.LineEcho:
		return s.lineEcho
	default:
		return s.lineStdout
	}
}

// truncateLine clips a console line to the pane width, accounting for
// wide runes.
func truncateLine(text string, width int) string {
	if width <= 0 {
		return text
	}
	if runewidth.StringWidth(text) <= width {
		return text
	}
	return runewidth.Truncate(text, width-1, "…")
}

// renderConsole renders tagged lines into viewport content.
func renderConsole(lines []consoleLine, width int, st styles) string {
	var b strings.Builder
	for i, l := range lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(st.lineStyle(l.kind).Render(truncateLine(l.text, width)))
	}
	return b.String()
}
