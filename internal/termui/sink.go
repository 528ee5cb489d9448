package termui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/lessonlab/codepad/internal/console"
)

// Console sink messages. The console controller runs partly on the
// executor's dispatch goroutine; Program.Send serializes its sink calls back
// onto the update loop.
type (
	consoleAppendMsg struct {
		kind console.LineKind
		text string
	}
	consoleClearMsg     struct{}
	consoleShowInputMsg struct{ prompt string }
	consoleHideInputMsg struct{}
	consoleRunningMsg   struct{ running bool }
)

// teaSink implements console.Sink by sending messages into the program.
type teaSink struct {
	send func(tea.Msg)
}

func (s *teaSink) AppendLine(kind console.LineKind, text string) {
	s.send(consoleAppendMsg{kind: kind, text: text})
}

func (s *teaSink) Clear() {
	s.send(consoleClearMsg{})
}

func (s *teaSink) ShowInput(prompt string) {
	s.send(consoleShowInputMsg{prompt: prompt})
}

func (s *teaSink) HideInput() {
	s.send(consoleHideInputMsg{})
}

func (s *teaSink) SetRunning(running bool) {
	s.send(consoleRunningMsg{running: running})
}
