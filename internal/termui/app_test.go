package termui

import (
	"strings"
	"testing"

	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/lessonlab/codepad/internal/config"
	"github.com/lessonlab/codepad/internal/console"
	"github.com/lessonlab/codepad/internal/storage"
	"github.com/lessonlab/codepad/internal/workspace"
)

func newTestModel(t *testing.T) *model {
	t.Helper()
	store, err := storage.Open(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	m := newModel(Options{Config: config.NewConfig(), Store: store, Version: "test"})
	t.Cleanup(m.client.Close)
	m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return m
}

func keyRunes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestEditorSurfaceAdapter(t *testing.T) {
	ta := textarea.New()
	s := newEditorSurface(&ta)

	changes := 0
	s.SetOnChange(func() { changes++ })
	s.SetText("hello")
	if s.Text() != "hello" {
		t.Errorf("Text = %q", s.Text())
	}
	if changes != 1 {
		t.Errorf("changes = %d", changes)
	}
	s.SetLanguage("javascript")
	if s.Language() != "javascript" {
		t.Errorf("Language = %q", s.Language())
	}
}

func TestConsoleMessagesRender(t *testing.T) {
	m := newTestModel(t)
	m.Update(consoleAppendMsg{kind: console.LineStdout, text: "Hello, World!"})
	if !strings.Contains(m.View(), "Hello, World!") {
		t.Error("console line not rendered")
	}
	m.Update(consoleClearMsg{})
	if strings.Contains(m.View(), "Hello, World!") {
		t.Error("console not cleared")
	}
}

func TestInputWidgetShowsAndFocuses(t *testing.T) {
	m := newTestModel(t)
	m.Update(consoleShowInputMsg{prompt: "Name: "})
	if !m.inputOpen {
		t.Fatal("input widget not opened")
	}
	if m.editor.Focused() {
		t.Error("editor kept focus while input widget is open")
	}
	m.Update(consoleHideInputMsg{})
	if m.inputOpen {
		t.Error("input widget not closed")
	}
	if !m.editor.Focused() {
		t.Error("editor focus not restored")
	}
}

func TestNewDocumentDialogCreatesDocument(t *testing.T) {
	m := newTestModel(t)
	m.Update(tea.KeyMsg{Type: tea.KeyCtrlN})
	if m.dialog == nil {
		t.Fatal("dialog not opened")
	}
	for _, r := range "util.js" {
		m.Update(keyRunes(string(r)))
	}
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if m.dialog != nil {
		t.Fatal("dialog not dismissed")
	}
	if _, ok := m.ws.Document("util.js"); !ok {
		t.Errorf("document not created; have %v", m.ws.Documents())
	}
	if m.ws.Current() != "util.js" {
		t.Errorf("Current = %q", m.ws.Current())
	}
}

func TestDialogEscapeCancels(t *testing.T) {
	m := newTestModel(t)
	m.Update(tea.KeyMsg{Type: tea.KeyCtrlN})
	m.Update(keyRunes("x"))
	m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if m.dialog != nil {
		t.Error("dialog not dismissed")
	}
	if len(m.ws.Documents()) != 1 {
		t.Errorf("document created on cancel: %v", m.ws.Documents())
	}
}

func TestTypingMarksDocumentModified(t *testing.T) {
	m := newTestModel(t)
	m.Update(keyRunes("x"))
	if !m.ws.IsModified("main.js") {
		t.Error("keystroke did not mark the document modified")
	}
	view := m.View()
	if !strings.Contains(view, "main.js *") {
		t.Errorf("modified marker missing from tabs:\n%s", view)
	}
}

func TestCycleTabs(t *testing.T) {
	m := newTestModel(t)
	if err := m.ws.CreateDocument("b.js", "", workspace.KindExecutable); err != nil {
		t.Fatal(err)
	}
	m.cycleTab(1)
	if m.ws.Current() != "main.js" {
		t.Errorf("Current = %q", m.ws.Current())
	}
	m.cycleTab(-1)
	if m.ws.Current() != "b.js" {
		t.Errorf("Current = %q", m.ws.Current())
	}
}

func TestModeToggle(t *testing.T) {
	m := newTestModel(t)
	m.Update(tea.KeyMsg{Type: tea.KeyCtrlT})
	if m.ws.Mode() != workspace.ModeWeb {
		t.Fatalf("Mode = %q", m.ws.Mode())
	}
	view := m.View()
	if !strings.Contains(view, workspace.SlotHTML) {
		t.Errorf("triad tabs missing:\n%s", view)
	}
	m.Update(tea.KeyMsg{Type: tea.KeyCtrlT})
	if m.ws.Mode() != workspace.ModeFiles {
		t.Errorf("Mode = %q", m.ws.Mode())
	}
}

func TestHandoffImportedOnStartup(t *testing.T) {
	store, err := storage.Open(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	m := newModel(Options{
		Config:  config.NewConfig(),
		Store:   store,
		Handoff: &workspace.Handoff{Code: "print(9)", Language: "js", Kind: workspace.KindExecutable},
	})
	defer m.client.Close()
	if m.ws.Current() != "snippet.js" {
		t.Errorf("Current = %q", m.ws.Current())
	}
}
