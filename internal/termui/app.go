// Package termui renders the interactive editor: a tabbed textarea over the
// workspace, a console viewport driven by the run controller, and an inline
// input widget for suspended guest input() calls.
package termui

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/lessonlab/codepad/internal/config"
	"github.com/lessonlab/codepad/internal/console"
	"github.com/lessonlab/codepad/internal/executor"
	"github.com/lessonlab/codepad/internal/preprocess"
	"github.com/lessonlab/codepad/internal/storage"
	"github.com/lessonlab/codepad/internal/workspace"
)

// Options wires the editor's collaborators.
type Options struct {
	Config  *config.Config
	Store   *storage.Store
	Handoff *workspace.Handoff
	Version string
	Log     *slog.Logger
}

// Run starts the editor and blocks until the user quits.
func Run(opts Options) error {
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	m := newModel(opts)
	p := tea.NewProgram(m, tea.WithAltScreen())
	m.sink.send = p.Send
	_, err := p.Run()
	m.client.Close()
	return err
}

type consoleLine struct {
	kind console.LineKind
	text string
}

type model struct {
	opts     Options
	log      *slog.Logger
	st       styles
	ws       *workspace.Manager
	surface  *editorSurface
	client   *executor.Client
	ctrl     *console.Controller
	sink     *teaSink
	rewriter *preprocess.Rewriter

	editor      textarea.Model
	consoleView viewport.Model
	inputField  textinput.Model
	dialog      *dialog

	lines     []consoleLine
	inputOpen bool
	running   bool
	sidebar   bool
	preview   bool
	status    string

	width  int
	height int
}

func newModel(opts Options) *model {
	cfg := opts.Config
	m := &model{
		opts:    opts,
		log:     opts.Log,
		st:      newStyles(),
		sink:    &teaSink{send: func(tea.Msg) {}},
		sidebar: true,
		preview: true,
	}
	if v, ok := cfg.GetCommandOption("edit", "sidebar"); ok && (v == "false" || v == "no" || v == "0" || v == "off") {
		m.sidebar = false
	}
	if v, ok := cfg.GetCommandOption("edit", "preview"); ok && (v == "false" || v == "no" || v == "0" || v == "off") {
		m.preview = false
	}

	m.editor = textarea.New()
	m.editor.ShowLineNumbers = true
	m.editor.CharLimit = 0
	m.editor.Focus()

	m.consoleView = viewport.New(0, 0)
	m.inputField = textinput.New()
	m.inputField.CharLimit = 0

	m.surface = newEditorSurface(&m.editor)
	// Confirmations are resolved by modal dialogs before the destructive
	// workspace call is made, so the manager-level hook always agrees.
	m.ws = workspace.NewManager(opts.Store, m.surface, func(string) bool { return true }, opts.Log)
	m.ws.SetOnWarn(func(msg string) { m.status = msg })
	m.ws.SetOnPreview(func(files workspace.WebFiles) {
		if !m.preview {
			return
		}
		if err := WritePreview(opts.Store.Dir(), files); err != nil {
			m.log.Warn("preview write failed", "error", err)
		}
	})

	if m.ws.Prefs().SidebarCollapsed {
		m.sidebar = false
	}

	m.rewriter = preprocess.New(append(append([]string(nil), preprocess.DefaultBuiltins...), cfg.Preprocessor.ExtraBuiltins...))

	m.client = executor.NewClient(opts.Log)
	m.client.SetBootTimeout(cfg.Engine.BootTimeout)
	m.ctrl = console.NewController(m.client, m.sink, opts.Log)
	m.ctrl.SetGrace(cfg.Engine.InterruptGrace)

	if opts.Handoff != nil {
		if err := m.ws.ImportHandoff(*opts.Handoff); err != nil {
			m.status = "handoff import failed: " + err.Error()
		} else {
			m.status = "imported snippet from handoff"
		}
	}
	return m
}

func (m *model) Init() tea.Cmd {
	// Warm the interpreter so the first run doesn't pay the bootstrap.
	warmup := func() tea.Msg {
		if err := m.client.Initialize(context.Background()); err != nil {
			m.log.Warn("interpreter warmup failed", "error", err)
		}
		return nil
	}
	return tea.Batch(textarea.Blink, warmup)
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.layout()
		return m, nil

	case consoleAppendMsg:
		m.lines = append(m.lines, consoleLine{kind: msg.kind, text: msg.text})
		m.refreshConsole()
		return m, nil
	case consoleClearMsg:
		m.lines = nil
		m.refreshConsole()
		return m, nil
	case consoleShowInputMsg:
		m.inputOpen = true
		m.inputField.Placeholder = msg.prompt
		m.inputField.SetValue("")
		m.inputField.Focus()
		m.editor.Blur()
		return m, textinput.Blink
	case consoleHideInputMsg:
		m.inputOpen = false
		m.inputField.Blur()
		m.inputField.SetValue("")
		if m.dialog == nil {
			m.editor.Focus()
		}
		return m, nil
	case consoleRunningMsg:
		m.running = msg.running
		if !msg.running {
			m.status = ""
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	m.editor, cmd = m.editor.Update(msg)
	return m, cmd
}

func (m *model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.dialog != nil {
		return m.handleDialogKey(msg)
	}
	if m.inputOpen {
		switch msg.String() {
		case "enter":
			if err := m.ctrl.SubmitInput(m.inputField.Value()); err != nil {
				m.status = err.Error()
			}
			return m, nil
		case "esc":
			if err := m.ctrl.CancelInput(); err != nil {
				m.status = err.Error()
			}
			return m, nil
		case "ctrl+c":
			m.ctrl.Stop()
			return m, nil
		}
		var cmd tea.Cmd
		m.inputField, cmd = m.inputField.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case "ctrl+c":
		if m.running {
			m.ctrl.Stop()
			return m, nil
		}
		m.ws.SaveAll()
		return m, tea.Quit
	case "ctrl+q":
		m.ws.SaveAll()
		return m, tea.Quit
	case "ctrl+r", "f5":
		m.runActive()
		return m, nil
	case "ctrl+s":
		m.ws.SaveAll()
		m.status = "saved"
		return m, nil
	case "ctrl+n":
		if m.ws.Mode() == workspace.ModeFiles {
			m.dialog = newInputDialog(dialogNewDocument, "New document name:", "")
			m.editor.Blur()
			return m, textinput.Blink
		}
		return m, nil
	case "f2":
		if m.ws.Mode() == workspace.ModeFiles && m.ws.Current() != "" {
			m.dialog = newInputDialog(dialogRenameDocument, "Rename to:", m.ws.Current())
			m.dialog.target = m.ws.Current()
			m.editor.Blur()
			return m, textinput.Blink
		}
		return m, nil
	case "ctrl+w":
		return m.closeCurrentTab()
	case "ctrl+d":
		if m.ws.Mode() == workspace.ModeFiles && m.ws.Current() != "" {
			if name, err := m.ws.DuplicateDocument(m.ws.Current()); err != nil {
				m.status = err.Error()
			} else {
				m.status = "duplicated to " + name
			}
		}
		return m, nil
	case "ctrl+k":
		if m.ws.Mode() == workspace.ModeFiles && m.ws.Current() != "" {
			prompt := fmt.Sprintf("Delete %s? (y/n)", m.ws.Current())
			m.dialog = newConfirmDialog(dialogConfirmDelete, prompt, m.ws.Current())
			m.editor.Blur()
		}
		return m, nil
	case "ctrl+right":
		m.cycleTab(1)
		return m, nil
	case "ctrl+left":
		m.cycleTab(-1)
		return m, nil
	case "ctrl+t":
		if m.ws.Mode() == workspace.ModeFiles {
			m.ws.SwitchMode(workspace.ModeWeb)
		} else {
			m.ws.SwitchMode(workspace.ModeFiles)
		}
		return m, nil
	case "ctrl+e":
		if m.ws.Mode() == workspace.ModeWeb {
			m.dialog = newInputDialog(dialogSaveEnvironment, "Save environment as:", m.ws.CurrentEnvironment())
			m.editor.Blur()
			return m, textinput.Blink
		}
		return m, nil
	case "ctrl+l":
		if m.ws.Mode() == workspace.ModeWeb {
			m.dialog = newInputDialog(dialogLoadEnvironment, "Load environment:", "")
			m.editor.Blur()
			return m, textinput.Blink
		}
		return m, nil
	case "ctrl+b":
		m.sidebar = !m.sidebar
		m.ws.UpdatePrefs(func(p *workspace.Prefs) { p.SidebarCollapsed = !m.sidebar })
		m.layout()
		return m, nil
	}

	before := m.editor.Value()
	var cmd tea.Cmd
	m.editor, cmd = m.editor.Update(msg)
	if m.editor.Value() != before {
		m.surface.notifyChange()
	}
	return m, cmd
}

func (m *model) handleDialogKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	d := m.dialog
	if d.confirm {
		switch msg.String() {
		case "y", "Y", "enter":
			m.dialog = nil
			m.editor.Focus()
			m.applyConfirm(d)
		case "n", "N", "esc":
			m.dialog = nil
			m.editor.Focus()
		}
		return m, nil
	}
	switch msg.String() {
	case "enter":
		value := strings.TrimSpace(d.input.Value())
		m.dialog = nil
		m.editor.Focus()
		m.applyInput(d, value)
		return m, nil
	case "esc":
		m.dialog = nil
		m.editor.Focus()
		return m, nil
	}
	var cmd tea.Cmd
	d.input, cmd = d.input.Update(msg)
	return m, cmd
}

func (m *model) applyInput(d *dialog, value string) {
	if value == "" {
		return
	}
	var err error
	switch d.kind {
	case dialogNewDocument:
		err = m.ws.CreateDocument(value, "", workspace.KindExecutable)
	case dialogRenameDocument:
		err = m.ws.RenameDocument(d.target, value)
	case dialogSaveEnvironment:
		err = m.ws.SaveEnvironment(value)
		if err == nil {
			m.status = "environment saved: " + value
		}
	case dialogLoadEnvironment:
		err = m.ws.LoadEnvironment(value)
	}
	if err != nil {
		m.status = err.Error()
	}
}

func (m *model) applyConfirm(d *dialog) {
	switch d.kind {
	case dialogConfirmClose:
		m.ws.CloseTab(d.target)
	case dialogConfirmDelete:
		m.ws.DeleteDocument(d.target)
	}
}

func (m *model) closeCurrentTab() (tea.Model, tea.Cmd) {
	if m.ws.Mode() != workspace.ModeFiles || m.ws.Current() == "" {
		return m, nil
	}
	name := m.ws.Current()
	if m.ws.IsModified(name) {
		prompt := fmt.Sprintf("Discard unsaved changes to %s? (y/n)", name)
		m.dialog = newConfirmDialog(dialogConfirmClose, prompt, name)
		m.editor.Blur()
		return m, nil
	}
	m.ws.CloseTab(name)
	return m, nil
}

func (m *model) cycleTab(dir int) {
	if m.ws.Mode() == workspace.ModeWeb {
		slots := []string{workspace.SlotHTML, workspace.SlotCSS, workspace.SlotJS}
		cur := 0
		for i, s := range slots {
			if s == m.ws.Current() {
				cur = i
			}
		}
		_ = m.ws.OpenWebDocument(slots[((cur+dir)%3+3)%3])
		return
	}
	tabs := m.ws.Tabs()
	if len(tabs) < 2 {
		return
	}
	cur := 0
	for i, t := range tabs {
		if t == m.ws.Current() {
			cur = i
		}
	}
	next := ((cur+dir)%len(tabs) + len(tabs)) % len(tabs)
	if err := m.ws.OpenDocument(tabs[next]); err != nil {
		m.status = err.Error()
	}
}

// runActive snapshots the workspace, preprocesses the whole snapshot with the
// active document as the entry, and hands the job to the run controller.
func (m *model) runActive() {
	if m.running {
		m.status = "a run is already in progress"
		return
	}
	name, source, ok := m.ws.ActiveSource()
	if !ok {
		m.status = "nothing to run"
		return
	}
	program, code := m.rewriter.RewriteProgram(m.ws.Snapshot(), name, source)
	if err := m.ctrl.Run(context.Background(), name, program, code); err != nil {
		m.status = err.Error()
	}
}

func (m *model) refreshConsole() {
	m.consoleView.SetContent(renderConsole(m.lines, m.consoleView.Width, m.st))
	m.consoleView.GotoBottom()
}

func (m *model) layout() {
	if m.width == 0 || m.height == 0 {
		return
	}
	consoleHeight := m.height / 3
	if consoleHeight < 5 {
		consoleHeight = 5
	}
	editorHeight := m.height - consoleHeight - 2 // tabs + status
	if editorHeight < 3 {
		editorHeight = 3
	}
	sidebarWidth := 0
	if m.sidebar {
		sidebarWidth = 24
	}
	m.editor.SetWidth(m.width - sidebarWidth)
	m.editor.SetHeight(editorHeight)
	m.consoleView.Width = m.width
	m.consoleView.Height = consoleHeight - 1
	m.inputField.Width = m.width - 4
	m.refreshConsole()
}

func (m *model) View() string {
	if m.width == 0 {
		return "loading..."
	}
	var b strings.Builder
	b.WriteString(m.viewTabs())
	b.WriteByte('\n')

	editorView := m.editor.View()
	if m.sidebar {
		side := m.st.sidebar.Height(m.editor.Height()).Render(m.viewSidebar())
		editorView = lipgloss.JoinHorizontal(lipgloss.Top, side, editorView)
	}
	b.WriteString(editorView)
	b.WriteByte('\n')

	consolePane := m.consoleView.View()
	if m.inputOpen {
		consolePane += "\n" + m.st.inputPrompt.Render("> ") + m.inputField.View()
	}
	if m.dialog != nil {
		consolePane += "\n" + m.viewDialog()
	}
	b.WriteString(m.st.consolePane.Width(m.width).Render(consolePane))
	b.WriteByte('\n')
	b.WriteString(m.viewStatus())
	return b.String()
}

func (m *model) viewTabs() string {
	var parts []string
	if m.ws.Mode() == workspace.ModeWeb {
		for _, slot := range []string{workspace.SlotHTML, workspace.SlotCSS, workspace.SlotJS} {
			parts = append(parts, m.renderTab(slot, slot == m.ws.Current(), m.ws.IsModified(slot)))
		}
	} else {
		for _, tab := range m.ws.Tabs() {
			parts = append(parts, m.renderTab(tab, tab == m.ws.Current(), m.ws.IsModified(tab)))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func (m *model) renderTab(name string, active, modified bool) string {
	label := name
	if modified {
		label += " *"
	}
	switch {
	case active:
		return m.st.tabActive.Render(label)
	case modified:
		return m.st.tabModified.Render(label)
	default:
		return m.st.tabInactive.Render(label)
	}
}

func (m *model) viewSidebar() string {
	var b strings.Builder
	if m.ws.Mode() == workspace.ModeWeb {
		b.WriteString(m.st.sidebarTitle.Render("environments"))
		b.WriteByte('\n')
		current := m.ws.CurrentEnvironment()
		for _, name := range m.ws.Environments() {
			marker := "  "
			if name == current {
				marker = "* "
			}
			b.WriteString(marker + truncateLine(name, 20) + "\n")
		}
		return b.String()
	}
	b.WriteString(m.st.sidebarTitle.Render("documents"))
	b.WriteByte('\n')
	for _, name := range m.ws.Documents() {
		marker := "  "
		if m.ws.IsModified(name) {
			marker = "* "
		}
		b.WriteString(marker + truncateLine(name, 20) + "\n")
	}
	return b.String()
}

func (m *model) viewDialog() string {
	d := m.dialog
	if d.confirm {
		return m.st.inputPrompt.Render(d.prompt)
	}
	return m.st.inputPrompt.Render(d.prompt+" ") + d.input.View()
}

func (m *model) viewStatus() string {
	mode := "files"
	if m.ws.Mode() == workspace.ModeWeb {
		mode = "web"
	}
	state := "idle"
	if m.running {
		state = "running (ctrl+c to stop)"
	}
	left := fmt.Sprintf(" codepad %s | %s | %s | %s", m.opts.Version, mode, m.ws.Current(), state)
	if m.status != "" {
		return m.st.statusError.Width(m.width).Render(left + " | " + m.status)
	}
	return m.st.statusBar.Width(m.width).Render(left)
}
