package termui

import (
	"github.com/charmbracelet/bubbles/textinput"
)

type dialogKind int

const (
	dialogNewDocument dialogKind = iota
	dialogRenameDocument
	dialogSaveEnvironment
	dialogLoadEnvironment
	dialogConfirmClose
	dialogConfirmDelete
)

// dialog is a single-field modal: a text prompt for name dialogs, a yes/no
// question for confirm dialogs. target carries the document or environment
// the dialog acts on.
type dialog struct {
	kind    dialogKind
	prompt  string
	target  string
	input   textinput.Model
	confirm bool
}

func newInputDialog(kind dialogKind, prompt, initial string) *dialog {
	ti := textinput.New()
	ti.SetValue(initial)
	ti.CursorEnd()
	ti.Focus()
	ti.CharLimit = 128
	return &dialog{kind: kind, prompt: prompt, input: ti}
}

func newConfirmDialog(kind dialogKind, prompt, target string) *dialog {
	return &dialog{kind: kind, prompt: prompt, target: target, confirm: true}
}
