package termui

import (
	"github.com/charmbracelet/bubbles/textarea"
)

// editorSurface adapts the bubbles textarea to workspace.Surface. The change
// callback is not wired to the widget itself (textarea has no callbacks);
// the update loop calls notifyChange after any message that altered the
// buffer.
type editorSurface struct {
	editor   *textarea.Model
	lang     string
	onChange func()
}

func newEditorSurface(editor *textarea.Model) *editorSurface {
	return &editorSurface{editor: editor}
}

func (s *editorSurface) Text() string {
	return s.editor.Value()
}

func (s *editorSurface) SetText(text string) {
	s.editor.SetValue(text)
	if s.onChange != nil {
		s.onChange()
	}
}

func (s *editorSurface) SetLanguage(lang string) {
	s.lang = lang
}

func (s *editorSurface) Language() string {
	return s.lang
}

func (s *editorSurface) SetOnChange(fn func()) {
	s.onChange = fn
}

func (s *editorSurface) notifyChange() {
	if s.onChange != nil {
		s.onChange()
	}
}
