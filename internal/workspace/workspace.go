// Package workspace owns the editor's document state: the set of virtual
// files (or the fixed web triad), open tabs, dirty tracking, named
// environments, and persistence. It mediates between the text-editing
// surface and the rest of the application.
//
// The reconciliation contract: the editing surface is authoritative while a
// document is open, the workspace copy is authoritative otherwise. Every
// switch point (tab change, mode change, save, run) flushes surface into
// workspace, never the reverse, so stale persisted content can never clobber
// fresher in-memory edits.
package workspace

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/lessonlab/codepad/internal/storage"
)

var (
	// ErrNameExists rejects create/rename/duplicate collisions. Nothing is
	// mutated when it is returned.
	ErrNameExists = errors.New("a document with that name already exists")
	// ErrNotFound reports an operation on a document that does not exist.
	ErrNotFound = errors.New("no such document")
	// ErrWrongMode reports a free-form operation attempted in triad mode or
	// vice versa.
	ErrWrongMode = errors.New("operation not available in this mode")
	// ErrEmptyName rejects blank document names.
	ErrEmptyName = errors.New("document name must not be empty")
)

// Surface is the text-editing widget, supplied by the rendering layer and
// consumed as an opaque capability.
type Surface interface {
	Text() string
	SetText(text string)
	SetLanguage(lang string)
	SetOnChange(fn func())
}

// Confirm asks the user a yes/no question. The UI supplies it; tests stub it.
type Confirm func(message string) bool

// Storage blob keys.
const (
	keyFiles      = "files"
	keyWebFiles   = "webFiles"
	keyEnvs       = "environments"
	keyCurrentEnv = "currentEnvironment"
	keyPrefs      = "prefs"
)

// Manager is the workspace state manager. It is driven from the UI event
// loop and is not goroutine-safe.
type Manager struct {
	store   *storage.Store
	log     *slog.Logger
	surface Surface
	confirm Confirm
	onWarn  func(message string)

	mode Mode

	// Free-form mode state.
	docs      map[string]*Document
	tabs      []string
	current   string
	modified  map[string]struct{}
	lastSaved map[string]string

	// Triad mode state.
	web         WebFiles
	webCurrent  string
	webModified map[string]struct{}
	envs        map[string]Environment
	currentEnv  string
	onPreview   func(files WebFiles)

	prefs         Prefs
	suppressDirty bool
}

// NewManager loads persisted state (falling back to defaults on missing or
// corrupt blobs) and attaches to the editing surface.
func NewManager(store *storage.Store, surface Surface, confirm Confirm, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if confirm == nil {
		confirm = func(string) bool { return true }
	}
	m := &Manager{
		store:       store,
		log:         logger,
		surface:     surface,
		confirm:     confirm,
		docs:        make(map[string]*Document),
		modified:    make(map[string]struct{}),
		lastSaved:   make(map[string]string),
		webModified: make(map[string]struct{}),
		envs:        make(map[string]Environment),
		webCurrent:  SlotHTML,
	}
	m.loadPersisted()
	// surface may be nil for headless callers; all surface traffic is
	// guarded.
	if surface != nil {
		surface.SetOnChange(m.onSurfaceChange)
	}
	m.mountActive()
	return m
}

// SetOnWarn registers the sink for storage degradation warnings.
func (m *Manager) SetOnWarn(fn func(message string)) { m.onWarn = fn }

// SetOnPreview registers the triad live-preview rebuild callback, invoked on
// every keystroke while in web mode.
func (m *Manager) SetOnPreview(fn func(files WebFiles)) { m.onPreview = fn }

// Mode returns the active editing mode.
func (m *Manager) Mode() Mode { return m.mode }

// Tabs returns the open tab names in order.
func (m *Manager) Tabs() []string { return append([]string(nil), m.tabs...) }

// Current returns the active document name, or "" when the editor is empty.
// In web mode it is the active triad slot.
func (m *Manager) Current() string {
	if m.mode == ModeWeb {
		return m.webCurrent
	}
	return m.current
}

// IsModified reports whether the named document has unsaved edits.
func (m *Manager) IsModified(name string) bool {
	if m.mode == ModeWeb {
		_, ok := m.webModified[name]
		return ok
	}
	_, ok := m.modified[name]
	return ok
}

// Documents returns the free-form document names, sorted.
func (m *Manager) Documents() []string {
	names := make([]string, 0, len(m.docs))
	for name := range m.docs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Document returns a copy of the named document.
func (m *Manager) Document(name string) (Document, bool) {
	d, ok := m.docs[name]
	if !ok {
		return Document{}, false
	}
	return *d, true
}

// Web returns the live triad with the editing surface flushed in.
func (m *Manager) Web() WebFiles {
	m.flushSurface()
	return m.web
}

// onSurfaceChange marks the active document dirty on user edits. Programmatic
// loads suppress the marking: loading content is not editing.
func (m *Manager) onSurfaceChange() {
	if m.suppressDirty {
		return
	}
	switch m.mode {
	case ModeWeb:
		m.webModified[m.webCurrent] = struct{}{}
		m.flushSurface()
		if m.onPreview != nil {
			m.onPreview(m.web)
		}
	default:
		if m.current != "" {
			m.modified[m.current] = struct{}{}
		}
	}
}

// flushSurface copies the live surface text into the active document. This
// is the only direction state ever flows at a switch point.
func (m *Manager) flushSurface() {
	if m.surface == nil {
		return
	}
	switch m.mode {
	case ModeWeb:
		text := m.surface.Text()
		switch m.webCurrent {
		case SlotHTML:
			m.web.HTML = text
		case SlotCSS:
			m.web.CSS = text
		case SlotJS:
			m.web.JS = text
		}
	default:
		if doc, ok := m.docs[m.current]; ok {
			doc.Content = m.surface.Text()
		}
	}
}

// loadInto programmatically loads content into the surface without marking
// anything dirty.
func (m *Manager) loadInto(content, lang string) {
	if m.surface == nil {
		return
	}
	m.suppressDirty = true
	m.surface.SetLanguage(lang)
	m.surface.SetText(content)
	m.suppressDirty = false
}

// OpenDocument makes name the active document: the outgoing document is
// flushed first, then the incoming content is loaded into the surface. The
// document joins the tab set if it was not open.
func (m *Manager) OpenDocument(name string) error {
	if m.mode != ModeFiles {
		return ErrWrongMode
	}
	doc, ok := m.docs[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	m.flushSurface()
	if !m.tabOpen(name) {
		m.tabs = append(m.tabs, name)
	}
	m.current = name
	m.loadInto(doc.Content, langFor(name))
	return nil
}

// CreateDocument inserts a new document, opens it, and persists immediately.
// Names without an extension get ".js".
func (m *Manager) CreateDocument(name, content string, kind Kind) error {
	if m.mode != ModeFiles {
		return ErrWrongMode
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}
	if !strings.Contains(name, ".") {
		name += ".js"
	}
	if _, exists := m.docs[name]; exists {
		return fmt.Errorf("%w: %s", ErrNameExists, name)
	}
	m.docs[name] = &Document{
		Name:      name,
		Content:   content,
		Kind:      kind,
		CreatedAt: time.Now(),
	}
	m.lastSaved[name] = content
	if err := m.OpenDocument(name); err != nil {
		return err
	}
	m.persistFiles()
	return nil
}

// CloseTab closes an open tab. Unsaved edits require confirmation and are
// discarded back to the last saved content. Closing the active tab selects
// the previous tab by index, else the next, else leaves the editor empty.
// Returns false when the user declined.
func (m *Manager) CloseTab(name string) bool {
	if m.mode != ModeFiles {
		return false
	}
	idx := -1
	for i, t := range m.tabs {
		if t == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}
	if name == m.current {
		m.flushSurface()
	}
	if m.IsModified(name) {
		if !m.confirm(fmt.Sprintf("Discard unsaved changes to %s?", name)) {
			return false
		}
		if doc, ok := m.docs[name]; ok {
			if saved, ok := m.lastSaved[name]; ok {
				doc.Content = saved
			}
		}
		delete(m.modified, name)
	}
	m.tabs = append(m.tabs[:idx], m.tabs[idx+1:]...)
	if m.current == name {
		switch {
		case len(m.tabs) == 0:
			m.current = ""
			m.loadInto("", "text")
		case idx > 0:
			m.current = m.tabs[idx-1]
			m.loadInto(m.docs[m.current].Content, langFor(m.current))
		default:
			m.current = m.tabs[0]
			m.loadInto(m.docs[m.current].Content, langFor(m.current))
		}
	}
	return true
}

// RenameDocument moves a document to a new name, updating the tab set
// position-for-position, the active pointer, and dirty-set membership.
func (m *Manager) RenameDocument(oldName, newName string) error {
	if m.mode != ModeFiles {
		return ErrWrongMode
	}
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return ErrEmptyName
	}
	if !strings.Contains(newName, ".") {
		newName += ".js"
	}
	doc, ok := m.docs[oldName]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, oldName)
	}
	if oldName == newName {
		return nil
	}
	if _, exists := m.docs[newName]; exists {
		return fmt.Errorf("%w: %s", ErrNameExists, newName)
	}
	delete(m.docs, oldName)
	doc.Name = newName
	m.docs[newName] = doc
	for i, t := range m.tabs {
		if t == oldName {
			m.tabs[i] = newName
		}
	}
	if m.current == oldName {
		m.current = newName
	}
	if _, dirty := m.modified[oldName]; dirty {
		delete(m.modified, oldName)
		m.modified[newName] = struct{}{}
	}
	if saved, ok := m.lastSaved[oldName]; ok {
		delete(m.lastSaved, oldName)
		m.lastSaved[newName] = saved
	}
	m.persistFiles()
	return nil
}

// DuplicateDocument copies a document under a derived unique name and opens
// the copy.
func (m *Manager) DuplicateDocument(name string) (string, error) {
	if m.mode != ModeFiles {
		return "", ErrWrongMode
	}
	doc, ok := m.docs[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if name == m.current {
		m.flushSurface()
	}
	base, ext := splitName(name)
	copyName := base + "_copy" + ext
	for n := 2; ; n++ {
		if _, exists := m.docs[copyName]; !exists {
			break
		}
		copyName = fmt.Sprintf("%s_copy%d%s", base, n, ext)
	}
	if err := m.CreateDocument(copyName, doc.Content, doc.Kind); err != nil {
		return "", err
	}
	return copyName, nil
}

// DeleteDocument removes a document after confirmation. The confirmation
// message calls out unsaved changes when an open tab references them.
func (m *Manager) DeleteDocument(name string) bool {
	if m.mode != ModeFiles {
		return false
	}
	if _, ok := m.docs[name]; !ok {
		return false
	}
	msg := fmt.Sprintf("Delete %s?", name)
	if m.tabOpen(name) && m.IsModified(name) {
		msg = fmt.Sprintf("Delete %s? It has unsaved changes.", name)
	}
	if !m.confirm(msg) {
		return false
	}
	delete(m.modified, name)
	if m.tabOpen(name) {
		// Bypass the discard confirmation; deletion was just confirmed.
		m.closeTabSilently(name)
	}
	delete(m.docs, name)
	delete(m.lastSaved, name)
	m.persistFiles()
	return true
}

func (m *Manager) closeTabSilently(name string) {
	idx := -1
	for i, t := range m.tabs {
		if t == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}
	m.tabs = append(m.tabs[:idx], m.tabs[idx+1:]...)
	if m.current != name {
		return
	}
	switch {
	case len(m.tabs) == 0:
		m.current = ""
		m.loadInto("", "text")
	case idx > 0:
		m.current = m.tabs[idx-1]
		m.loadInto(m.docs[m.current].Content, langFor(m.current))
	default:
		m.current = m.tabs[0]
		m.loadInto(m.docs[m.current].Content, langFor(m.current))
	}
}

// SaveAll flushes the active document and persists the whole workspace,
// clearing the modified set entirely.
func (m *Manager) SaveAll() {
	m.flushSurface()
	switch m.mode {
	case ModeWeb:
		m.webModified = make(map[string]struct{})
		m.persistWeb()
	default:
		for name, doc := range m.docs {
			m.lastSaved[name] = doc.Content
		}
		m.modified = make(map[string]struct{})
		m.persistFiles()
	}
}

// OpenWebDocument switches the active triad slot.
func (m *Manager) OpenWebDocument(slot string) error {
	if m.mode != ModeWeb {
		return ErrWrongMode
	}
	if slot != SlotHTML && slot != SlotCSS && slot != SlotJS {
		return fmt.Errorf("%w: %s", ErrNotFound, slot)
	}
	m.flushSurface()
	m.webCurrent = slot
	// Read after the flush: the incoming slot may also be the outgoing one.
	m.loadInto(m.webSlot(slot), langFor(slot))
	return nil
}

func (m *Manager) webSlot(slot string) string {
	switch slot {
	case SlotCSS:
		return m.web.CSS
	case SlotJS:
		return m.web.JS
	default:
		return m.web.HTML
	}
}

// SwitchMode persists the outgoing mode's workspace, then rebuilds the
// editing surface for the incoming mode.
func (m *Manager) SwitchMode(mode Mode) {
	if mode == m.mode {
		return
	}
	m.flushSurface()
	switch m.mode {
	case ModeWeb:
		m.persistWeb()
	default:
		m.persistFiles()
	}
	m.mode = mode
	m.prefs.ActiveMode = mode
	m.persistPrefs()
	m.mountActive()
}

// mountActive loads the active document of the current mode into the
// surface. The surface is not flushed here: at mount time (startup, mode
// switch) it holds content from the other mode, or nothing at all.
func (m *Manager) mountActive() {
	switch m.mode {
	case ModeWeb:
		if m.webCurrent == "" {
			m.webCurrent = SlotHTML
		}
		m.loadInto(m.webSlot(m.webCurrent), langFor(m.webCurrent))
	default:
		if m.current == "" && len(m.tabs) > 0 {
			m.current = m.tabs[0]
		}
		if m.current != "" {
			if doc, ok := m.docs[m.current]; ok {
				m.loadInto(doc.Content, langFor(m.current))
				return
			}
			m.current = ""
		}
		m.loadInto("", "text")
	}
}

// Snapshot flushes the surface and returns the full name->content map for
// the interpreter's virtual filesystem.
func (m *Manager) Snapshot() map[string]string {
	m.flushSurface()
	files := make(map[string]string, len(m.docs))
	switch m.mode {
	case ModeWeb:
		files[SlotHTML] = m.web.HTML
		files[SlotCSS] = m.web.CSS
		files[SlotJS] = m.web.JS
	default:
		for name, doc := range m.docs {
			files[name] = doc.Content
		}
	}
	return files
}

// ActiveSource flushes the surface and returns the source text to execute:
// the active document in free-form mode, the script document in web mode.
func (m *Manager) ActiveSource() (name, content string, ok bool) {
	m.flushSurface()
	if m.mode == ModeWeb {
		return SlotJS, m.web.JS, true
	}
	doc, found := m.docs[m.current]
	if !found {
		return "", "", false
	}
	return doc.Name, doc.Content, true
}

// Prefs returns the persisted UI preferences.
func (m *Manager) Prefs() Prefs { return m.prefs }

// UpdatePrefs mutates and persists UI preferences.
func (m *Manager) UpdatePrefs(update func(p *Prefs)) {
	update(&m.prefs)
	m.persistPrefs()
}

func (m *Manager) tabOpen(name string) bool {
	for _, t := range m.tabs {
		if t == name {
			return true
		}
	}
	return false
}

func splitName(name string) (base, ext string) {
	if i := strings.LastIndexByte(name, '.'); i > 0 {
		return name[:i], name[i:]
	}
	return name, ""
}
