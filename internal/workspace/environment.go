package workspace

import (
	"fmt"
	"sort"
	"strings"
)

// SaveEnvironment snapshots the live triad under name, overwriting any
// existing snapshot with that name, and makes it the current environment.
func (m *Manager) SaveEnvironment(name string) error {
	if m.mode != ModeWeb {
		return ErrWrongMode
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}
	m.flushSurface()
	m.touchEnv(name)
	m.currentEnv = name
	m.persistEnvs()
	return nil
}

// LoadEnvironment overwrites the live triad and the editing surface with the
// named snapshot. Unsaved triad edits are gone afterwards, which is the
// documented contract of loading.
func (m *Manager) LoadEnvironment(name string) error {
	if m.mode != ModeWeb {
		return ErrWrongMode
	}
	env, ok := m.envs[name]
	if !ok {
		return fmt.Errorf("%w: environment %s", ErrNotFound, name)
	}
	m.web = WebFiles{HTML: env.HTML, CSS: env.CSS, JS: env.JS}
	m.webModified = make(map[string]struct{})
	m.currentEnv = name
	m.persistWeb()
	m.persistEnvs()
	// Load the active slot directly; flushing the surface here would clobber
	// the snapshot we just restored.
	var content string
	switch m.webCurrent {
	case SlotCSS:
		content = m.web.CSS
	case SlotJS:
		content = m.web.JS
	default:
		content = m.web.HTML
	}
	m.loadInto(content, langFor(m.webCurrent))
	return nil
}

// DeleteEnvironment removes a snapshot after confirmation. Returns false
// when the user declined or the snapshot does not exist.
func (m *Manager) DeleteEnvironment(name string) bool {
	if m.mode != ModeWeb {
		return false
	}
	if _, ok := m.envs[name]; !ok {
		return false
	}
	if !m.confirm(fmt.Sprintf("Delete environment %s?", name)) {
		return false
	}
	delete(m.envs, name)
	if m.currentEnv == name {
		m.currentEnv = ""
	}
	m.persistEnvs()
	return true
}

// Environments returns the snapshot names, newest first.
func (m *Manager) Environments() []string {
	names := make([]string, 0, len(m.envs))
	for name := range m.envs {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		a, b := m.envs[names[i]], m.envs[names[j]]
		if a.SavedAt.Equal(b.SavedAt) {
			return names[i] < names[j]
		}
		return a.SavedAt.After(b.SavedAt)
	})
	return names
}

// CurrentEnvironment returns the name of the most recently saved or loaded
// environment, or "".
func (m *Manager) CurrentEnvironment() string { return m.currentEnv }
