package workspace

import "time"

// filesBlob is the persisted shape of the free-form workspace.
type filesBlob struct {
	Documents []Document `json:"documents"`
	Tabs      []string   `json:"tabs"`
	Current   string     `json:"current"`
}

// loadPersisted restores all state blobs, degrading to defaults on missing
// or corrupt entries. A corrupt blob must never prevent startup.
func (m *Manager) loadPersisted() {
	if m.store == nil {
		m.seedDefaults()
		return
	}

	var files filesBlob
	ok, err := m.store.Load(keyFiles, &files)
	if err != nil {
		m.warn("Stored files were unreadable; starting from defaults.")
	}
	if ok && len(files.Documents) > 0 {
		for i := range files.Documents {
			doc := files.Documents[i]
			m.docs[doc.Name] = &doc
			m.lastSaved[doc.Name] = doc.Content
		}
		for _, t := range files.Tabs {
			if _, exists := m.docs[t]; exists {
				m.tabs = append(m.tabs, t)
			}
		}
		if _, exists := m.docs[files.Current]; exists {
			m.current = files.Current
		}
	}

	var web WebFiles
	ok, err = m.store.Load(keyWebFiles, &web)
	if err != nil {
		m.warn("Stored web files were unreadable; starting from defaults.")
	}
	if ok {
		m.web = web
	}

	var envs map[string]Environment
	ok, err = m.store.Load(keyEnvs, &envs)
	if err != nil {
		m.warn("Stored environments were unreadable; the list starts empty.")
	}
	if ok && envs != nil {
		m.envs = envs
	}

	var currentEnv string
	if ok, _ = m.store.Load(keyCurrentEnv, &currentEnv); ok {
		if _, exists := m.envs[currentEnv]; exists {
			m.currentEnv = currentEnv
		}
	}

	var prefs Prefs
	if ok, _ = m.store.Load(keyPrefs, &prefs); ok {
		m.prefs = prefs
	}

	m.seedDefaults()
	switch m.prefs.ActiveMode {
	case ModeWeb:
		m.mode = ModeWeb
	default:
		m.mode = ModeFiles
		m.prefs.ActiveMode = ModeFiles
	}
}

// seedDefaults fills in whatever the blobs did not provide: at least one
// free-form document, and the fixed triad.
func (m *Manager) seedDefaults() {
	if len(m.docs) == 0 {
		doc := defaultMain()
		m.docs[doc.Name] = doc
		m.lastSaved[doc.Name] = doc.Content
		m.tabs = []string{doc.Name}
		m.current = doc.Name
	}
	if m.web == (WebFiles{}) {
		m.web = defaultWeb()
	}
}

func (m *Manager) persistFiles() {
	if m.store == nil {
		return
	}
	blob := filesBlob{Tabs: m.tabs, Current: m.current}
	for _, name := range m.Documents() {
		blob.Documents = append(blob.Documents, *m.docs[name])
	}
	if err := m.store.Save(keyFiles, blob); err != nil {
		m.warn("Saving files failed; edits are kept in memory only.")
	}
}

func (m *Manager) persistWeb() {
	if m.store == nil {
		return
	}
	if err := m.store.Save(keyWebFiles, m.web); err != nil {
		m.warn("Saving web files failed; edits are kept in memory only.")
	}
}

func (m *Manager) persistEnvs() {
	if m.store == nil {
		return
	}
	if err := m.store.Save(keyEnvs, m.envs); err != nil {
		m.warn("Saving environments failed; they are kept in memory only.")
	}
	if err := m.store.Save(keyCurrentEnv, m.currentEnv); err != nil {
		m.warn("Saving the current environment pointer failed.")
	}
}

func (m *Manager) persistPrefs() {
	if m.store == nil {
		return
	}
	if err := m.store.Save(keyPrefs, m.prefs); err != nil {
		m.warn("Saving preferences failed.")
	}
}

func (m *Manager) warn(message string) {
	m.log.Warn(message)
	if m.onWarn != nil {
		m.onWarn(message)
	}
}

// touchEnv stamps and stores an environment snapshot of the live triad.
func (m *Manager) touchEnv(name string) {
	m.envs[name] = Environment{
		HTML:    m.web.HTML,
		CSS:     m.web.CSS,
		JS:      m.web.JS,
		SavedAt: time.Now(),
	}
}
