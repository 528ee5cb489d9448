package workspace

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lessonlab/codepad/internal/storage"
)

// Handoff is the short-lived "send this snippet to the editor" record. A
// producer writes it and opens the editor; the editor consumes and deletes
// it on startup so a later visit does not re-import.
type Handoff struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	Language  string    `json:"language"`
	Kind      Kind      `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	keyHandoff = "handoff"
	// handoffTTL bounds how long a record stays importable, mirroring the
	// session scoping of the original hand-off channel.
	handoffTTL = 15 * time.Minute
)

// WriteHandoff stores a handoff record, stamping id and timestamp.
func WriteHandoff(store *storage.Store, rec Handoff) error {
	rec.ID = uuid.NewString()
	rec.Timestamp = time.Now()
	if rec.Kind == "" {
		rec.Kind = KindExecutable
	}
	return store.Save(keyHandoff, rec)
}

// TakeHandoff consumes the pending handoff record, if any. The record is
// deleted regardless; stale records are discarded without being returned.
func TakeHandoff(store *storage.Store) (Handoff, bool) {
	var rec Handoff
	ok, err := store.Load(keyHandoff, &rec)
	_ = store.Delete(keyHandoff)
	if !ok || err != nil {
		return Handoff{}, false
	}
	if time.Since(rec.Timestamp) > handoffTTL {
		return Handoff{}, false
	}
	return rec, true
}

// ImportHandoff files an incoming snippet into the matching mode: html/css
// replace the corresponding triad document, anything else becomes a new
// free-form document.
func (m *Manager) ImportHandoff(rec Handoff) error {
	switch rec.Language {
	case "html", "css":
		m.SwitchMode(ModeWeb)
		slot := SlotHTML
		if rec.Language == "css" {
			slot = SlotCSS
		}
		if err := m.OpenWebDocument(slot); err != nil {
			return err
		}
		switch slot {
		case SlotCSS:
			m.web.CSS = rec.Code
		default:
			m.web.HTML = rec.Code
		}
		m.loadInto(rec.Code, rec.Language)
		m.webModified[slot] = struct{}{}
		return nil
	default:
		m.SwitchMode(ModeFiles)
		name := m.unusedImportName(rec.Language)
		return m.CreateDocument(name, rec.Code, rec.Kind)
	}
}

func (m *Manager) unusedImportName(language string) string {
	ext := ".js"
	if language == "json" {
		ext = ".json"
	}
	name := "snippet" + ext
	for n := 2; ; n++ {
		if _, exists := m.docs[name]; !exists {
			return name
		}
		name = fmt.Sprintf("snippet%d%s", n, ext)
	}
}
