package workspace

import (
	"path"
	"strings"
	"time"
)

// Kind classifies a document. It drives tab styling hints and how a handoff
// import is filed, nothing else.
type Kind string

const (
	KindExecutable   Kind = "executable"
	KindTemplate     Kind = "template"
	KindErrorExample Kind = "error-example"
)

// Document is a named unit of source text. Names are unique within a
// workspace; the extension implies the language.
type Document struct {
	Name      string    `json:"name"`
	Content   string    `json:"content"`
	Kind      Kind      `json:"kind"`
	CreatedAt time.Time `json:"createdAt"`
}

// Mode selects which document set the editor operates on.
type Mode string

const (
	// ModeFiles is the free-form multi-file workspace.
	ModeFiles Mode = "files"
	// ModeWeb is the fixed markup/style/script triad with live preview.
	ModeWeb Mode = "web"
)

// Web document slots in triad mode. The three documents always exist and are
// only edited, never created or deleted.
const (
	SlotHTML = "index.html"
	SlotCSS  = "style.css"
	SlotJS   = "script.js"
)

// WebFiles is the live triad.
type WebFiles struct {
	HTML string `json:"html"`
	CSS  string `json:"css"`
	JS   string `json:"js"`
}

// Environment is a named, timestamped snapshot of the full triad, stored
// separately from the live triad.
type Environment struct {
	HTML    string    `json:"html"`
	CSS     string    `json:"css"`
	JS      string    `json:"js"`
	SavedAt time.Time `json:"timestamp"`
}

// Prefs are the persisted UI preferences.
type Prefs struct {
	ActiveMode       Mode           `json:"activeMode"`
	SidebarCollapsed bool           `json:"sidebarCollapsed"`
	PanelSizes       map[string]int `json:"panelSizes,omitempty"`
}

// langFor maps a document name to the language hint handed to the editing
// surface.
func langFor(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".js":
		return "javascript"
	case ".html", ".htm":
		return "html"
	case ".css":
		return "css"
	case ".json":
		return "json"
	case ".md":
		return "markdown"
	default:
		return "text"
	}
}

// defaultMain is the document synthesized when the free-form workspace has
// nothing persisted.
func defaultMain() *Document {
	return &Document{
		Name:      "main.js",
		Content:   "print(\"Hello, World!\");\n",
		Kind:      KindExecutable,
		CreatedAt: time.Now(),
	}
}

func defaultWeb() WebFiles {
	return WebFiles{
		HTML: "<!DOCTYPE html>\n<html>\n<head>\n  <title>Playground</title>\n</head>\n<body>\n  <h1>Hello</h1>\n</body>\n</html>\n",
		CSS:  "body {\n  font-family: sans-serif;\n}\n",
		JS:   "console.log(\"ready\");\n",
	}
}
