package termui

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/lessonlab/codepad/internal/storage"
	"github.com/lessonlab/codepad/internal/workspace"
)

// previewFile is written next to the state blobs so an external browser can
// be pointed at it while editing the web triad.
const previewFile = "preview.html"

// BuildPreview combines the triad into a single self-contained HTML page:
// the style sheet inlined into head, the script appended at the end of body.
func BuildPreview(files workspace.WebFiles) string {
	doc := files.HTML
	if strings.TrimSpace(doc) == "" {
		doc = "<!DOCTYPE html>\n<html>\n<head>\n</head>\n<body>\n</body>\n</html>"
	}

	style := fmt.Sprintf("<style>\n%s\n</style>", files.CSS)
	script := fmt.Sprintf("<script>\n%s\n</script>", files.JS)

	if i := findTagEnd(doc, "</head>"); i >= 0 {
		doc = doc[:i] + style + "\n" + doc[i:]
	} else {
		doc = style + "\n" + doc
	}
	if i := findTagEnd(doc, "</body>"); i >= 0 {
		doc = doc[:i] + script + "\n" + doc[i:]
	} else {
		doc = doc + "\n" + script
	}
	return doc
}

// findTagEnd locates a closing tag case-insensitively.
func findTagEnd(doc, tag string) int {
	return strings.Index(strings.ToLower(doc), tag)
}

// WritePreview renders the combined page into the state directory.
func WritePreview(stateDir string, files workspace.WebFiles) error {
	return storage.AtomicWriteFile(filepath.Join(stateDir, previewFile), []byte(BuildPreview(files)), 0644)
}
