package termui

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lessonlab/codepad/internal/workspace"
)

func TestBuildPreviewInlinesTriad(t *testing.T) {
	files := workspace.WebFiles{
		HTML: "<!DOCTYPE html>\n<html>\n<head>\n<title>t</title>\n</head>\n<body>\n<p>hi</p>\n</body>\n</html>",
		CSS:  "p { color: red }",
		JS:   "console.log('ready');",
	}
	out := BuildPreview(files)

	styleAt := strings.Index(out, "<style>")
	headEnd := strings.Index(out, "</head>")
	if styleAt < 0 || headEnd < 0 || styleAt > headEnd {
		t.Errorf("style not inlined into head:\n%s", out)
	}
	scriptAt := strings.Index(out, "<script>")
	bodyEnd := strings.Index(out, "</body>")
	if scriptAt < 0 || bodyEnd < 0 || scriptAt > bodyEnd {
		t.Errorf("script not placed before body end:\n%s", out)
	}
	if !strings.Contains(out, "p { color: red }") || !strings.Contains(out, "console.log('ready');") {
		t.Errorf("triad content missing:\n%s", out)
	}
}

func TestBuildPreviewWithoutSkeleton(t *testing.T) {
	out := BuildPreview(workspace.WebFiles{CSS: "b{}", JS: "1;"})
	if !strings.Contains(out, "<style>") || !strings.Contains(out, "<script>") {
		t.Errorf("fallback skeleton incomplete:\n%s", out)
	}
}

func TestWritePreview(t *testing.T) {
	dir := t.TempDir()
	err := WritePreview(dir, workspace.WebFiles{HTML: "<html><head></head><body></body></html>"})
	if err != nil {
		t.Fatalf("WritePreview: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, previewFile))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "<style>") {
		t.Errorf("artifact content:\n%s", data)
	}
}
