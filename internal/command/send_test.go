package command

import (
	"bytes"
	"strings"
	"testing"

	"github.com/lessonlab/codepad/internal/config"
	"github.com/lessonlab/codepad/internal/storage"
	"github.com/lessonlab/codepad/internal/workspace"
)

func TestSendQueuesHandoff(t *testing.T) {
	dir := t.TempDir()
	path := writeScript(t, "snippet.js", `print(1);`)

	cmd := NewSendCommand(config.NewConfig())
	cmd.stateDir = dir
	var out, errOut bytes.Buffer
	if err := cmd.Execute([]string{path}, &out, &errOut); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	store, err := storage.Open(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	rec, ok := workspace.TakeHandoff(store)
	if !ok {
		t.Fatal("no handoff record written")
	}
	if rec.Code != `print(1);` || rec.Language != "js" || rec.Kind != workspace.KindExecutable {
		t.Errorf("record = %+v", rec)
	}
	if _, ok := workspace.TakeHandoff(store); ok {
		t.Error("handoff importable twice")
	}
}

func TestSendFromStdinWithLang(t *testing.T) {
	dir := t.TempDir()
	cmd := NewSendCommand(config.NewConfig())
	cmd.stateDir = dir
	cmd.lang = "css"
	cmd.stdin = strings.NewReader("p { margin: 0 }")

	var out, errOut bytes.Buffer
	if err := cmd.Execute([]string{"-"}, &out, &errOut); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	store, err := storage.Open(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	rec, ok := workspace.TakeHandoff(store)
	if !ok {
		t.Fatal("no handoff record written")
	}
	if rec.Language != "css" || rec.Code != "p { margin: 0 }" {
		t.Errorf("record = %+v", rec)
	}
}

func TestSendRejectsUnknownKind(t *testing.T) {
	cmd := NewSendCommand(config.NewConfig())
	cmd.stateDir = t.TempDir()
	cmd.kind = "mystery"
	cmd.stdin = strings.NewReader("x")
	var out, errOut bytes.Buffer
	if err := cmd.Execute([]string{"-"}, &out, &errOut); err == nil {
		t.Error("unknown kind accepted")
	}
}
