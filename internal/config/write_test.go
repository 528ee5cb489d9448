package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSetKeyInFileReplacesGlobalKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config")
	original := "# comment\nverbose false\n\n[edit]\npreview true\n"
	if err := os.WriteFile(path, []byte(original), 0644); err != nil {
		t.Fatal(err)
	}
	if err := SetKeyInFile(path, "verbose", "true"); err != nil {
		t.Fatalf("SetKeyInFile: %v", err)
	}
	data, _ := os.ReadFile(path)
	got := string(data)
	if !strings.Contains(got, "verbose true") {
		t.Errorf("key not replaced:\n%s", got)
	}
	if !strings.Contains(got, "# comment") || !strings.Contains(got, "[edit]\npreview true") {
		t.Errorf("formatting not preserved:\n%s", got)
	}
}

func TestSetKeyInFileInsertsBeforeFirstSection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config")
	if err := os.WriteFile(path, []byte("[edit]\npreview true\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := SetKeyInFile(path, "color", "never"); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	got := string(data)
	if strings.Index(got, "color never") > strings.Index(got, "[edit]") {
		t.Errorf("key inserted inside a section:\n%s", got)
	}
}

func TestSetKeyInFileDoesNotTouchSectionKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config")
	if err := os.WriteFile(path, []byte("[edit]\npreview true\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := SetKeyInFile(path, "preview", "false"); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	got := string(data)
	if !strings.Contains(got, "preview true") {
		t.Errorf("section key was overwritten:\n%s", got)
	}
	if !strings.Contains(got, "preview false") {
		t.Errorf("global key not added:\n%s", got)
	}
}

func TestSetKeyInFileCreatesMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config")
	if err := SetKeyInFile(path, "verbose", "true"); err != nil {
		t.Fatalf("SetKeyInFile: %v", err)
	}
	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.GetBool("verbose") {
		t.Error("written key not readable back")
	}
}
