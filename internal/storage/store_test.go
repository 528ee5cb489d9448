package storage

import (
	"os"
	"path/filepath"
	"testing"
)

type prefsBlob struct {
	Mode    string `json:"mode"`
	Sidebar bool   `json:"sidebar"`
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := openTestStore(t)
	want := prefsBlob{Mode: "web", Sidebar: true}
	if err := s.Save("prefs", want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	var got prefsBlob
	ok, err := s.Load("prefs", &got)
	if err != nil || !ok {
		t.Fatalf("Load: ok=%v err=%v", ok, err)
	}
	if got != want {
		t.Errorf("Load = %+v, want %+v", got, want)
	}
}

func TestLoadMissingBlob(t *testing.T) {
	s := openTestStore(t)
	var got prefsBlob
	ok, err := s.Load("prefs", &got)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if ok {
		t.Error("Load reported ok for a missing blob")
	}
}

func TestLoadCorruptBlobFallsBack(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if err := os.WriteFile(filepath.Join(dir, "prefs.json"), []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	var got prefsBlob
	ok, err := s.Load("prefs", &got)
	if ok {
		t.Error("Load reported ok for a corrupt blob")
	}
	if err == nil {
		t.Error("Load swallowed the corruption error")
	}
}

func TestDeleteBlob(t *testing.T) {
	s := openTestStore(t)
	if err := s.Save("files", map[string]string{"a": "b"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Delete("files"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	var got map[string]string
	if ok, _ := s.Load("files", &got); ok {
		t.Error("blob still present after Delete")
	}
	if err := s.Delete("files"); err != nil {
		t.Errorf("Delete of missing blob: %v", err)
	}
}

func TestSecondInstanceIsLockedOut(t *testing.T) {
	dir := t.TempDir()
	s1, err := Open(dir, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s1.Close()

	s2, err := Open(dir, nil)
	if err == nil {
		t.Fatal("second Open acquired the lock")
	}
	if !s2.Degraded() {
		t.Error("locked-out store is not degraded")
	}
	// Degraded stores still answer, they just do not persist.
	if err := s2.Save("prefs", prefsBlob{}); err != nil {
		t.Errorf("degraded Save returned error: %v", err)
	}
}

func TestAtomicWriteReplaces(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "blob.json")
	if err := AtomicWriteFile(path, []byte("one"), 0644); err != nil {
		t.Fatalf("AtomicWriteFile: %v", err)
	}
	if err := AtomicWriteFile(path, []byte("two"), 0644); err != nil {
		t.Fatalf("AtomicWriteFile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "two" {
		t.Errorf("content = %q, want %q", data, "two")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("temp files left behind: %v", entries)
	}
}
