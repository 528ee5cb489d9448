// Package storage persists the application's state as named JSON blobs under
// the user state directory. It is the stand-in for browser local storage:
// each logical key (files, webFiles, environments, prefs) is one blob, blobs
// are opaque JSON, and a corrupt or missing blob degrades to defaults rather
// than failing the application.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// ErrWouldBlock is returned when another process holds the state lock.
var ErrWouldBlock = errors.New("state directory is locked by another process")

// Store reads and writes named JSON blobs. A Store that fails to set up its
// directory runs degraded: loads report missing, saves are dropped with a
// warning, and the session is effectively in-memory only.
type Store struct {
	dir      string
	log      *slog.Logger
	lockFile *os.File
	degraded bool
}

// Open initializes the blob store at dir, creating it as needed and taking
// an exclusive lock so two instances cannot clobber each other's saves.
// Setup failure is not fatal: the returned Store runs in-memory only and the
// error is reported so the caller can surface a warning.
func Open(dir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{dir: dir, log: logger}
	if err := os.MkdirAll(dir, 0755); err != nil {
		s.degraded = true
		return s, fmt.Errorf("create state directory: %w", err)
	}
	lock, err := acquireFileLock(filepath.Join(dir, ".lock"))
	if err != nil {
		s.degraded = true
		return s, fmt.Errorf("lock state directory: %w", err)
	}
	s.lockFile = lock
	return s, nil
}

// Degraded reports whether persistence is disabled for this session.
func (s *Store) Degraded() bool { return s.degraded }

// Dir returns the state directory.
func (s *Store) Dir() string { return s.dir }

// Load unmarshals the blob for key into v. ok is false when the blob is
// missing; a corrupt blob also reports ok=false along with the error so the
// caller can fall back to defaults while surfacing the problem.
func (s *Store) Load(key string, v any) (ok bool, err error) {
	if s.degraded {
		return false, nil
	}
	data, err := os.ReadFile(s.blobPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("read %s blob: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode %s blob: %w", key, err)
	}
	return true, nil
}

// Save marshals v and writes it atomically under key. On failure the store
// flips to degraded so later saves stop spamming errors; the first failure
// is returned for the caller to warn about.
func (s *Store) Save(key string, v any) error {
	if s.degraded {
		return nil
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s blob: %w", key, err)
	}
	if err := AtomicWriteFile(s.blobPath(key), data, 0644); err != nil {
		s.degraded = true
		s.log.Warn("persistence disabled for this session", "key", key, "error", err)
		return fmt.Errorf("write %s blob: %w", key, err)
	}
	return nil
}

// Delete removes the blob for key. Missing blobs are not an error.
func (s *Store) Delete(key string) error {
	if s.degraded {
		return nil
	}
	if err := os.Remove(s.blobPath(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete %s blob: %w", key, err)
	}
	return nil
}

// Close releases the state directory lock.
func (s *Store) Close() error {
	if s.lockFile == nil {
		return nil
	}
	err := releaseFileLock(s.lockFile)
	s.lockFile = nil
	return err
}

func (s *Store) blobPath(key string) string {
	// Keys are internal constants, but keep them filesystem-safe anyway.
	safe := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', 0:
			return '_'
		}
		return r
	}, key)
	return filepath.Join(s.dir, safe+".json")
}

// DefaultDir returns the state directory, honoring the CODEPAD_STATE_DIR
// override and falling back to ~/.codepad/state.
func DefaultDir() (string, error) {
	if dir := os.Getenv("CODEPAD_STATE_DIR"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".codepad", "state"), nil
}
