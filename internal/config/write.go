package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/lessonlab/codepad/internal/storage"
)

// SetKeyInFile rewrites one global option in the config file in place,
// leaving comments, blank lines, and [section] blocks untouched. An existing
// global line for the key is replaced; otherwise the new line lands at the
// end of the global section, before the first [section] header. The file is
// created when missing.
func SetKeyInFile(path, key, value string) error {
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reading config file: %w", err)
	}
	var lines []string
	if len(data) > 0 {
		lines = strings.Split(string(data), "\n")
	}

	lines = upsertGlobalKey(lines, key, formatOptionLine(key, value))

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	return storage.AtomicWriteFile(path, []byte(strings.Join(lines, "\n")), 0644)
}

// formatOptionLine renders "key value", or just the key for flag-style
// options with no value.
func formatOptionLine(key, value string) string {
	if value == "" {
		return key
	}
	return key + " " + value
}

// upsertGlobalKey replaces the key's line within the global section, or
// inserts newLine before the first section header when the key is absent.
// Keys inside [section] blocks are never matched; those are per-command
// options and a global set must not clobber them.
func upsertGlobalKey(lines []string, key, newLine string) []string {
	firstSection := len(lines)
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]") {
			firstSection = i
			break
		}
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		if name, _, _ := strings.Cut(trimmed, " "); name == key {
			lines[i] = newLine
			return lines
		}
	}
	if firstSection >= len(lines) {
		if n := len(lines); n > 0 && lines[n-1] == "" {
			// The empty final element is the file's trailing newline; keep it
			// last.
			return append(lines[:n-1], newLine, "")
		}
		return append(lines, newLine)
	}
	lines = append(lines[:firstSection+1], lines[firstSection:]...)
	lines[firstSection] = newLine
	return lines
}
