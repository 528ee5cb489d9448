//go:build windows

package storage

import (
	"fmt"
	"os"
)

// acquireFileLock opens the lock file without flock semantics; Windows keeps
// the file handle open for the life of the process, which is enough to make
// a second instance's os.Remove on Close fail loudly rather than letting two
// instances silently interleave saves.
func acquireFileLock(path string) (*os.File, error) {
	lockFile, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	return lockFile, nil
}

func releaseFileLock(lockFile *os.File) error {
	if lockFile == nil {
		return nil
	}
	path := lockFile.Name()
	closeErr := lockFile.Close()
	removeErr := os.Remove(path)
	if removeErr != nil && os.IsNotExist(removeErr) {
		removeErr = nil
	}
	if closeErr != nil {
		return closeErr
	}
	return removeErr
}
