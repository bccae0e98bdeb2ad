package inspect

import (
	"fmt"
	"os"
	"path/filepath"
)

// FileList is the per-session scratch file that accumulates the paths of
// regular files visited during a walk. SEARCH scans it after the walk.
// Each session owns its own list file, so concurrent sessions never clobber
// each other's results.
type FileList struct {
	path string
	f    *os.File
}

// NewFileList returns a FileList backed by files_<sessionID>.txt under dir.
// The file itself is created on the first Reset.
func NewFileList(dir, sessionID string) (*FileList, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create scratch directory %q: %w", dir, err)
	}
	return &FileList{
		path: filepath.Join(dir, fmt.Sprintf("files_%s.txt", sessionID)),
	}, nil
}

// Path returns the location of the backing file.
func (fl *FileList) Path() string {
	return fl.path
}

// Reset truncates the list ahead of a new walk.
func (fl *FileList) Reset() error {
	if fl.f != nil {
		fl.f.Close()
		fl.f = nil
	}
	f, err := os.Create(fl.path)
	if err != nil {
		return fmt.Errorf("failed to create file list %q: %w", fl.path, err)
	}
	fl.f = f
	return nil
}

// Append records one file path, one line per path.
func (fl *FileList) Append(p string) error {
	if fl.f == nil {
		if err := fl.Reset(); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintln(fl.f, p); err != nil {
		return fmt.Errorf("failed writing to file list %q: %w", fl.path, err)
	}
	return nil
}

// Sync flushes pending writes so a subsequent Scan sees every path.
func (fl *FileList) Sync() error {
	if fl.f == nil {
		return nil
	}
	return fl.f.Sync()
}

// Remove closes and deletes the backing file. Called at session teardown.
func (fl *FileList) Remove() error {
	if fl.f != nil {
		fl.f.Close()
		fl.f = nil
	}
	if err := os.Remove(fl.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
