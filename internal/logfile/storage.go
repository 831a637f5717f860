package logfile

import (
	"io"
	"os"
	"path/filepath"
	"time"
)

// File is the open-file surface the manager needs from the storage driver.
type File interface {
	io.Writer
	Sync() error
	Close() error
}

// Storage is the narrow view of the filesystem driver. Implementations own
// block-device and filesystem details; the manager only sequences calls.
type Storage interface {
	// Available reports whether the backing store is present and writable.
	Available() bool

	// OpenAppend opens name for append, creating it if absent. Existing
	// bytes are never truncated.
	OpenAppend(name string) (File, error)

	// List enumerates file names in the data directory.
	List() ([]string, error)

	// Chtimes sets access and modification times on name.
	Chtimes(name string, atime, mtime time.Time) error
}

// DirStorage is the production Storage: a directory on a mounted filesystem.
type DirStorage struct {
	Root string
}

// NewDirStorage creates the data directory if needed and returns a storage
// rooted there.
func NewDirStorage(root string) (*DirStorage, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &DirStorage{Root: root}, nil
}

// Available checks that the root directory still exists. A yanked card or
// unmounted filesystem fails here before any open is attempted.
func (s *DirStorage) Available() bool {
	info, err := os.Stat(s.Root)
	return err == nil && info.IsDir()
}

// OpenAppend opens root/name for append-create.
func (s *DirStorage) OpenAppend(name string) (File, error) {
	return os.OpenFile(filepath.Join(s.Root, name), os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
}

// List returns the names of regular files under the root.
func (s *DirStorage) List() ([]string, error) {
	entries, err := os.ReadDir(s.Root)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// Chtimes stamps root/name.
func (s *DirStorage) Chtimes(name string, atime, mtime time.Time) error {
	return os.Chtimes(filepath.Join(s.Root, name), atime, mtime)
}
