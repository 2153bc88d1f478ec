package fs

import (
	"errors"
	"io"
	"os"
	"path/filepath"
)

// ErrIsDir is returned when a path names a directory instead of a file.
var ErrIsDir = errors.New("is a directory")

// Storage reads form files from the filesystem
type Storage struct {
	root string
}

// NewStorage creates a filesystem storage resolving relative paths against
// root. An empty root uses the working directory.
func NewStorage(root string) *Storage {
	return &Storage{
		root: root,
	}
}

// Open opens the file at path for reading. Errors from the filesystem are
// returned unchanged.
func (s *Storage) Open(path string) (io.ReadCloser, error) {
	filePath := s.resolve(path)

	info, err := os.Stat(filePath)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, &os.PathError{Op: "open", Path: filePath, Err: ErrIsDir}
	}

	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	return file, nil
}

// Exists checks if a regular file exists at path
func (s *Storage) Exists(path string) bool {
	info, err := os.Stat(s.resolve(path))
	return err == nil && !info.IsDir()
}

func (s *Storage) resolve(path string) string {
	if s.root == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(s.root, path)
}
