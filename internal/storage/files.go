// Package storage is the byte-stream store backing file transfer: named
// uploads in a single directory with path-safe naming.
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrInvalidName = errors.New("invalid file name")
	ErrNotFound    = errors.New("file not found")
)

// FileStore saves and serves named byte streams inside one directory. Names
// are reduced to their base component so a client can never escape the
// directory.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create uploads dir %q: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

// Save writes the stream under a sanitized version of name and returns the
// stored filename. An existing file is never clobbered; the stored name gets
// a short unique prefix instead.
func (s *FileStore) Save(name string, r io.Reader) (string, error) {
	base, err := safeName(name)
	if err != nil {
		return "", err
	}

	dest := filepath.Join(s.dir, base)
	if _, err := os.Stat(dest); err == nil {
		base = uuid.NewString()[:8] + "_" + base
		dest = filepath.Join(s.dir, base)
	}

	f, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("create %q: %w", dest, err)
	}
	defer func() { _ = f.Close() }()

	if _, err := io.Copy(f, r); err != nil {
		_ = os.Remove(dest)
		return "", fmt.Errorf("write %q: %w", dest, err)
	}
	return base, nil
}

// Path resolves a stored name to its on-disk path, verifying it exists.
func (s *FileStore) Path(name string) (string, error) {
	base, err := safeName(name)
	if err != nil {
		return "", err
	}
	full := filepath.Join(s.dir, base)
	info, err := os.Stat(full)
	if err != nil || info.IsDir() {
		return "", ErrNotFound
	}
	return full, nil
}

// List returns the sorted names of all stored files.
func (s *FileStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read uploads dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func safeName(name string) (string, error) {
	base := filepath.Base(strings.TrimSpace(name))
	if base == "" || base == "." || base == ".." || base == string(filepath.Separator) {
		return "", ErrInvalidName
	}
	return base, nil
}
