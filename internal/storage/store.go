package storage

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrEmptyPath   = errors.New("storage: empty path")
	ErrExists      = errors.New("storage: destination already exists")
	ErrOutsideRoot = errors.New("storage: path escapes storage root")
)

// Store abstracts the file storage operations used by uploads, downloads and deletes.
type Store interface {
	Root() string
	Resolve(rel string) (string, error)
	Exists(rel string) (bool, error)
	Write(rel string, data []byte) (string, error)
	WriteNew(rel string, data []byte) (string, error)
	Open(rel string) (*os.File, os.FileInfo, error)
	Delete(abs string) error
}

// LocalStore keeps files on the local disk under a single root directory.
type LocalStore struct {
	root string
}

// NewLocalStore creates a store rooted at root, creating the directory if needed.
func NewLocalStore(root string) (*LocalStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root %s: %w", abs, err)
	}
	return &LocalStore{root: filepath.Clean(abs)}, nil
}

// Root returns the absolute storage root.
func (s *LocalStore) Root() string {
	return s.root
}

// Resolve maps a relative path to an absolute path inside the root.
func (s *LocalStore) Resolve(rel string) (string, error) {
	clean := Sanitize(rel)
	if clean == "" {
		return "", ErrEmptyPath
	}
	abs := filepath.Join(s.root, filepath.FromSlash(clean))
	if !s.within(abs) {
		return "", ErrOutsideRoot
	}
	return abs, nil
}

func (s *LocalStore) within(abs string) bool {
	return strings.HasPrefix(abs, s.root+string(os.PathSeparator))
}

// Exists reports whether a file is present at rel.
func (s *LocalStore) Exists(rel string) (bool, error) {
	abs, err := s.Resolve(rel)
	if err != nil {
		return false, err
	}
	_, err = os.Lstat(abs)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// Write stores data at rel, replacing any existing file.
func (s *LocalStore) Write(rel string, data []byte) (string, error) {
	abs, tmp, err := s.stage(rel, data)
	if err != nil {
		return "", err
	}
	if err := os.Rename(tmp, abs); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("rename into place: %w", err)
	}
	return abs, nil
}

// WriteNew stores data at rel and fails with ErrExists if something is already there.
func (s *LocalStore) WriteNew(rel string, data []byte) (string, error) {
	abs, tmp, err := s.stage(rel, data)
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp)

	// link 在目标已存在时失败, 不会覆盖
	err = os.Link(tmp, abs)
	if err == nil {
		return abs, nil
	}
	if errors.Is(err, os.ErrExist) {
		return "", ErrExists
	}
	// some filesystems refuse hard links
	return abs, s.createExclusive(abs, tmp)
}

func (s *LocalStore) createExclusive(abs, tmp string) error {
	src, err := os.Open(tmp)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(abs, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return ErrExists
		}
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		_ = os.Remove(abs)
		return err
	}
	if err := dst.Close(); err != nil {
		_ = os.Remove(abs)
		return err
	}
	return nil
}

// stage writes data to a synced temp file next to the destination.
func (s *LocalStore) stage(rel string, data []byte) (string, string, error) {
	abs, err := s.Resolve(rel)
	if err != nil {
		return "", "", err
	}
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("create directory %s: %w", dir, err)
	}
	f, err := os.CreateTemp(dir, ".upload-*.tmp")
	if err != nil {
		return "", "", fmt.Errorf("create temp file: %w", err)
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return "", "", fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return "", "", fmt.Errorf("sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return "", "", err
	}
	if err := os.Chmod(tmp, 0o644); err != nil {
		_ = os.Remove(tmp)
		return "", "", err
	}
	return abs, tmp, nil
}

// Open opens the file at rel for reading.
func (s *LocalStore) Open(rel string) (*os.File, os.FileInfo, error) {
	abs, err := s.Resolve(rel)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(abs)
	if err != nil {
		return nil, nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	if info.IsDir() {
		f.Close()
		return nil, nil, os.ErrNotExist
	}
	return f, info, nil
}

// Delete removes abs and prunes now-empty parent directories up to the root.
// A missing file counts as already deleted.
func (s *LocalStore) Delete(abs string) error {
	abs = filepath.Clean(abs)
	if !s.within(abs) {
		return ErrOutsideRoot
	}
	if err := os.Remove(abs); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	s.prune(filepath.Dir(abs))
	return nil
}

func (s *LocalStore) prune(dir string) {
	for dir != s.root && s.within(dir) {
		if err := os.Remove(dir); err != nil {
			if !errors.Is(err, os.ErrNotExist) && !isNotEmpty(dir) {
				log.Printf("storage: prune %s stopped: %v", dir, err)
			}
			return
		}
		dir = filepath.Dir(dir)
	}
}

func isNotEmpty(dir string) bool {
	entries, err := os.ReadDir(dir)
	return err == nil && len(entries) > 0
}
