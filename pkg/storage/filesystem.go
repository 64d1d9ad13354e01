package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// LocalStorage persists uploaded files on disk under a base directory.
// Entities store only the relative reference it returns.
type LocalStorage struct {
	baseDir string
}

// NewLocalStorage ensures the base directory exists and returns a handle.
func NewLocalStorage(baseDir string) (*LocalStorage, error) {
	if baseDir == "" {
		baseDir = "./uploads"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create uploads directory: %w", err)
	}
	return &LocalStorage{baseDir: baseDir}, nil
}

// SaveStream copies from reader into a generated file under the given
// subdirectory (e.g. "evidence", "avatars") and returns the relative reference.
func (s *LocalStorage) SaveStream(subdir, originalName string, r io.Reader) (string, error) {
	ref := filepath.Join(subdir, uuid.NewString()+sanitizedExt(originalName))
	path := s.resolve(ref)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("prepare upload directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	defer file.Close() //nolint:errcheck
	if _, err := io.Copy(file, r); err != nil {
		return "", fmt.Errorf("write upload stream: %w", err)
	}
	return filepath.ToSlash(ref), nil
}

// Open returns a read-only handle for a stored file.
func (s *LocalStorage) Open(ref string) (*os.File, error) {
	file, err := os.Open(s.resolve(ref))
	if err != nil {
		return nil, fmt.Errorf("open upload file: %w", err)
	}
	return file, nil
}

// Delete removes a stored file if present.
func (s *LocalStorage) Delete(ref string) error {
	if err := os.Remove(s.resolve(ref)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete upload file: %w", err)
	}
	return nil
}

// Path exposes the underlying absolute path (useful for debugging).
func (s *LocalStorage) Path(ref string) string {
	return s.resolve(ref)
}

func (s *LocalStorage) resolve(ref string) string {
	if filepath.IsAbs(ref) {
		return ref
	}
	return filepath.Join(s.baseDir, filepath.FromSlash(ref))
}

func sanitizedExt(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if len(ext) > 8 || strings.ContainsAny(ext, "/\\") {
		return ""
	}
	return ext
}
