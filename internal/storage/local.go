// Package storage holds the raw bytes of uploaded and enriched files.
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ErrNotFound is returned when no blob exists for a file id.
var ErrNotFound = errors.New("file bytes not found")

// Store is a byte-addressable blob store keyed by file id. Metadata lives
// in the database package; this layer only moves bytes.
type Store interface {
	Save(id string, r io.Reader) (int64, error)
	Open(id string) (io.ReadCloser, error)
	Delete(id string) error
	Path(id string) (string, error)
}

// LocalStore implements Store on the local filesystem, one file per id.
type LocalStore struct {
	uploadDir string
}

// NewLocalStore creates the upload directory if needed.
func NewLocalStore(uploadDir string) (*LocalStore, error) {
	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating upload directory: %w", err)
	}
	return &LocalStore{uploadDir: uploadDir}, nil
}

// Save writes the reader's bytes under id, replacing any previous blob,
// and returns the byte count.
func (s *LocalStore) Save(id string, r io.Reader) (int64, error) {
	path := filepath.Join(s.uploadDir, id)

	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("creating file: %w", err)
	}
	defer f.Close()

	size, err := io.Copy(f, r)
	if err != nil {
		os.Remove(path)
		return 0, fmt.Errorf("writing file: %w", err)
	}
	return size, nil
}

// Open returns a reader over the blob for id, or ErrNotFound.
func (s *LocalStore) Open(id string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(s.uploadDir, id))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	return f, nil
}

// Delete removes the blob for id. Deleting a missing blob is not an error.
func (s *LocalStore) Delete(id string) error {
	err := os.Remove(filepath.Join(s.uploadDir, id))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting file: %w", err)
	}
	return nil
}

// Path returns the absolute path of the blob for id, or ErrNotFound.
func (s *LocalStore) Path(id string) (string, error) {
	path := filepath.Join(s.uploadDir, id)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	} else if err != nil {
		return "", fmt.Errorf("checking file: %w", err)
	}
	return path, nil
}
