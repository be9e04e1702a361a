package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// BlobStore defines the interface for blob storage backends.
// This allows swapping filesystem for S3 or other backends later.
type BlobStore interface {
	Save(id string, data io.Reader) (int64, error)
	Open(id string) (io.ReadCloser, error)
	Delete(id string) error
	IDs() ([]string, error)
	ModTime(id string) (time.Time, error)
	EnsureDir() error
}

// FileSystemStore stores blobs on the local filesystem, one file per blob,
// named by the blob id. Ids already carry the original upload's extension, so
// no suffix is appended.
type FileSystemStore struct {
	basePath string
}

// NewFileSystemStore creates a new filesystem storage backend.
func NewFileSystemStore(basePath string) *FileSystemStore {
	return &FileSystemStore{basePath: basePath}
}

// EnsureDir creates the storage directory if it doesn't exist.
func (fs *FileSystemStore) EnsureDir() error {
	if err := os.MkdirAll(fs.basePath, 0755); err != nil {
		return fmt.Errorf("failed to create storage directory %s: %w", fs.basePath, err)
	}
	return nil
}

// Save streams data to the blob file for id. Returns the number of bytes
// written. A partial file is removed on write failure.
func (fs *FileSystemStore) Save(id string, data io.Reader) (int64, error) {
	path, err := fs.blobPath(id)
	if err != nil {
		return 0, err
	}

	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create blob %s: %w", path, err)
	}
	defer file.Close()

	n, err := io.Copy(file, data)
	if err != nil {
		os.Remove(path)
		return 0, fmt.Errorf("failed to write blob: %w", err)
	}

	return n, nil
}

// Open returns a reader over the stored blob. The caller must close it.
// Returns an os.IsNotExist error when the blob is missing on disk.
func (fs *FileSystemStore) Open(id string) (io.ReadCloser, error) {
	path, err := fs.blobPath(id)
	if err != nil {
		return nil, err
	}
	return os.Open(path)
}

// Delete removes the blob for id. Deleting an already-absent blob is not an
// error.
func (fs *FileSystemStore) Delete(id string) error {
	path, err := fs.blobPath(id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete blob %s: %w", path, err)
	}
	return nil
}

// IDs lists every blob currently on disk.
func (fs *FileSystemStore) IDs() ([]string, error) {
	entries, err := os.ReadDir(fs.basePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read storage directory: %w", err)
	}

	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ids = append(ids, e.Name())
	}
	return ids, nil
}

// ModTime returns the last modification time of the blob for id.
func (fs *FileSystemStore) ModTime(id string) (time.Time, error) {
	path, err := fs.blobPath(id)
	if err != nil {
		return time.Time{}, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

// blobPath resolves id to a path inside basePath, rejecting ids that could
// escape the storage directory.
func (fs *FileSystemStore) blobPath(id string) (string, error) {
	if id == "" || strings.ContainsAny(id, "/\\") || id == "." || id == ".." {
		return "", fmt.Errorf("invalid blob id %q", id)
	}
	return filepath.Join(fs.basePath, id), nil
}
