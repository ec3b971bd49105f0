// Package blob stores uploaded file bytes in an object store and hands back
// a stable, publicly resolvable URL for each object.
package blob

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/mshare/mshare/internal/apperr"
)

// Client abstracts the object store that holds project file content.
type Client interface {
	// Put uploads data under key. The SHA-1 of data is computed as part of
	// the call and returned on the Object.
	Put(ctx context.Context, key, contentType string, data []byte) (*Object, error)
	// Get reads the object stored under key.
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete removes the object stored under key. Deleting a missing
	// object is not an error.
	Delete(ctx context.Context, key string) error
	// List returns the keys of every object whose key starts with prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Object describes a stored blob.
type Object struct {
	StorageID string
	Key       string
	URL       string
	Size      int64
	SHA1      string
}

// StorageError is returned for any transport or authorization failure.
type StorageError struct {
	Backend string
	Key     string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s storage %s: %v", e.Backend, e.Key, e.Err)
}

func (e *StorageError) Unwrap() []error {
	return []error{apperr.ErrStorage, e.Err}
}

// Key builds the object key for a file: {projectID}/{parentID}/{name}, or
// {projectID}/{name} when the file sits at the project root.
func Key(projectID, parentID, name string) string {
	if parentID == "" {
		return projectID + "/" + name
	}
	return projectID + "/" + parentID + "/" + name
}

func checksum(data []byte) string {
	sum := sha1.Sum(data)
	return hex.EncodeToString(sum[:])
}

func joinURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + key
}

// LocalStorage implements Client using the local filesystem.
// Useful for development and testing.
type LocalStorage struct {
	BaseDir   string
	PublicURL string
}

// NewLocalStorage creates a LocalStorage rooted at the given directory whose
// objects resolve under publicURL.
func NewLocalStorage(baseDir, publicURL string) *LocalStorage {
	return &LocalStorage{BaseDir: baseDir, PublicURL: publicURL}
}

func (s *LocalStorage) path(key string) string {
	return filepath.Join(s.BaseDir, filepath.FromSlash(key))
}

// Put writes data to BaseDir/key.
func (s *LocalStorage) Put(ctx context.Context, key, contentType string, data []byte) (*Object, error) {
	path := s.path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, &StorageError{Backend: "local", Key: key, Err: fmt.Errorf("create directory: %w", err)}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, &StorageError{Backend: "local", Key: key, Err: err}
	}
	return &Object{
		StorageID: key,
		Key:       key,
		URL:       joinURL(s.PublicURL, key),
		Size:      int64(len(data)),
		SHA1:      checksum(data),
	}, nil
}

// Get reads BaseDir/key.
func (s *LocalStorage) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		return nil, &StorageError{Backend: "local", Key: key, Err: err}
	}
	return data, nil
}

// Delete removes BaseDir/key and any directories it leaves empty.
func (s *LocalStorage) Delete(ctx context.Context, key string) error {
	path := s.path(key)
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &StorageError{Backend: "local", Key: key, Err: err}
	}
	base := filepath.Clean(s.BaseDir)
	for dir := filepath.Dir(path); dir != base && strings.HasPrefix(dir, base); dir = filepath.Dir(dir) {
		if os.Remove(dir) != nil {
			break
		}
	}
	return nil
}

// List walks the directory holding prefix and returns matching keys in
// lexical order.
func (s *LocalStorage) List(ctx context.Context, prefix string) ([]string, error) {
	root := s.BaseDir
	if i := strings.LastIndex(prefix, "/"); i >= 0 {
		root = s.path(prefix[:i])
	}
	var keys []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return fs.SkipDir
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.BaseDir, path)
		if err != nil {
			return err
		}
		if key := filepath.ToSlash(rel); strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, &StorageError{Backend: "local", Key: prefix, Err: err}
	}
	return keys, nil
}
