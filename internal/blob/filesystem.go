package blob

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	apperrors "github.io/infrasutra/disposeme/internal/errors"
)

const messageExt = ".eml"

// FileStore keeps each raw message as one file under a base directory.
type FileStore struct {
	basePath string
}

func NewFileStore(basePath string) (*FileStore, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create blob directory: %w", err)
	}
	return &FileStore{basePath: basePath}, nil
}

func (f *FileStore) Get(_ context.Context, key string) ([]byte, error) {
	path, err := f.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrBlobNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("read blob: %w", err)
	}
	return data, nil
}

func (f *FileStore) Put(_ context.Context, key string, data []byte) error {
	path, err := f.path(key)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write blob: %w", err)
	}
	return nil
}

func (f *FileStore) Copy(ctx context.Context, src, dst string) error {
	data, err := f.Get(ctx, src)
	if err != nil {
		return err
	}
	return f.Put(ctx, dst, data)
}

func (f *FileStore) Delete(_ context.Context, key string) error {
	path, err := f.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete blob: %w", err)
	}
	return nil
}

// ListOlderThan lists keys by file modification time, which for this store is
// the time the blob was written.
func (f *FileStore) ListOlderThan(_ context.Context, cutoff time.Time) ([]string, error) {
	dirEntries, err := os.ReadDir(f.basePath)
	if err != nil {
		return nil, fmt.Errorf("list blobs: %w", err)
	}
	var keys []string
	for _, dirEntry := range dirEntries {
		if dirEntry.IsDir() || !strings.HasSuffix(dirEntry.Name(), messageExt) {
			continue
		}
		info, err := dirEntry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		keys = append(keys, strings.TrimSuffix(dirEntry.Name(), messageExt))
	}
	sort.Strings(keys)
	return keys, nil
}

// path maps a key onto a file inside basePath. Keys must be flat names: a key
// that escapes the directory is rejected rather than resolved.
func (f *FileStore) path(key string) (string, error) {
	if key == "" || key != filepath.Base(key) || strings.HasPrefix(key, ".") {
		return "", fmt.Errorf("invalid blob key %q", key)
	}
	return filepath.Join(f.basePath, key+messageExt), nil
}
