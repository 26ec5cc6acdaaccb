package objectstore

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/adrianmcphee/smartermodel"
)

// FilesystemBucket stores objects as files below a base directory.
type FilesystemBucket struct {
	basePath string
	locks    *smartermodel.StripedLocks
}

// NewFilesystemBucket creates a bucket rooted at basePath.
func NewFilesystemBucket(basePath string) *FilesystemBucket {
	return &FilesystemBucket{
		basePath: basePath,
		locks:    smartermodel.NewStripedLocks(smartermodel.DefaultStripeCount),
	}
}

func (b *FilesystemBucket) path(key string) string {
	return filepath.Join(b.basePath, filepath.FromSlash(key))
}

func (b *FilesystemBucket) Get(ctx context.Context, key string) ([]byte, error) {
	unlock := b.locks.RLock(key)
	defer unlock()

	data, err := os.ReadFile(b.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrObjectNotFound
		}
		if os.IsPermission(err) {
			return nil, smartermodel.ErrUnauthorized
		}
		return nil, err
	}
	return data, nil
}

// Put writes to a temporary file and renames it into place, so readers
// never see a partial object.
func (b *FilesystemBucket) Put(ctx context.Context, key string, data []byte) error {
	unlock := b.locks.Lock(key)
	defer unlock()

	path := b.path(key)
	if err := os.MkdirAll(filepath.Dir(path), smartermodel.DefaultDirPermissions); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, smartermodel.DefaultFilePermissions); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (b *FilesystemBucket) Delete(ctx context.Context, key string) error {
	unlock := b.locks.Lock(key)
	defer unlock()

	err := os.Remove(b.path(key))
	switch {
	case err == nil, os.IsNotExist(err):
		return nil
	case os.IsPermission(err):
		return smartermodel.ErrUnauthorized
	default:
		return err
	}
}

func (b *FilesystemBucket) Exists(ctx context.Context, key string) (bool, error) {
	_, err := os.Stat(b.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (b *FilesystemBucket) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	root := b.path(prefix)
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return keys, nil
	}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) == ".tmp" {
			return nil
		}
		rel, err := filepath.Rel(b.basePath, path)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	return keys, err
}

// Ping checks that the base directory exists and is writable.
func (b *FilesystemBucket) Ping(ctx context.Context) error {
	info, err := os.Stat(b.basePath)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("base path is not a directory: %s", b.basePath)
	}

	probe := filepath.Join(b.basePath, ".health_check")
	if err := os.WriteFile(probe, []byte("ok"), smartermodel.DefaultFilePermissions); err != nil {
		return fmt.Errorf("cannot write to base path: %w", err)
	}
	return os.Remove(probe)
}

func (b *FilesystemBucket) Close() error { return nil }
