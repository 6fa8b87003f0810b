package storage

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/craterbuild/crater/src/common/errors"
	"github.com/craterbuild/crater/src/common/paths"
)

// LocalConfig holds the local filesystem storage configuration
type LocalConfig struct {
	// BasePath is the root directory for stored objects
	BasePath string
}

// LocalBackend implements storage on the local filesystem
type LocalBackend struct {
	basePath string
}

// NewLocal creates a new local filesystem storage backend
func NewLocal(cfg LocalConfig) (*LocalBackend, error) {
	basePath := paths.Expand(cfg.BasePath)
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory %s: %w", basePath, err)
	}
	return &LocalBackend{basePath: basePath}, nil
}

// fullPath maps a key to a filesystem path confined under basePath. Keys
// come from build IDs, but API inputs reach here too, so path escapes are
// stripped rather than trusted.
func (b *LocalBackend) fullPath(key string) string {
	clean := filepath.Clean(key)
	for strings.HasPrefix(clean, "/") || strings.HasPrefix(clean, "../") {
		clean = strings.TrimPrefix(clean, "/")
		clean = strings.TrimPrefix(clean, "../")
	}

	full := filepath.Join(b.basePath, clean)
	absBase, _ := filepath.Abs(b.basePath)
	absFull, _ := filepath.Abs(full)
	if !strings.HasPrefix(absFull, absBase) {
		return filepath.Join(b.basePath, filepath.Base(clean))
	}
	return full
}

// Upload writes data to the local filesystem
func (b *LocalBackend) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	target := b.fullPath(key)
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", key, err)
	}

	file, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("failed to create file %s: %w", target, err)
	}
	defer file.Close()

	written, err := io.Copy(file, reader)
	switch {
	case err != nil:
		os.Remove(target)
		return fmt.Errorf("failed to write file %s: %w", target, err)
	case size > 0 && written != size:
		os.Remove(target)
		return fmt.Errorf("size mismatch: expected %d bytes, wrote %d bytes", size, written)
	}
	return nil
}

// Download opens a stored object for reading
func (b *LocalBackend) Download(ctx context.Context, key string) (io.ReadCloser, *ObjectInfo, error) {
	target := b.fullPath(key)

	file, err := os.Open(target)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, errors.ErrObjectNotFound.WithMessage(key)
		}
		return nil, nil, fmt.Errorf("failed to open file %s: %w", target, err)
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, nil, fmt.Errorf("failed to stat %s: %w", key, err)
	}

	return file, &ObjectInfo{
		Key:          key,
		Size:         stat.Size(),
		ContentType:  contentTypeForKey(key),
		LastModified: stat.ModTime(),
	}, nil
}

func contentTypeForKey(key string) string {
	if ct := mime.TypeByExtension(filepath.Ext(key)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// Ping checks if the storage directory is accessible
func (b *LocalBackend) Ping(ctx context.Context) error {
	if _, err := os.Stat(b.basePath); err != nil {
		return errors.ErrStorageUnavailable.WithCause(err)
	}
	return nil
}

// Type returns the storage backend type
func (b *LocalBackend) Type() string {
	return "local"
}

// Location returns the base path
func (b *LocalBackend) Location() string {
	return b.basePath
}
