// Package storage provides storage backends for archived build documents
// and worker logs.
package storage

import (
	"context"
	"io"
	"time"
)

// Backend is the document archive used for finished workflow results.
type Backend interface {
	// Upload stores an object under the given key
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// Download retrieves an object and its metadata
	Download(ctx context.Context, key string) (io.ReadCloser, *ObjectInfo, error)

	// Ping checks if the storage is accessible
	Ping(ctx context.Context) error

	// Type returns the storage backend type
	Type() string

	// Location returns a human-readable location description
	Location() string
}

// ObjectInfo holds metadata about a stored object
type ObjectInfo struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	ContentType  string    `json:"content_type,omitempty"`
	ETag         string    `json:"etag,omitempty"`
	LastModified time.Time `json:"last_modified"`
}

// Config holds the storage configuration
type Config struct {
	// Type is the storage backend type: "s3" or "local"
	Type string

	Local LocalConfig
	S3    S3Config
}

// DefaultConfig returns a default storage configuration (local filesystem)
func DefaultConfig() Config {
	return Config{
		Type: "local",
		Local: LocalConfig{
			BasePath: "~/.craterd/documents",
		},
	}
}

// New creates a storage backend from configuration. Unrecognized types fall
// back to the local backend.
func New(cfg Config) (Backend, error) {
	if cfg.Type == "s3" {
		return NewS3(cfg.S3)
	}
	return NewLocal(cfg.Local)
}
