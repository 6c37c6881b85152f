package storage

import (
	"context"
	"io"
)

// ObjectStorage is the write side of an object store used for job archives.
type ObjectStorage interface {
	// Upload stores an object under key, replacing any existing one.
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
}
