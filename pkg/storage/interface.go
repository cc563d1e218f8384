package storage

import (
	"context"
	"errors"
	"time"
)

// ErrObjectNotFound is returned when a key has no stored object.
var ErrObjectNotFound = errors.New("object not found")

// Storage resolves stored objects (room thumbnails) into client-facing URLs.
type Storage interface {
	// Exists checks if content with the given key exists.
	Exists(ctx context.Context, key string) (bool, error)

	// GetURL returns a URL for accessing the content.
	// For local storage this is a path under the public prefix.
	// For S3 this is a presigned URL valid for the given duration.
	GetURL(ctx context.Context, key string, expires time.Duration) (string, error)
}
