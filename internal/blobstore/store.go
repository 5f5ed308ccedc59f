package blobstore

import (
	"context"
	"errors"
)

// ErrNotFound reports a missing blob, distinct from network or auth failures.
var ErrNotFound = errors.New("blob not found")

// Store is the remote backup store the dedup index and match partitions
// live in. Implementations must return ErrNotFound for missing blobs.
type Store interface {
	ReadFile(ctx context.Context, name string) ([]byte, error)
	WriteFile(ctx context.Context, name string, data []byte) error
	ListFiles(ctx context.Context, prefix string) ([]string, error)
	DeleteFile(ctx context.Context, name string) error
}

// IsNotFound reports whether err means the blob does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
