// Package objectstore stores training documents as opaque blobs.
package objectstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no blob exists under a key.
var ErrNotFound = errors.New("object not found")

// Store is a flat key/blob store.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}
