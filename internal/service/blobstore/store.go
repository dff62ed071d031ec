// Package blobstore stages segment bytes in an object store reachable by URL.
package blobstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no object exists at a URL.
var ErrNotFound = errors.New("blob not found")

// Store is an opaque put/get object store. An object is readable as soon
// as Put returns.
type Store interface {
	// Put stores data under name and returns its URL.
	Put(ctx context.Context, name string, data []byte) (string, error)
	// Get returns the bytes stored at url.
	Get(ctx context.Context, url string) ([]byte, error)
	// Delete removes the object at url. Deleting a missing object is not
	// an error.
	Delete(ctx context.Context, url string) error
}
