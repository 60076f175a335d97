// Package blob stores binary payloads (message photos, profile and group
// pictures) behind opaque references.
package blob

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a reference does not resolve to a blob.
var ErrNotFound = errors.New("blob not found")

// Store persists immutable blobs. Put returns a fresh reference for every
// call, even for identical payloads.
type Store interface {
	Put(ctx context.Context, data []byte) (string, error)
	Get(ctx context.Context, ref string) ([]byte, error)
	Delete(ctx context.Context, ref string) error
	Close() error
}
