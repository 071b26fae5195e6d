// Package securestore defines the key-value contract the SDK persists
// sessions and login state through. Concrete drivers (memory, sqlite) live
// in subpackages; mobile hosts typically supply their own implementation
// backed by the platform keystore.
package securestore

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when no value exists for a key.
var ErrNotFound = errors.New("securestore: not found")

// Store is an atomic per-key store. No cross-key transactional guarantees
// are required. Values must be confidential at rest; how that is achieved is
// the driver's concern.
type Store interface {
	// Put writes a value, overwriting any prior value for the key.
	Put(ctx context.Context, key string, value []byte) error

	// Get returns the value for a key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes a key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}
