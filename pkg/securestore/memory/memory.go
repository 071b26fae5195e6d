// Package memory provides an in-process securestore driver. Values never
// leave the process, so no sealing is applied. Intended for tests and hosts
// that keep sessions ephemeral.
package memory

import (
	"context"
	"sync"

	"github.com/aussiebroadwan/bouncer/pkg/securestore"
)

type Store struct {
	mu    sync.RWMutex
	items map[string][]byte
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{items: make(map[string][]byte)}
}

func (s *Store) Put(_ context.Context, key string, value []byte) error {
	// Copy so later caller mutations cannot reach the stored value.
	buf := make([]byte, len(value))
	copy(buf, value)

	s.mu.Lock()
	s.items[key] = buf
	s.mu.Unlock()
	return nil
}

func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	value, ok := s.items[key]
	s.mu.RUnlock()

	if !ok {
		return nil, securestore.ErrNotFound
	}

	buf := make([]byte, len(value))
	copy(buf, value)
	return buf, nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.items, key)
	s.mu.Unlock()
	return nil
}
