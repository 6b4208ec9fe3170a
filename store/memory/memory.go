// Package memory provides an in-process Store for tests and development.
package memory

import (
	"context"
	"sync"

	"github.com/najoast/socialshard/store"
)

// Store keeps slots in a map. Values are copied on the way in and out.
type Store struct {
	mu    sync.RWMutex
	slots map[string][]byte
}

// New creates an empty Store.
func New() *Store {
	return &Store{slots: make(map[string][]byte)}
}

func (s *Store) Get(ctx context.Context, slot string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.slots[slot]
	if !ok {
		return nil, store.ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (s *Store) Replace(ctx context.Context, slot string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.slots[slot] = append([]byte(nil), value...)
	s.mu.Unlock()
	return nil
}

func (s *Store) Close() error { return nil }
