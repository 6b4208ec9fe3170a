// Package store defines the named-slot persistence contract actors use to
// survive restarts.
//
// A slot holds one opaque value that is read and written whole. There is no
// partial update: callers read the value, change it in memory and replace it.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotFound is returned by Get for a slot that was never written.
var ErrNotFound = errors.New("slot not found")

// Slot names used by the actors.
const (
	SlotAccessControlMap = "access_control_map"
	SlotUserCanisters    = "user_principal_id_to_canister_id"
	SlotUsernames        = "unique_user_name_to_user_principal_id"
	SlotPostsByScore     = "posts_index_sorted_by_score_v1"
	SlotPostsByScoreOld  = "posts_index_sorted_by_score"
	SlotProfile          = "profile"
	SlotTopPostsFeed     = "top_posts_feed"
)

// Store is a named-slot key/value store.
type Store interface {
	// Get returns the value stored in slot, or ErrNotFound.
	Get(ctx context.Context, slot string) ([]byte, error)

	// Replace overwrites slot with value.
	Replace(ctx context.Context, slot string, value []byte) error

	// Close releases the backend.
	Close() error
}

// Load reads slot and decodes it as JSON. A missing slot yields the zero T.
func Load[T any](ctx context.Context, s Store, slot string) (T, error) {
	var v T
	data, err := s.Get(ctx, slot)
	if errors.Is(err, ErrNotFound) {
		return v, nil
	}
	if err != nil {
		return v, fmt.Errorf("load %s: %w", slot, err)
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("decode %s: %w", slot, err)
	}
	return v, nil
}

// Save encodes v as JSON and replaces slot with it.
func Save[T any](ctx context.Context, s Store, slot string, v T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", slot, err)
	}
	if err := s.Replace(ctx, slot, data); err != nil {
		return fmt.Errorf("save %s: %w", slot, err)
	}
	return nil
}

type namespaced struct {
	parent Store
	prefix string
}

// Namespace returns a view of s whose slots are private to prefix. Closing
// the view does not close s.
func Namespace(s Store, prefix string) Store {
	return &namespaced{parent: s, prefix: prefix + "/"}
}

func (n *namespaced) Get(ctx context.Context, slot string) ([]byte, error) {
	return n.parent.Get(ctx, n.prefix+slot)
}

func (n *namespaced) Replace(ctx context.Context, slot string, value []byte) error {
	return n.parent.Replace(ctx, n.prefix+slot, value)
}

func (n *namespaced) Close() error { return nil }
