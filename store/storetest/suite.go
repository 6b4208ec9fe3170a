// Package storetest holds the behavior every Store backend must share.
package storetest

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/najoast/socialshard/store"
)

// Factory creates a fresh, empty store for one subtest.
type Factory func(t *testing.T) store.Store

// RunConformanceSuite runs the shared store contract against a backend.
func RunConformanceSuite(t *testing.T, newStore Factory) {
	t.Run("MissingSlot", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(context.Background(), "never-written")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("ReplaceThenGet", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.Replace(ctx, store.SlotProfile, []byte(`{"v":1}`)))
		got, err := s.Get(ctx, store.SlotProfile)
		require.NoError(t, err)
		assert.Equal(t, []byte(`{"v":1}`), got)

		require.NoError(t, s.Replace(ctx, store.SlotProfile, []byte(`{"v":2}`)))
		got, err = s.Get(ctx, store.SlotProfile)
		require.NoError(t, err)
		assert.Equal(t, []byte(`{"v":2}`), got, "replace overwrites the whole value")
	})

	t.Run("ReturnedValueIsDetached", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.Replace(ctx, "slot", []byte("abc")))
		got, err := s.Get(ctx, "slot")
		require.NoError(t, err)
		got[0] = 'z'

		again, err := s.Get(ctx, "slot")
		require.NoError(t, err)
		assert.Equal(t, []byte("abc"), again)
	})

	t.Run("NamespacesAreIsolated", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		a := store.Namespace(s, "actor:user/a")
		b := store.Namespace(s, "actor:user/b")

		require.NoError(t, a.Replace(ctx, store.SlotPostsByScore, []byte("a")))
		_, err := b.Get(ctx, store.SlotPostsByScore)
		assert.ErrorIs(t, err, store.ErrNotFound)

		got, err := a.Get(ctx, store.SlotPostsByScore)
		require.NoError(t, err)
		assert.Equal(t, []byte("a"), got)
		require.NoError(t, a.Close())

		// The parent survives closing a view
		_, err = s.Get(ctx, "actor:user/a/"+store.SlotPostsByScore)
		require.NoError(t, err)
	})

	t.Run("TypedHelpers", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		empty, err := store.Load[map[string][]string](ctx, s, store.SlotAccessControlMap)
		require.NoError(t, err)
		assert.Nil(t, empty)

		want := map[string][]string{"alice": {"ProfileOwner"}}
		require.NoError(t, store.Save(ctx, s, store.SlotAccessControlMap, want))

		got, err := store.Load[map[string][]string](ctx, s, store.SlotAccessControlMap)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("ConcurrentReplace", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				assert.NoError(t, s.Replace(ctx, "hot", []byte{byte(i)}))
			}(i)
		}
		wg.Wait()

		got, err := s.Get(ctx, "hot")
		require.NoError(t, err)
		assert.Len(t, got, 1)
	})
}
