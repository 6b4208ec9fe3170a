package redis_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/najoast/socialshard/store"
	"github.com/najoast/socialshard/store/redis"
	"github.com/najoast/socialshard/store/storetest"
)

func TestConformance(t *testing.T) {
	storetest.RunConformanceSuite(t, func(t *testing.T) store.Store {
		mr := miniredis.RunT(t)
		s, err := redis.New(context.Background(), redis.Options{Addr: mr.Addr()})
		if err != nil {
			t.Fatalf("redis.New() failed: %v", err)
		}
		t.Cleanup(func() {
			s.Close()
		})
		return s
	})
}

func TestKeyPrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	s, err := redis.New(context.Background(), redis.Options{Addr: mr.Addr(), KeyPrefix: "socialshard:"})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Replace(context.Background(), store.SlotTopPostsFeed, []byte("[]")))

	raw, err := mr.Get("socialshard:" + store.SlotTopPostsFeed)
	require.NoError(t, err)
	assert.Equal(t, "[]", raw)
}

func TestUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := redis.New(context.Background(), redis.Options{Addr: addr})
	assert.Error(t, err)
}
