package badger_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/najoast/socialshard/store"
	"github.com/najoast/socialshard/store/badger"
	"github.com/najoast/socialshard/store/storetest"
)

func TestConformance(t *testing.T) {
	storetest.RunConformanceSuite(t, func(t *testing.T) store.Store {
		s, err := badger.OpenInMemory()
		if err != nil {
			t.Fatalf("OpenInMemory() failed: %v", err)
		}
		t.Cleanup(func() {
			s.Close()
		})
		return s
	})
}

func TestSurvivesReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "slots")
	ctx := context.Background()

	s, err := badger.Open(dir)
	require.NoError(t, err)
	require.NoError(t, s.Replace(ctx, store.SlotUsernames, []byte(`{"alice":"actor:user/u1"}`)))
	require.NoError(t, s.Close())

	reopened, err := badger.Open(dir)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(ctx, store.SlotUsernames)
	require.NoError(t, err)
	assert.JSONEq(t, `{"alice":"actor:user/u1"}`, string(got))
}
