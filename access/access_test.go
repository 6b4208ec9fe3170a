package access

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/najoast/socialshard/core"
	"github.com/najoast/socialshard/store"
	"github.com/najoast/socialshard/store/memory"
)

const alice core.Identity = "alice"

func newStore() *Store {
	return New(memory.New())
}

func TestGrantIsIdempotent(t *testing.T) {
	s := newStore()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Grant(ctx, alice, CanisterAdmin))
	}

	roles, err := s.ListRoles(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, []Role{CanisterAdmin}, roles)
}

func TestGrantThenRevoke(t *testing.T) {
	s := newStore()
	ctx := context.Background()

	require.NoError(t, s.Grant(ctx, alice, ProfileOwner))
	roles, err := s.ListRoles(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, []Role{ProfileOwner}, roles)

	require.NoError(t, s.Revoke(ctx, alice, ProfileOwner))
	roles, err = s.ListRoles(ctx, alice)
	require.NoError(t, err)
	assert.Empty(t, roles)
	assert.NotNil(t, roles)
}

func TestRevokeUnheldIsNoop(t *testing.T) {
	s := newStore()
	ctx := context.Background()

	require.NoError(t, s.Revoke(ctx, "nobody", CanisterController))

	require.NoError(t, s.Grant(ctx, alice, ProjectCanister))
	require.NoError(t, s.Revoke(ctx, alice, CanisterAdmin))

	roles, err := s.ListRoles(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, []Role{ProjectCanister}, roles)
}

func TestRevokedIdentityKeepsEmptyEntry(t *testing.T) {
	slots := memory.New()
	s := New(slots)
	ctx := context.Background()

	require.NoError(t, s.Grant(ctx, alice, CanisterAdmin))
	require.NoError(t, s.Revoke(ctx, alice, CanisterAdmin))

	m, err := store.Load[ControlMap](ctx, slots, store.SlotAccessControlMap)
	require.NoError(t, err)
	roles, present := m[alice]
	assert.True(t, present)
	assert.Empty(t, roles)
}

func TestListRolesCanonicalOrder(t *testing.T) {
	s := newStore()
	ctx := context.Background()

	require.NoError(t, s.Grant(ctx, alice, ProjectCanister))
	require.NoError(t, s.Grant(ctx, alice, CanisterAdmin))
	require.NoError(t, s.Grant(ctx, alice, ProfileOwner))

	roles, err := s.ListRoles(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, []Role{CanisterAdmin, ProfileOwner, ProjectCanister}, roles)
}

func TestRequire(t *testing.T) {
	s := newStore()
	ctx := context.Background()

	err := s.Require(ctx, alice, CanisterAdmin)
	assert.True(t, errors.Is(err, core.ErrUnauthorized))

	require.NoError(t, s.Grant(ctx, alice, CanisterAdmin))
	assert.NoError(t, s.Require(ctx, alice, CanisterAdmin))

	ok, err := s.HasRole(ctx, alice, ProfileOwner)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRoleDecoding(t *testing.T) {
	var r Role
	require.NoError(t, json.Unmarshal([]byte(`"CanisterController"`), &r))
	assert.Equal(t, CanisterController, r)

	err := json.Unmarshal([]byte(`"Moderator"`), &r)
	assert.ErrorIs(t, err, ErrUnknownRole)

	_, err = ParseRole("")
	assert.ErrorIs(t, err, ErrUnknownRole)
}

type failingStore struct{ store.Store }

func (failingStore) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("disk on fire")
}

func TestSeedOnlyWhenAbsent(t *testing.T) {
	s := newStore()
	ctx := context.Background()

	seeded, err := s.Seed(ctx, Assignment{alice, ProjectCanister}, Assignment{alice, CanisterAdmin})
	require.NoError(t, err)
	assert.True(t, seeded)

	roles, err := s.ListRoles(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, []Role{CanisterAdmin, ProjectCanister}, roles)

	require.NoError(t, s.Revoke(ctx, alice, CanisterAdmin))
	require.NoError(t, s.Revoke(ctx, alice, ProjectCanister))

	seeded, err = s.Seed(ctx, Assignment{alice, CanisterAdmin})
	require.NoError(t, err)
	assert.False(t, seeded, "an emptied map still counts as present")

	roles, err = s.ListRoles(ctx, alice)
	require.NoError(t, err)
	assert.Empty(t, roles)
}

func TestStorageErrorsSurface(t *testing.T) {
	s := New(failingStore{})
	assert.Error(t, s.Grant(context.Background(), alice, CanisterAdmin))
	_, err := s.ListRoles(context.Background(), alice)
	assert.Error(t, err)
	_, err = s.Seed(context.Background(), Assignment{alice, CanisterAdmin})
	assert.Error(t, err)
}
