// Package access manages per-identity role sets.
//
// Every operation is a single whole-value read-modify-write of the
// access_control_map slot. Actors call it from their mailbox loop, which
// serializes operations on the same map.
package access

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/najoast/socialshard/core"
	"github.com/najoast/socialshard/store"
)

// ErrUnknownRole is returned when decoding a role outside the closed set.
var ErrUnknownRole = errors.New("unknown role")

// Role is a capability tag.
type Role string

const (
	CanisterAdmin      Role = "CanisterAdmin"
	CanisterController Role = "CanisterController"
	ProfileOwner       Role = "ProfileOwner"
	ProjectCanister    Role = "ProjectCanister"
)

// Roles lists the closed set in canonical order.
var Roles = []Role{CanisterAdmin, CanisterController, ProfileOwner, ProjectCanister}

// ParseRole validates a role name.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !slices.Contains(Roles, r) {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}
	return r, nil
}

func (r Role) rank() int {
	return slices.Index(Roles, r)
}

// UnmarshalJSON rejects roles outside the closed set.
func (r *Role) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseRole(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// ControlMap maps an identity to its role set. An identity whose last role
// was revoked stays present with an empty set.
type ControlMap map[core.Identity][]Role

// Store is the role store of one actor.
type Store struct {
	slots store.Store
}

// New binds a role store to an actor's slots.
func New(slots store.Store) *Store {
	return &Store{slots: slots}
}

func (s *Store) load(ctx context.Context) (ControlMap, error) {
	m, err := store.Load[ControlMap](ctx, s.slots, store.SlotAccessControlMap)
	if err != nil {
		return nil, err
	}
	if m == nil {
		m = ControlMap{}
	}
	return m, nil
}

// Grant adds role to id. Granting a held role changes nothing.
func (s *Store) Grant(ctx context.Context, id core.Identity, role Role) error {
	m, err := s.load(ctx)
	if err != nil {
		return err
	}

	roles := m[id]
	if slices.Contains(roles, role) {
		return nil
	}
	m[id] = sortRoles(append(roles, role))
	return store.Save(ctx, s.slots, store.SlotAccessControlMap, m)
}

// Revoke removes role from id. Revoking an unheld role, or revoking from an
// unknown identity, is a no-op.
func (s *Store) Revoke(ctx context.Context, id core.Identity, role Role) error {
	m, err := s.load(ctx)
	if err != nil {
		return err
	}

	roles, ok := m[id]
	if !ok || !slices.Contains(roles, role) {
		return nil
	}
	m[id] = slices.DeleteFunc(roles, func(r Role) bool { return r == role })
	return store.Save(ctx, s.slots, store.SlotAccessControlMap, m)
}

// ListRoles returns the roles of id in canonical order. Unknown identities
// have an empty set.
func (s *Store) ListRoles(ctx context.Context, id core.Identity) ([]Role, error) {
	m, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Role, 0, len(m[id]))
	return sortRoles(append(out, m[id]...)), nil
}

// Assignment pairs an identity with one role.
type Assignment struct {
	Identity core.Identity
	Role     Role
}

// Seed writes the initial map when the actor has none yet and reports whether
// it did. A map that already exists is left untouched, even an empty one, so
// revocations made since the first seed stick.
func (s *Store) Seed(ctx context.Context, initial ...Assignment) (bool, error) {
	_, err := s.slots.Get(ctx, store.SlotAccessControlMap)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return false, fmt.Errorf("load %s: %w", store.SlotAccessControlMap, err)
	}

	m := ControlMap{}
	for _, a := range initial {
		m[a.Identity] = sortRoles(append(m[a.Identity], a.Role))
	}
	return true, store.Save(ctx, s.slots, store.SlotAccessControlMap, m)
}

// HasRole reports whether id holds role.
func (s *Store) HasRole(ctx context.Context, id core.Identity, role Role) (bool, error) {
	roles, err := s.ListRoles(ctx, id)
	if err != nil {
		return false, err
	}
	return slices.Contains(roles, role), nil
}

// Require returns core.ErrUnauthorized unless id holds role.
func (s *Store) Require(ctx context.Context, id core.Identity, role Role) error {
	ok, err := s.HasRole(ctx, id, role)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s requires %s", core.ErrUnauthorized, id, role)
	}
	return nil
}

func sortRoles(roles []Role) []Role {
	slices.SortFunc(roles, func(a, b Role) int { return a.rank() - b.rank() })
	return slices.Compact(roles)
}
