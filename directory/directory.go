// Package directory implements the user registry and the globally unique
// username claim protocol.
//
// Both maps live in the user index actor. A claim cross-checks them against
// the caller attested by the runtime and writes nothing unless every check
// passes.
package directory

import (
	"context"

	"github.com/najoast/socialshard/core"
	"github.com/najoast/socialshard/store"
)

// ClaimError is the reason a claim was refused. It is a plain string so it
// travels unchanged inside a JSON reply.
type ClaimError string

const (
	UsernameAlreadyTaken                      ClaimError = "UsernameAlreadyTaken"
	UserCanisterEntryDoesNotExist             ClaimError = "UserCanisterEntryDoesNotExist"
	SendingCanisterDoesNotMatchUserCanisterId ClaimError = "SendingCanisterDoesNotMatchUserCanisterId"
)

func (e ClaimError) Error() string { return string(e) }

// Registry maps a user principal to the actor that owns it.
type Registry struct {
	slots store.Store
}

// NewRegistry binds a registry to the slots of its owning actor.
func NewRegistry(slots store.Store) *Registry {
	return &Registry{slots: slots}
}

func (r *Registry) load(ctx context.Context) (map[core.Identity]core.Identity, error) {
	m, err := store.Load[map[core.Identity]core.Identity](ctx, r.slots, store.SlotUserCanisters)
	if err != nil {
		return nil, err
	}
	if m == nil {
		m = make(map[core.Identity]core.Identity)
	}
	return m, nil
}

// Lookup returns the actor that owns user.
func (r *Registry) Lookup(ctx context.Context, user core.Identity) (core.Identity, bool, error) {
	m, err := r.load(ctx)
	if err != nil {
		return core.Anonymous, false, err
	}
	owner, ok := m[user]
	return owner, ok, nil
}

// Register records canister as the owner of user, replacing any previous
// owner.
func (r *Registry) Register(ctx context.Context, user, canister core.Identity) error {
	m, err := r.load(ctx)
	if err != nil {
		return err
	}
	m[user] = canister
	return store.Save(ctx, r.slots, store.SlotUserCanisters, m)
}

// Users returns a copy of the whole registry.
func (r *Registry) Users(ctx context.Context) (map[core.Identity]core.Identity, error) {
	return r.load(ctx)
}

// Usernames is the username directory. Entries are never reassigned.
type Usernames struct {
	slots    store.Store
	registry *Registry
}

// NewUsernames creates the directory over the given registry.
func NewUsernames(slots store.Store, registry *Registry) *Usernames {
	return &Usernames{slots: slots, registry: registry}
}

func (u *Usernames) load(ctx context.Context) (map[string]core.Identity, error) {
	m, err := store.Load[map[string]core.Identity](ctx, u.slots, store.SlotUsernames)
	if err != nil {
		return nil, err
	}
	if m == nil {
		m = make(map[string]core.Identity)
	}
	return m, nil
}

// Claim binds username to caller on behalf of purported. The first failing
// check wins. On success the stored owner is caller, never purported.
//
// A ClaimError reports a refused claim; any other error comes from storage.
func (u *Usernames) Claim(ctx context.Context, caller core.Identity, username string, purported core.Identity) error {
	names, err := u.load(ctx)
	if err != nil {
		return err
	}
	if _, taken := names[username]; taken {
		return UsernameAlreadyTaken
	}

	owner, registered, err := u.registry.Lookup(ctx, purported)
	if err != nil {
		return err
	}
	if !registered {
		return UserCanisterEntryDoesNotExist
	}
	if owner != caller {
		return SendingCanisterDoesNotMatchUserCanisterId
	}

	names[username] = caller
	return store.Save(ctx, u.slots, store.SlotUsernames, names)
}

// Owner resolves username to the actor that claimed it.
func (u *Usernames) Owner(ctx context.Context, username string) (core.Identity, bool, error) {
	names, err := u.load(ctx)
	if err != nil {
		return core.Anonymous, false, err
	}
	owner, ok := names[username]
	return owner, ok, nil
}
