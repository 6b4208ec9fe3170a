package core

import (
	"fmt"
	"slices"
	"sync"
)

// Handle is the registration record of a running actor.
type Handle struct {
	ActorID  ActorID
	Name     string
	Identity Identity
}

func (h Handle) String() string {
	return fmt.Sprintf("%s#%d", h.Identity, h.ActorID)
}

type entry struct {
	handle *Handle
	actor  *actor
}

// addressBook maps identities to the actors that answer for them. A name is
// bound to at most one live actor.
type addressBook struct {
	mu         sync.RWMutex
	byIdentity map[Identity]*entry
	byID       map[ActorID]*entry
	lastID     ActorID
}

func newAddressBook() *addressBook {
	return &addressBook{
		byIdentity: make(map[Identity]*entry),
		byID:       make(map[ActorID]*entry),
	}
}

// bind allocates an ActorID for name and registers the actor built for it.
func (b *addressBook) bind(name string, build func(ActorID, Identity) *actor) (*entry, error) {
	identity := ActorIdentity(name)

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, taken := b.byIdentity[identity]; taken {
		return nil, fmt.Errorf("%w: %s", ErrNameTaken, name)
	}

	b.lastID++
	id := b.lastID
	e := &entry{
		handle: &Handle{ActorID: id, Name: name, Identity: identity},
		actor:  build(id, identity),
	}
	b.byIdentity[identity] = e
	b.byID[id] = e
	return e, nil
}

func (b *addressBook) unbind(id ActorID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if e, ok := b.byID[id]; ok {
		delete(b.byID, id)
		delete(b.byIdentity, e.handle.Identity)
	}
}

func (b *addressBook) lookup(id Identity) (*entry, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	e, ok := b.byIdentity[id]
	return e, ok
}

// deliver drops msg into the mailbox of the actor addressed by to.
func (b *addressBook) deliver(to Identity, msg *Message) error {
	e, ok := b.lookup(to)
	if !ok {
		return fmt.Errorf("%w: %s", ErrActorNotFound, to)
	}
	msg.Target = e.handle.ActorID
	return e.actor.Send(msg)
}

// entries returns every registration ordered by ActorID.
func (b *addressBook) entries() []*entry {
	b.mu.RLock()
	out := make([]*entry, 0, len(b.byID))
	for _, e := range b.byID {
		out = append(out, e)
	}
	b.mu.RUnlock()

	slices.SortFunc(out, func(x, y *entry) int {
		return int(x.handle.ActorID) - int(y.handle.ActorID)
	})
	return out
}

func (b *addressBook) len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.byID)
}
