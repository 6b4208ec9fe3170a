package core

import (
	"context"
	"time"
)

type ctxKey int

const (
	callerKey ctxKey = iota
	selfKey
)

// Caller returns the identity attested by the dispatch layer for the message
// being handled. It is Anonymous outside a handler.
func Caller(ctx context.Context) Identity {
	id, _ := ctx.Value(callerKey).(Identity)
	return id
}

// Self returns the reference of the actor handling the current message, or
// nil outside a handler.
func Self(ctx context.Context) *Ref {
	ref, _ := ctx.Value(selfKey).(*Ref)
	return ref
}

func withDispatch(ctx context.Context, caller Identity, self *Ref) context.Context {
	ctx = context.WithValue(ctx, callerKey, caller)
	return context.WithValue(ctx, selfKey, self)
}

// Ref is a sending capability bound to one identity. Messages sent through
// it carry that identity as their attested caller.
type Ref struct {
	sys      *system
	identity Identity
	source   ActorID
}

// Identity returns the address messages from this reference are stamped with.
func (r *Ref) Identity() Identity {
	return r.identity
}

// Call sends method to the actor addressed by to and waits for its reply.
func (r *Ref) Call(ctx context.Context, to Identity, method string, args any) ([]byte, error) {
	data, err := Encode(args)
	if err != nil {
		return nil, err
	}
	return r.sys.call(ctx, r, to, method, data)
}

// Notify sends method to the actor addressed by to without waiting. The
// returned error only reports local routing failures.
func (r *Ref) Notify(to Identity, method string, args any) error {
	data, err := Encode(args)
	if err != nil {
		return err
	}
	return r.sys.notify(r, to, method, data)
}

func (r *Ref) newMessage(msgType MessageType, method string, data []byte) *Message {
	return &Message{
		ID:        r.sys.nextMessageID(),
		Type:      msgType,
		Method:    method,
		Source:    r.source,
		Data:      data,
		Timestamp: time.Now(),
		caller:    r.identity,
	}
}
