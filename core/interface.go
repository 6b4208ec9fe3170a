package core

import (
	"context"
	"time"
)

// MessageHandler processes incoming messages for an actor.
type MessageHandler interface {
	// HandleMessage processes a single message and returns the reply payload.
	// The payload is discarded for one-way messages. A non-nil error is
	// delivered to a waiting caller as a RemoteError.
	HandleMessage(ctx context.Context, msg *Message) ([]byte, error)
}

// HandlerFunc adapts an ordinary function to the MessageHandler interface.
type HandlerFunc func(ctx context.Context, msg *Message) ([]byte, error)

// HandleMessage calls f(ctx, msg).
func (f HandlerFunc) HandleMessage(ctx context.Context, msg *Message) ([]byte, error) {
	return f(ctx, msg)
}

// ActorSystem owns every actor of the process.
type ActorSystem interface {
	// NewService starts an actor addressable by ActorIdentity(name).
	NewService(name string, handler MessageHandler, opts ActorOptions) (*Handle, error)

	// StopService stops the actor bound to name and releases the name.
	StopService(name string) error

	// GetService retrieves a service by name.
	GetService(name string) (*Handle, bool)

	// Resolve finds the handle addressed by an identity.
	Resolve(id Identity) (*Handle, bool)

	// Ingress returns a reference that speaks for an external principal.
	// The caller is responsible for having authenticated that principal.
	Ingress(id Identity) *Ref

	// ListServices returns all running services ordered by ActorID.
	ListServices() []*Handle

	// Stats returns runtime statistics for every actor.
	Stats() []ActorStats

	// SetCallTimeout bounds how long a call waits for its reply.
	SetCallTimeout(timeout time.Duration)

	// Shutdown stops every actor and fails outstanding calls.
	Shutdown(ctx context.Context) error
}
