package core

import (
	"strings"
	"time"
)

// ActorID numbers actors in the order they were spawned. It is local to one
// process and never reused within it.
type ActorID uint32

// MessageType defines the type of message being sent.
type MessageType uint8

// Identity is an opaque, comparable principal. It names either a human user
// or an actor address and is attested by the runtime on every inbound message.
type Identity string

// Anonymous is the zero Identity.
const Anonymous Identity = ""

const actorIdentityPrefix = "actor:"

// ActorIdentity returns the address of the actor registered under name.
func ActorIdentity(name string) Identity {
	return Identity(actorIdentityPrefix + name)
}

// String returns the textual form of the identity.
func (id Identity) String() string {
	return string(id)
}

// IsActor reports whether the identity is an actor address.
func (id Identity) IsActor() bool {
	return strings.HasPrefix(string(id), actorIdentityPrefix)
}

// Message represents communication data between Actors.
type Message struct {
	// ID is a unique identifier for this message
	ID uint64

	// Type indicates the message category
	Type MessageType

	// Method is the named remote operation being invoked
	Method string

	// Source is the sending actor, zero for ingress traffic
	Source ActorID

	// Target is filled in when the message is delivered
	Target ActorID

	// Session correlates a request with its reply; zero for notify
	Session uint32

	// Data contains the actual message payload
	Data []byte

	// Timestamp when the message was created
	Timestamp time.Time

	// caller is stamped by the system before routing and cannot be set
	// outside this package.
	caller Identity
}

// Caller returns the attested identity of the sender.
func (m *Message) Caller() Identity {
	return m.caller
}

// ActorState is the lifecycle position of an actor.
type ActorState uint8

const (
	ActorStateIdle ActorState = iota
	ActorStateRunning
	ActorStateStopping
	ActorStateStopped
)

// String returns the string representation of ActorState.
func (s ActorState) String() string {
	switch s {
	case ActorStateIdle:
		return "idle"
	case ActorStateRunning:
		return "running"
	case ActorStateStopping:
		return "stopping"
	case ActorStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Message categories.
const (
	MessageTypeNotify MessageType = iota
	MessageTypeResponse
	MessageTypeRequest
	MessageTypeError
)

// String returns the string representation of MessageType.
func (t MessageType) String() string {
	switch t {
	case MessageTypeNotify:
		return "notify"
	case MessageTypeResponse:
		return "response"
	case MessageTypeRequest:
		return "request"
	case MessageTypeError:
		return "error"
	default:
		return "unknown"
	}
}

// ActorOptions tunes a spawned actor. Zero fields take the defaults.
type ActorOptions struct {
	// MailboxSize bounds the queue; Send fails once it is full
	MailboxSize int

	// Name is used in stats and logs; defaults to the service name
	Name string

	// ProcessTimeout bounds the context handed to a single handler run
	ProcessTimeout time.Duration
}

// DefaultActorOptions returns the options used for zero fields.
func DefaultActorOptions() ActorOptions {
	return ActorOptions{
		MailboxSize:    1000,
		ProcessTimeout: 30 * time.Second,
	}
}

func (o ActorOptions) withDefaults(name string) ActorOptions {
	d := DefaultActorOptions()
	if o.MailboxSize <= 0 {
		o.MailboxSize = d.MailboxSize
	}
	if o.ProcessTimeout <= 0 {
		o.ProcessTimeout = d.ProcessTimeout
	}
	if o.Name == "" {
		o.Name = name
	}
	return o
}

// ActorStats is a point-in-time snapshot of one actor.
type ActorStats struct {
	ID                ActorID
	Identity          Identity
	Name              string
	State             ActorState
	MessagesProcessed uint64
	MailboxSize       int // messages queued right now
	CreatedAt         time.Time
	LastMessageAt     time.Time
}
