package core

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors shared by handlers. They survive the reply path as the
// prefix of a RemoteError message, so errors.Is works across actors.
var (
	ErrUnknownMethod   = errors.New("unknown method")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrActorNotFound   = errors.New("actor not found")
	ErrSystemShutdown  = errors.New("actor system is shutting down")
	ErrNameTaken       = errors.New("service name already bound")
	ErrMailboxFull     = errors.New("mailbox full")
	ErrActorStopped    = errors.New("actor stopped")
	ErrCallTimeout     = errors.New("call timeout")
)

var wireSentinels = []error{ErrUnknownMethod, ErrUnauthorized, ErrInvalidArgument, ErrActorNotFound}

// RemoteError is returned by Call when the target handler failed.
type RemoteError struct {
	Method  string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote %s: %s", e.Method, e.Message)
}

// Is matches the sentinel whose text prefixes the remote message.
func (e *RemoteError) Is(target error) bool {
	for _, s := range wireSentinels {
		if target == s && strings.HasPrefix(e.Message, s.Error()) {
			return true
		}
	}
	return false
}

// Unknown returns the error for a method the handler does not serve.
func Unknown(method string) error {
	return fmt.Errorf("%w: %q", ErrUnknownMethod, method)
}
