package logger

import "log/slog"

// Standard field keys. Use them consistently so logs can be queried by key.
const (
	KeyActor      = "actor"
	KeyMethod     = "method"
	KeyCaller     = "caller"
	KeySession    = "session"
	KeyIdentity   = "identity"
	KeyRole       = "role"
	KeyUsername   = "username"
	KeyOutcome    = "outcome"
	KeyPostID     = "post_id"
	KeyScore      = "score"
	KeyCount      = "count"
	KeyEvicted    = "evicted"
	KeySlot       = "slot"
	KeyBackend    = "backend"
	KeyService    = "service"
	KeyDurationMs = "duration_ms"
	KeyError      = "error"
)

// Err returns a slog.Attr for an error
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// Actor returns a slog.Attr for an actor address
func Actor(addr string) slog.Attr {
	return slog.String(KeyActor, addr)
}

// Method returns a slog.Attr for a remote operation name
func Method(name string) slog.Attr {
	return slog.String(KeyMethod, name)
}

// Identity returns a slog.Attr for a principal
func Identity(id string) slog.Attr {
	return slog.String(KeyIdentity, id)
}

// Slot returns a slog.Attr for a persistent slot name
func Slot(name string) slog.Attr {
	return slog.String(KeySlot, name)
}

// DurationMs returns a slog.Attr for duration in milliseconds
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}
