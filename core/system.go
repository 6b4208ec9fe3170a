package core

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/najoast/socialshard/logger"
)

// DefaultCallTimeout bounds a Call when no timeout was configured.
const DefaultCallTimeout = 10 * time.Second

type system struct {
	book  *addressBook
	calls *pendingCalls

	// serializes spawning against Shutdown
	mu sync.Mutex

	callTimeout atomic.Int64
	messageSeq  atomic.Uint64

	ctx    context.Context
	cancel context.CancelFunc
}

// NewActorSystem returns an empty, running actor system.
func NewActorSystem() ActorSystem {
	ctx, cancel := context.WithCancel(context.Background())
	s := &system{
		book:   newAddressBook(),
		calls:  newPendingCalls(),
		ctx:    ctx,
		cancel: cancel,
	}
	s.callTimeout.Store(int64(DefaultCallTimeout))
	return s
}

func (s *system) SetCallTimeout(timeout time.Duration) {
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	s.callTimeout.Store(int64(timeout))
}

func (s *system) NewService(name string, handler MessageHandler, opts ActorOptions) (*Handle, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty service name", ErrInvalidArgument)
	}
	if handler == nil {
		return nil, fmt.Errorf("%w: nil handler", ErrInvalidArgument)
	}
	opts = opts.withDefaults(name)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx.Err() != nil {
		return nil, ErrSystemShutdown
	}

	e, err := s.book.bind(name, func(id ActorID, identity Identity) *actor {
		a := newActor(s.ctx, id, identity, handler, opts)
		a.self = &Ref{sys: s, identity: identity, source: id}
		a.reply = s.reply
		return a
	})
	if err != nil {
		return nil, err
	}
	if err := e.actor.start(); err != nil {
		s.book.unbind(e.handle.ActorID)
		return nil, err
	}

	logger.Debug("actor started", logger.KeyActor, e.handle.Identity, "actor_id", e.handle.ActorID)
	return e.handle, nil
}

func (s *system) StopService(name string) error {
	e, ok := s.book.lookup(ActorIdentity(name))
	if !ok {
		return fmt.Errorf("%w: %s", ErrActorNotFound, name)
	}
	s.book.unbind(e.handle.ActorID)
	return e.actor.Stop()
}

func (s *system) GetService(name string) (*Handle, bool) {
	return s.Resolve(ActorIdentity(name))
}

func (s *system) Resolve(id Identity) (*Handle, bool) {
	e, ok := s.book.lookup(id)
	if !ok {
		return nil, false
	}
	return e.handle, true
}

func (s *system) Ingress(id Identity) *Ref {
	return &Ref{sys: s, identity: id}
}

func (s *system) ListServices() []*Handle {
	entries := s.book.entries()
	out := make([]*Handle, len(entries))
	for i, e := range entries {
		out[i] = e.handle
	}
	return out
}

func (s *system) Stats() []ActorStats {
	entries := s.book.entries()
	out := make([]ActorStats, len(entries))
	for i, e := range entries {
		out[i] = e.actor.Stats()
	}
	return out
}

func (s *system) nextMessageID() uint64 {
	return s.messageSeq.Add(1)
}

// call delivers a request and blocks until the reply, the call timeout or
// ctx, whichever comes first.
func (s *system) call(ctx context.Context, from *Ref, to Identity, method string, data []byte) ([]byte, error) {
	session, replies, err := s.calls.open()
	if err != nil {
		return nil, fmt.Errorf("call %s on %s: %w", method, to, err)
	}

	msg := from.newMessage(MessageTypeRequest, method, data)
	msg.Session = session
	if err := s.book.deliver(to, msg); err != nil {
		s.calls.abandon(session)
		return nil, fmt.Errorf("call %s on %s: %w", method, to, err)
	}

	timer := time.NewTimer(time.Duration(s.callTimeout.Load()))
	defer timer.Stop()

	select {
	case resp, ok := <-replies:
		if !ok {
			return nil, fmt.Errorf("call %s on %s: %w", method, to, ErrSystemShutdown)
		}
		if resp.Type == MessageTypeError {
			return nil, &RemoteError{Method: method, Message: string(resp.Data)}
		}
		return resp.Data, nil
	case <-timer.C:
		s.calls.abandon(session)
		return nil, fmt.Errorf("call %s on %s: %w", method, to, ErrCallTimeout)
	case <-ctx.Done():
		s.calls.abandon(session)
		return nil, fmt.Errorf("call %s on %s: %w", method, to, ctx.Err())
	}
}

// notify routes a one-way message. Nothing waits for it to be handled.
func (s *system) notify(from *Ref, to Identity, method string, data []byte) error {
	msg := from.newMessage(MessageTypeNotify, method, data)
	if err := s.book.deliver(to, msg); err != nil {
		return fmt.Errorf("notify %s on %s: %w", method, to, err)
	}
	return nil
}

// reply completes the caller's session directly so a caller blocked inside
// its own handler never waits on its own mailbox.
func (s *system) reply(req *Message, data []byte, err error) {
	resp := &Message{
		ID:        s.nextMessageID(),
		Type:      MessageTypeResponse,
		Method:    req.Method,
		Source:    req.Target,
		Target:    req.Source,
		Session:   req.Session,
		Data:      data,
		Timestamp: time.Now(),
	}
	if err != nil {
		resp.Type = MessageTypeError
		resp.Data = []byte(err.Error())
	}

	if !s.calls.complete(req.Session, resp) {
		logger.Debug("reply dropped", logger.KeyMethod, req.Method, logger.KeySession, req.Session)
	}
}

func (s *system) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.cancel()
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		entries := s.book.entries()
		actors := make([]*actor, len(entries))
		for i, e := range entries {
			actors[i] = e.actor
			s.book.unbind(e.handle.ActorID)
		}
		stopAll(actors)
		s.calls.close()
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
