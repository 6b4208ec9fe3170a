package core

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/najoast/socialshard/logger"
)

// replyFunc delivers the outcome of a request back to its waiting caller.
type replyFunc func(req *Message, data []byte, err error)

// actor serves one mailbox on one goroutine.
type actor struct {
	id       ActorID
	identity Identity
	name     string
	handler  MessageHandler
	opts     ActorOptions

	// never closed; the loop exits on ctx and drains what is left
	mailbox chan *Message

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	state     atomic.Uint32 // ActorState
	started   atomic.Bool
	processed atomic.Uint64
	lastAt    atomic.Int64 // unix nanos
	createdAt time.Time

	self  *Ref
	reply replyFunc
}

func newActor(parent context.Context, id ActorID, identity Identity, handler MessageHandler, opts ActorOptions) *actor {
	ctx, cancel := context.WithCancel(parent)
	return &actor{
		id:        id,
		identity:  identity,
		name:      opts.Name,
		handler:   handler,
		opts:      opts,
		mailbox:   make(chan *Message, opts.MailboxSize),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		createdAt: time.Now(),
	}
}

func (a *actor) start() error {
	if !a.started.CompareAndSwap(false, true) {
		return fmt.Errorf("actor %s already started", a.identity)
	}
	go a.run()
	return nil
}

// Send queues msg without blocking.
func (a *actor) Send(msg *Message) error {
	switch ActorState(a.state.Load()) {
	case ActorStateStopping, ActorStateStopped:
		return fmt.Errorf("%w: %s", ErrActorStopped, a.identity)
	}

	select {
	case a.mailbox <- msg:
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrMailboxFull, a.identity)
	}
}

// Stop lets the current message finish, fails every queued request and
// waits for the loop to exit.
func (a *actor) Stop() error {
	for {
		cur := ActorState(a.state.Load())
		if cur == ActorStateStopping || cur == ActorStateStopped {
			return fmt.Errorf("%w: %s", ErrActorStopped, a.identity)
		}
		if a.state.CompareAndSwap(uint32(cur), uint32(ActorStateStopping)) {
			break
		}
	}

	a.cancel()
	if a.started.Load() {
		<-a.done
	} else {
		a.drain()
	}
	a.state.Store(uint32(ActorStateStopped))
	return nil
}

func (a *actor) Stats() ActorStats {
	var last time.Time
	if ns := a.lastAt.Load(); ns > 0 {
		last = time.Unix(0, ns)
	}
	return ActorStats{
		ID:                a.id,
		Identity:          a.identity,
		Name:              a.name,
		State:             ActorState(a.state.Load()),
		MessagesProcessed: a.processed.Load(),
		MailboxSize:       len(a.mailbox),
		CreatedAt:         a.createdAt,
		LastMessageAt:     last,
	}
}

func (a *actor) run() {
	defer close(a.done)

	for {
		select {
		case <-a.ctx.Done():
			a.drain()
			return
		case msg := <-a.mailbox:
			if msg != nil {
				a.process(msg)
			}
		}
	}
}

func (a *actor) process(msg *Message) {
	if a.state.CompareAndSwap(uint32(ActorStateIdle), uint32(ActorStateRunning)) {
		defer a.state.CompareAndSwap(uint32(ActorStateRunning), uint32(ActorStateIdle))
	}
	a.processed.Add(1)
	a.lastAt.Store(time.Now().UnixNano())

	ctx, cancel := context.WithTimeout(a.ctx, a.opts.ProcessTimeout)
	defer cancel()

	lc := &logger.LogContext{
		Actor:     a.identity.String(),
		Method:    msg.Method,
		Caller:    msg.caller.String(),
		Session:   msg.Session,
		StartTime: time.Now(),
	}
	ctx = logger.WithContext(withDispatch(ctx, msg.caller, a.self), lc)

	data, err := a.handle(ctx, msg)
	if err != nil {
		logger.DebugCtx(ctx, "handler failed", logger.Err(err), logger.DurationMs(lc.DurationMs()))
	}
	if msg.Session != 0 && a.reply != nil {
		a.reply(msg, data, err)
	}
}

// handle turns a handler panic into an error reply.
func (a *actor) handle(ctx context.Context, msg *Message) (data []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorCtx(ctx, "handler panicked", "panic", r)
			data, err = nil, fmt.Errorf("handler panic: %v", r)
		}
	}()
	return a.handler.HandleMessage(ctx, msg)
}

func (a *actor) drain() {
	for {
		select {
		case msg := <-a.mailbox:
			if msg != nil && msg.Session != 0 && a.reply != nil {
				a.reply(msg, nil, fmt.Errorf("%w: %s", ErrActorStopped, a.identity))
			}
		default:
			return
		}
	}
}

// stopAll stops actors concurrently and waits for all of them.
func stopAll(actors []*actor) {
	var wg sync.WaitGroup
	for _, a := range actors {
		wg.Add(1)
		go func(a *actor) {
			defer wg.Done()
			if err := a.Stop(); err != nil {
				logger.Debug("actor stop", logger.KeyActor, a.identity, logger.Err(err))
			}
		}(a)
	}
	wg.Wait()
}
