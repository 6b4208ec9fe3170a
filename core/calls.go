package core

import "sync"

// pendingCalls holds the reply slot of every call still waiting for its
// answer. Session zero is never handed out; it marks one-way messages.
type pendingCalls struct {
	mu      sync.Mutex
	waiting map[uint32]chan *Message
	last    uint32
	closed  bool
}

func newPendingCalls() *pendingCalls {
	return &pendingCalls{waiting: make(map[uint32]chan *Message)}
}

func (p *pendingCalls) open() (uint32, <-chan *Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return 0, nil, ErrSystemShutdown
	}
	p.last++
	if p.last == 0 {
		p.last++
	}
	ch := make(chan *Message, 1)
	p.waiting[p.last] = ch
	return p.last, ch, nil
}

// complete hands resp to the waiter of session. It reports false when the
// waiter already gave up.
func (p *pendingCalls) complete(session uint32, resp *Message) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch, ok := p.waiting[session]
	if !ok {
		return false
	}
	delete(p.waiting, session)
	ch <- resp
	return true
}

func (p *pendingCalls) abandon(session uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.waiting, session)
}

func (p *pendingCalls) pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.waiting)
}

// close fails every outstanding call and refuses new ones.
func (p *pendingCalls) close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	for session, ch := range p.waiting {
		close(ch)
		delete(p.waiting, session)
	}
}
