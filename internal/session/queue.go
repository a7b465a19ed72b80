package session

import "sync"

// eventQueue is an unbounded FIFO of callbacks for the session loop. push
// never blocks, so peer connection callbacks raised in a burst keep their
// order.
type eventQueue struct {
	mu    sync.Mutex
	fns   []func()
	ready chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{ready: make(chan struct{}, 1)}
}

func (q *eventQueue) push(fn func()) {
	q.mu.Lock()
	q.fns = append(q.fns, fn)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// take removes and returns everything queued so far, oldest first.
func (q *eventQueue) take() []func() {
	q.mu.Lock()
	defer q.mu.Unlock()
	fns := q.fns
	q.fns = nil
	return fns
}
