package session

import (
	"sync"
	"testing"
	"time"
)

func TestEventQueueKeepsOrder(t *testing.T) {
	q := newEventQueue()
	var got []int
	for i := 0; i < 1000; i++ {
		q.push(func() { got = append(got, i) })
	}

	select {
	case <-q.ready:
	default:
		t.Fatalf("push did not signal")
	}
	for _, fn := range q.take() {
		fn()
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("callback %d ran at position %d", v, i)
		}
	}
	if len(got) != 1000 {
		t.Fatalf("ran %d callbacks, want 1000", len(got))
	}
	if rest := q.take(); len(rest) != 0 {
		t.Fatalf("queue not emptied: %d left", len(rest))
	}
}

func TestEventQueueConcurrentPushes(t *testing.T) {
	q := newEventQueue()
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				q.push(func() {})
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	n := 0
	for n < 2000 {
		select {
		case <-q.ready:
			n += len(q.take())
		case <-time.After(5 * time.Second):
			t.Fatalf("drained %d of 2000 callbacks", n)
		}
	}
	<-done
}
