package intercom

import (
	"context"
	"sync"

	"github.com/gammazero/deque"
)

// eventQueue is an unbounded FIFO of consensus events. Pushing never blocks,
// so the filter may emit events while it holds its own lock.
type eventQueue struct {
	mu     sync.Mutex
	events deque.Deque[ConsensusEvent]
	notify chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{notify: make(chan struct{}, 1)}
}

func (q *eventQueue) push(events ...ConsensusEvent) {
	if len(events) == 0 {
		return
	}

	q.mu.Lock()
	for _, e := range events {
		q.events.PushBack(e)
	}
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *eventQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.events.Len()
}

// pop blocks until an event is available or ctx is done.
func (q *eventQueue) pop(ctx context.Context) (ConsensusEvent, error) {
	for {
		q.mu.Lock()
		if q.events.Len() > 0 {
			e := q.events.PopFront()
			q.mu.Unlock()
			return e, nil
		}
		q.mu.Unlock()

		select {
		case <-q.notify:
		case <-ctx.Done():
			return ConsensusEvent{}, ctx.Err()
		}
	}
}
