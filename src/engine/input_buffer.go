package engine

import (
	"context"
	"sync"

	"github.com/gammazero/deque"
)

// InputBuffer holds the payload waiting to be included in local points.
//
// The oldest payload is evicted once the buffer exceeds its byte budget. A
// fetched batch stays at the front of the buffer until the next fresh fetch,
// so a round that failed to deliver its point can replay the same batch.
type InputBuffer struct {
	mu sync.Mutex

	data  deque.Deque[[]byte]
	bytes int

	// the first fetched elements form the batch of the last fetch
	fetched int

	budget   int
	maxBatch int
}

// NewInputBuffer keeps up to budget bytes and fetches batches of up to
// maxBatch bytes.
func NewInputBuffer(budget, maxBatch int) *InputBuffer {
	if maxBatch > budget {
		maxBatch = budget
	}
	return &InputBuffer{
		budget:   budget,
		maxBatch: maxBatch,
	}
}

// Add appends the payload, evicting the oldest ones if needed. Payload that
// cannot fit in a single batch is dropped and Add returns false.
func (b *InputBuffer) Add(payload []byte) bool {
	if len(payload) == 0 || len(payload) > b.maxBatch {
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for b.bytes+len(payload) > b.budget {
		evicted := b.data.PopFront()
		b.bytes -= len(evicted)
		if b.fetched > 0 {
			b.fetched--
		}
	}
	b.data.PushBack(payload)
	b.bytes += len(payload)
	return true
}

// Fetch returns the next batch. With onlyFresh, the previous batch is
// considered delivered and dropped first. Without it, the previous batch is
// returned again, topped up with newer payload.
func (b *InputBuffer) Fetch(onlyFresh bool) [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	if onlyFresh {
		for ; b.fetched > 0; b.fetched-- {
			b.bytes -= len(b.data.PopFront())
		}
	}

	var (
		res  [][]byte
		size int
	)
	for i := 0; i < b.data.Len(); i++ {
		payload := b.data.At(i)
		if size+len(payload) > b.maxBatch {
			break
		}
		size += len(payload)
		res = append(res, payload)
	}
	b.fetched = len(res)
	return res
}

// Len returns the number of buffered payloads and their size.
func (b *InputBuffer) Len() (int, int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.data.Len(), b.bytes
}

// Consume adds everything received on ch until it is closed or ctx is done.
func (b *InputBuffer) Consume(ctx context.Context, ch <-chan []byte) {
	for {
		select {
		case payload, ok := <-ch:
			if !ok {
				return
			}
			b.Add(payload)
		case <-ctx.Done():
			return
		}
	}
}
