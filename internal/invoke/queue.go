package invoke

import "sync"

// Queue is an insertion-ordered map from Key to the latest Invocation
// enqueued under it. Re-enqueueing an existing key replaces the value in
// place; the key keeps the position it was first seen at.
//
// Any goroutine may enqueue. Flush drains under the same lock, so work
// arriving after a Flush becomes the start of the next batch.
type Queue struct {
	mu    sync.Mutex
	index map[Key]int
	items []Invocation

	coalesced uint64
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{index: make(map[Key]int)}
}

// Enqueue adds inv, replacing any queued invocation with the same key.
func (q *Queue) Enqueue(inv Invocation) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.put(inv)
}

// EnqueueAll adds invocations in order under a single critical section.
func (q *Queue) EnqueueAll(invs []Invocation) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, inv := range invs {
		q.put(inv)
	}
}

func (q *Queue) put(inv Invocation) {
	if i, ok := q.index[inv.key]; ok {
		q.items[i] = inv
		q.coalesced++
		return
	}
	q.index[inv.key] = len(q.items)
	q.items = append(q.items, inv)
}

// Flush returns the queued invocations in first-seen order and empties the
// queue.
func (q *Queue) Flush() []Invocation {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil
	}
	out := q.items
	q.items = nil
	q.index = make(map[Key]int)
	return out
}

// Drop removes every queued invocation for which match reports true and
// returns how many were removed. The rest keep their order.
func (q *Queue) Drop(match func(Invocation) bool) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	kept := q.items[:0]
	index := make(map[Key]int, len(q.items))
	for _, inv := range q.items {
		if match(inv) {
			continue
		}
		index[inv.key] = len(kept)
		kept = append(kept, inv)
	}
	dropped := len(q.items) - len(kept)
	clear(q.items[len(kept):])
	q.items = kept
	q.index = index
	return dropped
}

// Clear discards all queued invocations.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = nil
	q.index = make(map[Key]int)
}

// Len returns the number of distinct keys queued.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Coalesced returns how many enqueues replaced an existing entry.
func (q *Queue) Coalesced() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.coalesced
}
