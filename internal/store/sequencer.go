package store

import "sync"

// sequencer hands out turns for I/O in the order tickets were taken.
// take must be called under the store mutex; wait and done are called without it.
type sequencer struct {
	next uint64 // guarded by the store mutex

	mu      sync.Mutex
	cond    *sync.Cond
	serving uint64
}

func (q *sequencer) init() { q.cond = sync.NewCond(&q.mu) }

func (q *sequencer) take() uint64 {
	t := q.next
	q.next++
	return t
}

// wait blocks until every earlier ticket called done.
func (q *sequencer) wait(ticket uint64) {
	q.mu.Lock()
	for q.serving != ticket {
		q.cond.Wait()
	}
	q.mu.Unlock()
}

func (q *sequencer) done() {
	q.mu.Lock()
	q.serving++
	q.cond.Broadcast()
	q.mu.Unlock()
}
