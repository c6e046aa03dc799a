package scheduler

import (
	"time"

	"github.com/Borislavv/go-ash-imgcache/model"
)

type state uint8

const (
	stateQueued state = iota
	stateFetching
)

type waiter struct {
	requesterID string
	ch          chan Result
	stop        func() bool // detaches the context watcher
}

// pending is a waiter removed from its request, to be resolved outside the lock.
type pending struct {
	w   waiter
	res Result
}

// request is the single live fetch intent of a key; further intents become waiters.
type request struct {
	key        string
	priority   model.Priority
	enqueuedAt time.Time
	seq        uint64
	state      state
	waiters    []waiter
	index      int // position in the heap, -1 when not queued
}

// requestQueue is a container/heap ordered by priority, then by enqueue sequence.
type requestQueue []*request

func (q requestQueue) Len() int { return len(q) }

func (q requestQueue) Less(i, j int) bool {
	if q[i].priority != q[j].priority {
		return q[i].priority > q[j].priority
	}
	return q[i].seq < q[j].seq
}

func (q requestQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *requestQueue) Push(x any) {
	r := x.(*request)
	r.index = len(*q)
	*q = append(*q, r)
}

func (q *requestQueue) Pop() any {
	old := *q
	n := len(old)
	r := old[n-1]
	old[n-1] = nil
	r.index = -1
	*q = old[:n-1]
	return r
}
