package prefetch

import (
	"time"

	"github.com/Borislavv/go-ash-imgcache/model"
)

// task warms the images of one section. It lives until every key resolved.
type task struct {
	id         string
	sectionID  string
	keys       []string
	priority   model.Priority
	enqueuedAt time.Time
	seq        uint64
	index      int
	canceled   bool
}

// taskQueue is a container/heap ordered by priority, then FIFO.
type taskQueue []*task

func (q taskQueue) Len() int { return len(q) }

func (q taskQueue) Less(i, j int) bool {
	if q[i].priority != q[j].priority {
		return q[i].priority > q[j].priority
	}
	return q[i].seq < q[j].seq
}

func (q taskQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *taskQueue) Push(x any) {
	t := x.(*task)
	t.index = len(*q)
	*q = append(*q, t)
}

func (q *taskQueue) Pop() any {
	old := *q
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*q = old[:n-1]
	return t
}
