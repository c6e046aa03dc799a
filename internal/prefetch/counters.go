package prefetch

import "sync/atomic"

type counters struct {
	enqueued   atomic.Int64
	promoted   atomic.Int64
	suppressed atomic.Int64
	completed  atomic.Int64
	failedKeys atomic.Int64
}

func newCounters() *counters {
	return &counters{}
}

func (c *counters) snapshot() (enqueued, promoted, suppressed, completed, failedKeys int64) {
	return c.enqueued.Load(), c.promoted.Load(), c.suppressed.Load(), c.completed.Load(), c.failedKeys.Load()
}
