package scheduler

import "sync/atomic"

type counters struct {
	enqueued  atomic.Int64
	deduped   atomic.Int64
	skipped   atomic.Int64 // resolved without network, already cached
	completed atomic.Int64
	failed    atomic.Int64
	canceled  atomic.Int64
}

func newCounters() *counters {
	return &counters{
		enqueued:  atomic.Int64{},
		deduped:   atomic.Int64{},
		skipped:   atomic.Int64{},
		completed: atomic.Int64{},
		failed:    atomic.Int64{},
		canceled:  atomic.Int64{},
	}
}

func (c *counters) snapshot() (enqueued, deduped, skipped, completed, failed, canceled int64) {
	return c.enqueued.Load(), c.deduped.Load(), c.skipped.Load(), c.completed.Load(), c.failed.Load(), c.canceled.Load()
}
