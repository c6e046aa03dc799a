package store

import "sync/atomic"

type counters struct {
	hits          atomic.Int64
	misses        atomic.Int64
	expirations   atomic.Int64
	memEvictions  atomic.Int64
	diskEvictions atomic.Int64
}

func newCounters() *counters {
	return &counters{
		hits:          atomic.Int64{},
		misses:        atomic.Int64{},
		expirations:   atomic.Int64{},
		memEvictions:  atomic.Int64{},
		diskEvictions: atomic.Int64{},
	}
}

func (c *counters) snapshot() (hits, misses, expirations, memEvictions, diskEvictions int64) {
	return c.hits.Load(), c.misses.Load(), c.expirations.Load(), c.memEvictions.Load(), c.diskEvictions.Load()
}
