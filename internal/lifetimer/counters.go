package lifetimer

import "sync/atomic"

type lifetimerCounters struct {
	removed    atomic.Int64 // expired entries reclaimed
	errors     atomic.Int64 // failed index flushes
	scans      atomic.Int64 // total sweeps number
	scanHits   atomic.Int64 // sweeps that removed something
	scanMisses atomic.Int64 // sweeps that found nothing expired
}

func newLifetimerCounters() *lifetimerCounters {
	return &lifetimerCounters{
		removed:    atomic.Int64{},
		errors:     atomic.Int64{},
		scans:      atomic.Int64{},
		scanHits:   atomic.Int64{},
		scanMisses: atomic.Int64{},
	}
}

func (c *lifetimerCounters) snapshot() (removed, errors, scans, hits, misses int64) {
	removed = c.removed.Load()
	errors = c.errors.Load()
	scans = c.scans.Load()
	hits = c.scanHits.Load()
	misses = c.scanMisses.Load()
	return
}
