package telemetry

import (
	"github.com/Borislavv/go-ash-imgcache/internal/evictor"
	"github.com/Borislavv/go-ash-imgcache/internal/lifetimer"
	"github.com/Borislavv/go-ash-imgcache/internal/prefetch"
	"github.com/Borislavv/go-ash-imgcache/internal/scheduler"
	"github.com/Borislavv/go-ash-imgcache/model"
)

// Sources are read on every sample. A nil func is reported as zeros.
type Sources struct {
	Store     func() model.Stats
	Scheduler func() scheduler.Stats
	Prefetch  func() prefetch.Stats
	Quality   func() model.Quality
	Evictor   evictor.Evictor
	Lifetimer lifetimer.Lifetimer
}

// Snapshot holds cumulative counters and point-in-time gauges of every subsystem.
type Snapshot struct {
	Store     model.Stats
	Scheduler scheduler.Stats
	Prefetch  prefetch.Stats
	Quality   model.Quality

	SoftScans        int64
	SoftHits         int64
	SoftEvictedItems int64
	SoftEvictedBytes int64

	SweepRemoved int64
	SweepErrors  int64
	SweepScans   int64
	SweepHits    int64
	SweepMisses  int64
}

type Sampler struct {
	src Sources
}

func NewSampler(src Sources) *Sampler {
	if src.Evictor == nil {
		src.Evictor = evictor.NoOpEvictor{}
	}
	if src.Lifetimer == nil {
		src.Lifetimer = lifetimer.NoOpLifetimer{}
	}
	return &Sampler{src: src}
}

func (s *Sampler) Snapshot() Snapshot {
	var snap Snapshot
	if s.src.Store != nil {
		snap.Store = s.src.Store()
	}
	if s.src.Scheduler != nil {
		snap.Scheduler = s.src.Scheduler()
	}
	if s.src.Prefetch != nil {
		snap.Prefetch = s.src.Prefetch()
	}
	if s.src.Quality != nil {
		snap.Quality = s.src.Quality()
	}
	snap.SoftScans, snap.SoftHits, snap.SoftEvictedItems, snap.SoftEvictedBytes = s.src.Evictor.EvictorMetrics()
	snap.SweepRemoved, snap.SweepErrors, snap.SweepScans, snap.SweepHits, snap.SweepMisses = s.src.Lifetimer.LifetimerMetrics()
	return snap
}

// deltaSnapshot converts cumulative counters to per-interval deltas. Gauges are taken from cur.
// If counters reset (cur < prev), it treats cur as the delta.
func deltaSnapshot(prev, cur Snapshot) Snapshot {
	d := cur

	d.Store.Hits = delta(prev.Store.Hits, cur.Store.Hits)
	d.Store.Misses = delta(prev.Store.Misses, cur.Store.Misses)
	d.Store.Expirations = delta(prev.Store.Expirations, cur.Store.Expirations)
	d.Store.Memory.Evictions = delta(prev.Store.Memory.Evictions, cur.Store.Memory.Evictions)
	d.Store.Disk.Evictions = delta(prev.Store.Disk.Evictions, cur.Store.Disk.Evictions)

	d.Scheduler.Enqueued = delta(prev.Scheduler.Enqueued, cur.Scheduler.Enqueued)
	d.Scheduler.Deduped = delta(prev.Scheduler.Deduped, cur.Scheduler.Deduped)
	d.Scheduler.Skipped = delta(prev.Scheduler.Skipped, cur.Scheduler.Skipped)
	d.Scheduler.Completed = delta(prev.Scheduler.Completed, cur.Scheduler.Completed)
	d.Scheduler.Failed = delta(prev.Scheduler.Failed, cur.Scheduler.Failed)
	d.Scheduler.Canceled = delta(prev.Scheduler.Canceled, cur.Scheduler.Canceled)

	d.Prefetch.Enqueued = delta(prev.Prefetch.Enqueued, cur.Prefetch.Enqueued)
	d.Prefetch.Promoted = delta(prev.Prefetch.Promoted, cur.Prefetch.Promoted)
	d.Prefetch.Suppressed = delta(prev.Prefetch.Suppressed, cur.Prefetch.Suppressed)
	d.Prefetch.Completed = delta(prev.Prefetch.Completed, cur.Prefetch.Completed)
	d.Prefetch.FailedKeys = delta(prev.Prefetch.FailedKeys, cur.Prefetch.FailedKeys)

	d.SoftScans = delta(prev.SoftScans, cur.SoftScans)
	d.SoftHits = delta(prev.SoftHits, cur.SoftHits)
	d.SoftEvictedItems = delta(prev.SoftEvictedItems, cur.SoftEvictedItems)
	d.SoftEvictedBytes = delta(prev.SoftEvictedBytes, cur.SoftEvictedBytes)

	d.SweepRemoved = delta(prev.SweepRemoved, cur.SweepRemoved)
	d.SweepErrors = delta(prev.SweepErrors, cur.SweepErrors)
	d.SweepScans = delta(prev.SweepScans, cur.SweepScans)
	d.SweepHits = delta(prev.SweepHits, cur.SweepHits)
	d.SweepMisses = delta(prev.SweepMisses, cur.SweepMisses)
	return d
}

func delta(prev, cur int64) int64 {
	if cur >= prev {
		return cur - prev
	}
	return cur
}
