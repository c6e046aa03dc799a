package evictor

import "time"

// NoOpEvictor is used when the eviction section is not configured.
// The disk tier is then trimmed only when an insertion crosses the hard limit.
type NoOpEvictor struct{}

// ForceCall does nothing and returns nil immediately.
func (NoOpEvictor) ForceCall(time.Duration) error {
	return nil
}

// EvictorMetrics always returns zero values.
func (NoOpEvictor) EvictorMetrics() (scans, hits, evictedItems, evictedBytes int64) {
	return 0, 0, 0, 0
}

// Close does nothing and returns nil.
func (NoOpEvictor) Close() error {
	return nil
}
