package lifetimer

import "time"

// NoOpLifetimer is used when the lifetime section is not configured.
// Expired entries are then reclaimed only lazily on lookup and at startup.
type NoOpLifetimer struct{}

// ForceCall does nothing and returns nil immediately.
func (NoOpLifetimer) ForceCall(time.Duration) error {
	return nil
}

// LifetimerMetrics always returns zero values.
func (NoOpLifetimer) LifetimerMetrics() (removed, errors, scans, hits, misses int64) {
	return 0, 0, 0, 0, 0
}

// Close does nothing and returns nil.
func (NoOpLifetimer) Close() error {
	return nil
}
