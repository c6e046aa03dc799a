package model

// TierStats is a point-in-time view of one tier.
type TierStats struct {
	Bytes     int64
	Entries   int64
	Evictions int64
}

// Stats is a read-only projection over the live cache state.
type Stats struct {
	Memory      TierStats
	Disk        TierStats
	Hits        int64
	Misses      int64
	Expirations int64
}

func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}
