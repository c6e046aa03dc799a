package model

import "time"

// TierHint tells the store where a freshly fetched entry should live.
type TierHint int8

const (
	// TierDisk registers the entry in the persistent tier only.
	TierDisk TierHint = iota
	// TierMemory additionally promotes the entry into the memory tier.
	TierMemory
)

// Entry is the metadata of one cached resource.
type Entry struct {
	Key            string        `msgpack:"k"`
	LocalPath      string        `msgpack:"p,omitempty"`
	SizeBytes      int64         `msgpack:"s"`
	CreatedAt      time.Time     `msgpack:"c"`
	LastAccessedAt time.Time     `msgpack:"a"`
	HitCount       uint64        `msgpack:"h"`
	TTL            time.Duration `msgpack:"t,omitempty"`
	// Seq is the insertion sequence, used as the last LRU tie-break.
	Seq uint64 `msgpack:"q"`
}

// IsExpired reports whether more than TTL has elapsed since creation. Entries without TTL never expire.
func (e *Entry) IsExpired(now time.Time) bool {
	if e == nil || e.TTL <= 0 {
		return false
	}
	return now.Sub(e.CreatedAt) > e.TTL
}

// Path returns the local path when the entry is materialized, otherwise its key.
func (e *Entry) Path() string {
	if e.LocalPath != "" {
		return e.LocalPath
	}
	return e.Key
}

// OlderThan reports whether e should be evicted before other.
func (e *Entry) OlderThan(other *Entry) bool {
	if !e.LastAccessedAt.Equal(other.LastAccessedAt) {
		return e.LastAccessedAt.Before(other.LastAccessedAt)
	}
	if !e.CreatedAt.Equal(other.CreatedAt) {
		return e.CreatedAt.Before(other.CreatedAt)
	}
	return e.Seq < other.Seq
}
