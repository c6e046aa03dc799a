package config

import "time"

const (
	defaultSweepInterval = 10 * time.Minute
)

type LifetimeCfg struct {
	// DefaultTTL is applied to entries stored without an explicit TTL.
	// Zero means such entries never expire.
	// Example: "168h".
	DefaultTTL time.Duration `yaml:"default_ttl"`

	// SweepInterval defines how often expired entries are reclaimed in background
	// in addition to the lazy check on lookup and the sweep at startup.
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

func (cfg *LifetimeCfg) Enabled() bool {
	return cfg != nil
}
