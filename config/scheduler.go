package config

import (
	"time"

	"github.com/Borislavv/go-ash-imgcache/model"
)

const (
	defaultFetchTimeout = 30 * time.Second
	defaultMaxBodyBytes = 20 << 20
)

type SchedulerCfg struct {
	// FetchTimeout is the fixed upper bound of a single fetch. A fetch that runs
	// longer is treated as failed and its slot is released.
	FetchTimeout time.Duration `yaml:"fetch_timeout"`

	// MaxBodyBytes caps the size of a single downloaded resource.
	MaxBodyBytes int64 `yaml:"max_body_bytes"`

	// MaxConcurrency maps a network quality level to the number of parallel fetches.
	MaxConcurrency ConcurrencyCfg `yaml:"max_concurrency"`
}

// ConcurrencyCfg holds the per-quality fetch limits. Offline is always treated as zero.
type ConcurrencyCfg struct {
	Offline      int `yaml:"offline"`
	SlowCellular int `yaml:"slow_cellular"`
	FastCellular int `yaml:"fast_cellular"`
	Wifi         int `yaml:"wifi"`
}

// For returns the concurrency limit for the given quality.
func (c ConcurrencyCfg) For(q model.Quality) int {
	switch q {
	case model.QualitySlowCellular:
		return c.SlowCellular
	case model.QualityFastCellular:
		return c.FastCellular
	case model.QualityWifi:
		return c.Wifi
	default:
		return 0
	}
}

func (cfg *SchedulerCfg) adjust() {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = defaultFetchTimeout
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}

	c := &cfg.MaxConcurrency
	c.Offline = 0
	if c.Wifi <= 0 {
		c.Wifi = 8
	}
	// each level below is roughly a half of the previous one
	if c.FastCellular <= 0 {
		c.FastCellular = max(c.Wifi/2, 1)
	}
	if c.SlowCellular <= 0 {
		c.SlowCellular = max(c.FastCellular/2, 1)
	}
}
