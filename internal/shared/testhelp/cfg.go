// Package testhelp holds configuration and logger fixtures shared by package tests.
package testhelp

import (
	"time"

	"github.com/Borislavv/go-ash-imgcache/config"
)

// Cfg returns a small configuration rooted at dir with every optional worker disabled
// and a process-local index.
func Cfg(dir string) *config.Cache {
	c := &config.Cache{
		Memory: config.MemoryCfg{MaxBytes: 1 << 20, MaxEntries: 64},
		Disk:   config.DiskCfg{Dir: dir, MaxBytes: 4 << 20},
		Scheduler: config.SchedulerCfg{
			FetchTimeout: 5 * time.Second,
			MaxConcurrency: config.ConcurrencyCfg{
				SlowCellular: 1,
				FastCellular: 2,
				Wifi:         4,
			},
		},
		Network: config.NetworkCfg{SignalTimeout: time.Second},
		Index:   config.IndexCfg{Mode: config.IndexModeMemory},
	}
	c.AdjustConfig()
	return c
}

// FileIndexCfg is Cfg with the journal index inside dir.
func FileIndexCfg(dir string) *config.Cache {
	c := Cfg(dir)
	c.Index.Mode = config.IndexModeFile
	return c
}

// LifetimeCfg is Cfg with a default TTL and a fast sweep.
func LifetimeCfg(dir string, ttl time.Duration) *config.Cache {
	c := Cfg(dir)
	c.Lifetime = &config.LifetimeCfg{DefaultTTL: ttl, SweepInterval: 20 * time.Millisecond}
	c.AdjustConfig()
	return c
}

// EvictionCfg is Cfg with a fast soft evictor.
func EvictionCfg(dir string, diskMaxBytes int64, coefficient float64) *config.Cache {
	c := Cfg(dir)
	c.Disk.MaxBytes = diskMaxBytes
	c.Eviction = &config.EvictionCfg{SoftLimitCoefficient: coefficient, CallsPerSec: 100}
	c.AdjustConfig()
	return c
}
