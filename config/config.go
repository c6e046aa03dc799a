package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Cache groups configuration of all image cache subsystems.
// Optional components are disabled by setting their section to nil.
type Cache struct {
	Memory    MemoryCfg    `yaml:"memory"`
	Disk      DiskCfg      `yaml:"disk"`
	Scheduler SchedulerCfg `yaml:"scheduler"`
	Network   NetworkCfg   `yaml:"network"`
	Prefetch  PrefetchCfg  `yaml:"prefetch"`
	Index     IndexCfg     `yaml:"index"`

	// Lifetime configures TTL defaults and the periodic expiry sweep.
	// If nil, entries never expire unless a TTL is passed explicitly and expiry is
	// only detected lazily on lookup and at startup.
	Lifetime *LifetimeCfg `yaml:"lifetime"`

	// Eviction configures the background soft-limit evictor of the disk tier.
	// Hard limits are always enforced synchronously on insertion.
	// If nil, the disk tier is trimmed only when it crosses Disk.MaxBytes.
	Eviction *EvictionCfg `yaml:"eviction"`

	// Telemetry configures periodic stat logs and prometheus collectors.
	// If nil, both are disabled.
	Telemetry *TelemetryCfg `yaml:"telemetry"`
}

// Default returns a configuration with every section populated by its defaults.
func Default() *Cache {
	cfg := &Cache{
		Lifetime:  &LifetimeCfg{},
		Eviction:  &EvictionCfg{},
		Telemetry: &TelemetryCfg{LogsEnabled: true, MetricsEnabled: true},
	}
	cfg.AdjustConfig()
	return cfg
}

// AdjustConfig fills zero values with defaults and computes derived fields.
func (cfg *Cache) AdjustConfig() {
	if cfg.Memory.MaxBytes <= 0 {
		cfg.Memory.MaxBytes = defaultMemoryMaxBytes
	}
	if cfg.Memory.MaxEntries <= 0 {
		cfg.Memory.MaxEntries = defaultMemoryMaxEntries
	}
	if cfg.Disk.Dir == "" {
		cfg.Disk.Dir = defaultDiskDir
	}
	if cfg.Disk.MaxBytes <= 0 {
		cfg.Disk.MaxBytes = defaultDiskMaxBytes
	}

	cfg.Scheduler.adjust()
	cfg.Network.adjust()
	cfg.Prefetch.adjust()
	cfg.Index.adjust()

	if cfg.Lifetime.Enabled() {
		if cfg.Lifetime.SweepInterval <= 0 {
			cfg.Lifetime.SweepInterval = defaultSweepInterval
		}
	}

	if cfg.Eviction.Enabled() {
		if cfg.Eviction.SoftLimitCoefficient <= 0 || cfg.Eviction.SoftLimitCoefficient > 1 {
			cfg.Eviction.SoftLimitCoefficient = defaultSoftLimitCoefficient
		}
		if cfg.Eviction.CallsPerSec <= 0 {
			cfg.Eviction.CallsPerSec = 1
		}
		cfg.Eviction.SoftLimitBytes = int64(float64(cfg.Disk.MaxBytes) * cfg.Eviction.SoftLimitCoefficient)
	}

	if cfg.Telemetry.Enabled() {
		if cfg.Telemetry.Interval <= 0 {
			cfg.Telemetry.Interval = 5 * time.Second
		}
		if cfg.Telemetry.Namespace == "" {
			cfg.Telemetry.Namespace = "imgcache"
		}
	}
}

// DefaultTTL returns the TTL applied to entries stored without an explicit one.
func (cfg *Cache) DefaultTTL() time.Duration {
	if cfg.Lifetime.Enabled() {
		return cfg.Lifetime.DefaultTTL
	}
	return 0
}

func LoadConfig(path string) (*Cache, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("stat config path: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config yaml file %s: %w", path, err)
	}

	var cfg *Cache
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml from %s: %w", path, err)
	}
	if cfg == nil {
		cfg = &Cache{}
	}
	cfg.AdjustConfig()

	return cfg, nil
}
