package config

const defaultSoftLimitCoefficient = 0.9

type EvictionCfg struct {
	// SoftLimitCoefficient defines the soft disk usage threshold as a fraction of Disk.MaxBytes.
	// When the disk tier exceeds this limit, the background evictor trims it by LRU.
	//
	// Example:
	//   SoftLimitCoefficient: 0.90 // start evicting after reaching 90% of Disk.MaxBytes
	SoftLimitCoefficient float64 `yaml:"soft_limit_coefficient"`

	// SoftLimitBytes is derived from Disk.MaxBytes and SoftLimitCoefficient.
	// It is not read from YAML.
	SoftLimitBytes int64 // virtual: computed during init (bytes)

	// CallsPerSec defines how many soft-limit checks the evictor performs per second.
	CallsPerSec int64 `yaml:"calls_per_sec"`
}

func (cfg *EvictionCfg) Enabled() bool {
	return cfg != nil
}
