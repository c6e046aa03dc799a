package config

const (
	defaultMemoryMaxBytes   int64 = 32 << 20
	defaultMemoryMaxEntries       = 256
	defaultDiskMaxBytes     int64 = 256 << 20
	defaultDiskDir                = "./imgcache"
)

// MemoryCfg bounds the in-process tier. Both limits are enforced after every insertion.
type MemoryCfg struct {
	// MaxBytes is the total payload size the memory tier may account for.
	MaxBytes int64 `yaml:"max_bytes"`
	// MaxEntries is the maximum number of entries held by the memory tier.
	MaxEntries int `yaml:"max_entries"`
}

// DiskCfg configures the persistent tier.
type DiskCfg struct {
	// Dir is the cache directory. It is created on startup and recreated empty by ClearAll.
	Dir string `yaml:"dir"`
	// MaxBytes is the total size of materialized files the disk tier may hold.
	MaxBytes int64 `yaml:"max_bytes"`
}
