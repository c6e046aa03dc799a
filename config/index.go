package config

import "time"

type IndexMode string

const (
	// IndexModeFile keeps the index in an append-only journal inside Disk.Dir.
	IndexModeFile IndexMode = "file"
	// IndexModeRedis keeps the index in a redis hash.
	IndexModeRedis IndexMode = "redis"
	// IndexModeMemory keeps the index in process memory; it does not survive restarts.
	IndexModeMemory IndexMode = "memory"
)

type IndexCfg struct {
	// Mode selects the index backend. Default is "file".
	Mode IndexMode `yaml:"mode"`

	// Name defines the base name of the journal and snapshot files.
	Name string `yaml:"name"`

	// Gzip enables gzip compression of compacted snapshots.
	Gzip bool `yaml:"gzip"`

	// Redis configures the redis backend. Required when Mode is "redis".
	Redis *RedisCfg `yaml:"redis"`
}

type RedisCfg struct {
	Addr        string        `yaml:"addr"`
	Password    string        `yaml:"password"`
	DB          int           `yaml:"db"`
	Prefix      string        `yaml:"prefix"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

func (cfg *IndexCfg) adjust() {
	if cfg.Mode == "" {
		cfg.Mode = IndexModeFile
	}
	if cfg.Name == "" {
		cfg.Name = "index"
	}
	if r := cfg.Redis; r != nil {
		if r.Prefix == "" {
			r.Prefix = "imgcache"
		}
		if r.DialTimeout <= 0 {
			r.DialTimeout = 5 * time.Second
		}
	}
}
