package config

import "time"

type NetworkCfg struct {
	// SignalTimeout bounds how long the monitor waits for the first platform signal
	// before falling back to the most conservative online level.
	SignalTimeout time.Duration `yaml:"signal_timeout"`

	// Probe configures an HTTP throughput probe used as a connectivity signal
	// when the platform does not provide one. If nil, no probe is started.
	Probe *ProbeCfg `yaml:"probe"`
}

type ProbeCfg struct {
	// URL is fetched on every probe; it should point to a small static resource.
	URL string `yaml:"url"`
	// Interval between two probes.
	Interval time.Duration `yaml:"interval"`
	// Timeout of a single probe request.
	Timeout time.Duration `yaml:"timeout"`
	// SlowBytesPerSec is the throughput below which the link is classified as slow cellular.
	SlowBytesPerSec int64 `yaml:"slow_bps"`
	// FastBytesPerSec is the throughput at or above which the link is classified as wifi.
	// Anything in between is fast cellular.
	FastBytesPerSec int64 `yaml:"fast_bps"`
}

func (cfg *ProbeCfg) Enabled() bool {
	return cfg != nil && cfg.URL != ""
}

func (cfg *NetworkCfg) adjust() {
	if cfg.SignalTimeout <= 0 {
		cfg.SignalTimeout = 5 * time.Second
	}
	if p := cfg.Probe; p != nil {
		if p.Interval <= 0 {
			p.Interval = 30 * time.Second
		}
		if p.Timeout <= 0 {
			p.Timeout = 10 * time.Second
		}
		if p.SlowBytesPerSec <= 0 {
			p.SlowBytesPerSec = 100 << 10
		}
		if p.FastBytesPerSec <= p.SlowBytesPerSec {
			p.FastBytesPerSec = p.SlowBytesPerSec * 10
		}
	}
}
