package config

import "time"

type TelemetryCfg struct {
	// LogsEnabled turns on periodic stat logs.
	LogsEnabled bool `yaml:"logs_enabled"`
	// Interval between two stat log lines.
	Interval time.Duration `yaml:"interval"`
	// MetricsEnabled turns on prometheus collectors.
	MetricsEnabled bool `yaml:"metrics_enabled"`
	// Namespace prefixes every metric name.
	Namespace string `yaml:"namespace"`
}

func (cfg *TelemetryCfg) Enabled() bool {
	return cfg != nil
}
