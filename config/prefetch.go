package config

import "time"

type PrefetchCfg struct {
	// LookAhead is the number of sections after the viewed one warmed at medium priority.
	LookAhead int `yaml:"look_ahead"`

	// StaleAfter is the staleness window: a section prefetched more recently is not
	// queued again, and a section prefetched earlier is re-queued by background refresh.
	StaleAfter time.Duration `yaml:"stale_after"`

	// RefreshInterval defines how often background refresh runs over the last known sections.
	// Zero means the default, a negative value disables the periodic run;
	// BackgroundRefresh can still be triggered explicitly.
	RefreshInterval time.Duration `yaml:"refresh_interval"`

	// RefreshRate limits how many sections per second background refresh may queue.
	RefreshRate int `yaml:"refresh_rate"`

	// MaxPredicted caps the number of sections queued by one predictive pass.
	MaxPredicted int `yaml:"max_predicted"`

	// MaxActiveTasks caps the number of sections being warmed at the same time.
	MaxActiveTasks int `yaml:"max_active_tasks"`
}

func (cfg *PrefetchCfg) adjust() {
	if cfg.LookAhead <= 0 {
		cfg.LookAhead = 2
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 30 * time.Minute
	}
	if cfg.RefreshInterval == 0 {
		cfg.RefreshInterval = 5 * time.Minute
	}
	if cfg.RefreshRate <= 0 {
		cfg.RefreshRate = 10
	}
	if cfg.MaxPredicted <= 0 {
		cfg.MaxPredicted = 3
	}
	if cfg.MaxActiveTasks <= 0 {
		cfg.MaxActiveTasks = 2
	}
}
