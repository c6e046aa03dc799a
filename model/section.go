package model

// Section is a unit of content whose images are warmed together.
type Section struct {
	ID        string
	ImageKeys []string
}

// UserContext is a lightweight behavior context used by predictive prefetch.
type UserContext struct {
	// RecentSections holds recently viewed section ids, most recent last.
	RecentSections []string
	// Preferences holds declared interests matched against section ids.
	Preferences []string
	// Transitions maps a section id to sections commonly visited right after it.
	Transitions map[string][]string
}
