package model

import "fmt"

// Priority orders fetch intents. Higher values are served first.
type Priority int8

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
	PriorityCritical
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return fmt.Sprintf("priority(%d)", int8(p))
	}
}

func ParsePriority(s string) (Priority, error) {
	switch s {
	case "low", "LOW":
		return PriorityLow, nil
	case "medium", "MEDIUM":
		return PriorityMedium, nil
	case "high", "HIGH":
		return PriorityHigh, nil
	case "critical", "CRITICAL":
		return PriorityCritical, nil
	}
	return PriorityLow, fmt.Errorf("unknown priority %q", s)
}
