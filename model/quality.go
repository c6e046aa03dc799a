package model

import "fmt"

// Quality is an ordered connectivity class. Offline is the lowest level.
type Quality int8

const (
	QualityOffline Quality = iota
	QualitySlowCellular
	QualityFastCellular
	QualityWifi
)

// QualityConservative is used whenever the platform signal is unavailable.
const QualityConservative = QualitySlowCellular

func (q Quality) String() string {
	switch q {
	case QualityOffline:
		return "offline"
	case QualitySlowCellular:
		return "slow_cellular"
	case QualityFastCellular:
		return "fast_cellular"
	case QualityWifi:
		return "wifi"
	default:
		return fmt.Sprintf("quality(%d)", int8(q))
	}
}

func (q Quality) IsOnline() bool { return q > QualityOffline }

func ParseQuality(s string) (Quality, error) {
	switch s {
	case "offline":
		return QualityOffline, nil
	case "slow_cellular", "2g", "3g":
		return QualitySlowCellular, nil
	case "fast_cellular", "4g", "5g":
		return QualityFastCellular, nil
	case "wifi", "ethernet":
		return QualityWifi, nil
	}
	return QualityConservative, fmt.Errorf("unknown network quality %q", s)
}
