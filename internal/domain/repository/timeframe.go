package repository

// Interval is the bar resolution of a table, e.g. "1d".
type Interval string

const (
	Interval1h  Interval = "1h"
	Interval1d  Interval = "1d"
	Interval1wk Interval = "1wk"
	Interval1mo Interval = "1mo"
)

// IsValidInterval returns true if iv is a supported bar interval.
func IsValidInterval(iv Interval) bool {
	switch iv {
	case Interval1h, Interval1d, Interval1wk, Interval1mo:
		return true
	default:
		return false
	}
}

// DefaultInterval returns the default interval.
func DefaultInterval() Interval { return Interval1d }

// NormalizeInterval converts a raw string to a valid interval (or default).
func NormalizeInterval(s string) Interval {
	if s == "" {
		return DefaultInterval()
	}
	iv := Interval(s)
	if IsValidInterval(iv) {
		return iv
	}
	return DefaultInterval()
}

// BarsPerYear returns the approximate number of bars per year.
func BarsPerYear(iv Interval) float64 {
	switch iv {
	case Interval1h:
		return 252 * 6.5
	case Interval1wk:
		return 52
	case Interval1mo:
		return 12
	default:
		return 252
	}
}
