package reminder

import (
	"math"
	"time"

	"taskflow/component"
)

// Classify maps the hours left before a deadline to an urgency tier.
func Classify(hoursLeft int) component.Severity {
	switch {
	case hoursLeft <= 2:
		return component.Error
	case hoursLeft <= 12:
		return component.Warning
	default:
		return component.Info
	}
}

// HoursLeft rounds the time until due to the nearest hour, halves up.
func HoursLeft(due, now time.Time) int {
	return int(math.Floor(due.Sub(now).Hours() + 0.5))
}

// DaysLeft is the number of started 24h periods until due.
func DaysLeft(due, now time.Time) int {
	return int(math.Ceil(due.Sub(now).Hours() / 24))
}
