package source

import (
	"time"
)

// CalendarHour pairs a unix timestamp with its hour-aligned datetime.
type CalendarHour struct {
	Timestamp int64
	Datetime  time.Time
}

// ReferenceCalendar generates every hour boundary from origin through now
// (floored to the hour) minus the safety margin, ascending. The margin keeps
// hours the upstream may not have published yet out of the sync window.
func ReferenceCalendar(origin, now time.Time, margin time.Duration) []CalendarHour {
	end := now.UTC().Truncate(time.Hour).Add(-margin)
	start := origin.UTC()

	var hours []CalendarHour
	for t := start; !t.After(end); t = t.Add(time.Hour) {
		hours = append(hours, CalendarHour{Timestamp: t.Unix(), Datetime: t})
	}
	return hours
}
