package source

import (
	"testing"
	"time"
)

func TestReferenceCalendar(t *testing.T) {
	origin := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	now := time.Date(2022, 1, 2, 3, 30, 0, 0, time.UTC)

	hours := ReferenceCalendar(origin, now, 24*time.Hour)

	// now floors to 03:00, minus the 24h margin: last hour is Jan 1 03:00.
	if len(hours) != 4 {
		t.Fatalf("expected 4 hours, got %d", len(hours))
	}
	if !hours[0].Datetime.Equal(origin) {
		t.Fatalf("calendar should start at origin, got %v", hours[0].Datetime)
	}
	if !hours[3].Datetime.Equal(origin.Add(3 * time.Hour)) {
		t.Fatalf("unexpected last hour: %v", hours[3].Datetime)
	}

	for i := 1; i < len(hours); i++ {
		if got := hours[i].Datetime.Sub(hours[i-1].Datetime); got != time.Hour {
			t.Fatalf("calendar must be gap-free hourly, step %d was %v", i, got)
		}
		if hours[i].Timestamp != hours[i].Datetime.Unix() {
			t.Fatalf("timestamp must match datetime at step %d", i)
		}
	}
}

func TestReferenceCalendarEmptyWhenOriginTooRecent(t *testing.T) {
	now := time.Date(2022, 1, 2, 0, 0, 0, 0, time.UTC)
	origin := now // inside the margin window

	if hours := ReferenceCalendar(origin, now, 24*time.Hour); len(hours) != 0 {
		t.Fatalf("expected empty calendar, got %d hours", len(hours))
	}
}
