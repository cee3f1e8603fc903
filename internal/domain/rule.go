package domain

import (
	"strings"
	"time"
)

// TimeWindowRule schedules one post per applicable day, generated during the
// buffer window that ends at StartHour.
type TimeWindowRule struct {
	ID          string
	Name        string
	StartHour   int
	BufferHours int
	// Days lists applicable weekdays; empty means every day.
	Days      []time.Weekday
	TimeSlot  string
	Mood      string
	Tags      []string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Applies reports whether the rule runs on day.
func (r TimeWindowRule) Applies(day time.Weekday) bool {
	if len(r.Days) == 0 {
		return true
	}
	for _, d := range r.Days {
		if d == day {
			return true
		}
	}
	return false
}

// Target returns the publish time on the calendar day of now, in now's location.
func (r TimeWindowRule) Target(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d, r.StartHour, 0, 0, 0, now.Location())
}

// InWindow reports whether now lies in [StartHour-BufferHours, StartHour) on an
// applicable day. now must already be in the brand's timezone.
func (r TimeWindowRule) InWindow(now time.Time) bool {
	if !r.Applies(now.Weekday()) {
		return false
	}
	target := r.Target(now)
	open := target.Add(-time.Duration(r.BufferHours) * time.Hour)
	return !now.Before(open) && now.Before(target)
}

// ParseWeekday accepts english names or three-letter abbreviations.
func ParseWeekday(s string) (time.Weekday, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if s == name || s == name[:3] {
			return d, true
		}
	}
	return 0, false
}
