package domain

import (
	"regexp"
	"strconv"
	"time"
)

// ScheduledEntry is a deferred reply waiting for its fire time (immutable)
type ScheduledEntry struct {
	ID        string      `json:"id"`
	FireAt    time.Time   `json:"fire_at"`
	Payload   string      `json:"payload"`
	Target    ReplyTarget `json:"target"`
	CreatedAt time.Time   `json:"created_at"`
}

// IsDue checks if the entry should fire at now
func (e *ScheduledEntry) IsDue(now time.Time) bool {
	return !e.FireAt.After(now)
}

var timeOfDayRe = regexp.MustCompile(`^([0-9]{1,2}):([0-9]{2})$`)

// ParseTimeOfDay parses "HH:MM" (00-23, 00-59)
func ParseTimeOfDay(s string) (hour, minute int, err error) {
	m := timeOfDayRe.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, &SchedulingFormatError{Input: s, Reason: "expected HH:MM"}
	}
	hour, _ = strconv.Atoi(m[1])
	minute, _ = strconv.Atoi(m[2])
	if hour > 23 {
		return 0, 0, &SchedulingFormatError{Input: s, Reason: "hour out of range"}
	}
	if minute > 59 {
		return 0, 0, &SchedulingFormatError{Input: s, Reason: "minute out of range"}
	}
	return hour, minute, nil
}

// NextFireTime returns today's hour:minute in now's location, or tomorrow's
// when today's is not strictly after now.
func NextFireTime(now time.Time, hour, minute int) time.Time {
	fire := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !fire.After(now) {
		fire = time.Date(now.Year(), now.Month(), now.Day()+1, hour, minute, 0, 0, now.Location())
	}
	return fire
}
