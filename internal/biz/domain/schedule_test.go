package domain

import (
	"errors"
	"testing"
	"time"
)

func TestNextFireTime_RollsToTomorrow(t *testing.T) {
	now := time.Date(2024, 5, 10, 10, 0, 0, 0, time.UTC)

	got := NextFireTime(now, 9, 30)
	want := time.Date(2024, 5, 11, 9, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestNextFireTime_SameDay(t *testing.T) {
	now := time.Date(2024, 5, 10, 10, 0, 0, 0, time.UTC)

	got := NextFireTime(now, 11, 0)
	want := time.Date(2024, 5, 10, 11, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestNextFireTime_EqualToNowRolls(t *testing.T) {
	now := time.Date(2024, 5, 10, 10, 0, 0, 0, time.UTC)

	got := NextFireTime(now, 10, 0)
	if got.Day() != 11 {
		t.Errorf("Expected fire time on the next day, got %v", got)
	}
}

func TestNextFireTime_MonthBoundary(t *testing.T) {
	now := time.Date(2024, 1, 31, 23, 0, 0, 0, time.UTC)

	got := NextFireTime(now, 8, 0)
	want := time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestParseTimeOfDay(t *testing.T) {
	tests := []struct {
		in      string
		hour    int
		minute  int
		wantErr bool
	}{
		{"09:30", 9, 30, false},
		{"9:05", 9, 5, false},
		{"23:59", 23, 59, false},
		{"00:00", 0, 0, false},
		{"24:00", 0, 0, true},
		{"12:60", 0, 0, true},
		{"noon", 0, 0, true},
		{"12:5", 0, 0, true},
		{"", 0, 0, true},
	}

	for _, tt := range tests {
		h, m, err := ParseTimeOfDay(tt.in)
		if tt.wantErr {
			var fe *SchedulingFormatError
			if !errors.As(err, &fe) {
				t.Errorf("ParseTimeOfDay(%q): expected SchedulingFormatError, got %v", tt.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseTimeOfDay(%q): unexpected error %v", tt.in, err)
			continue
		}
		if h != tt.hour || m != tt.minute {
			t.Errorf("ParseTimeOfDay(%q): expected %d:%d, got %d:%d", tt.in, tt.hour, tt.minute, h, m)
		}
	}
}

func TestScheduledEntry_IsDue(t *testing.T) {
	now := time.Date(2024, 5, 10, 10, 0, 0, 0, time.UTC)
	e := &ScheduledEntry{FireAt: now}

	if !e.IsDue(now) {
		t.Error("Expected entry to be due at its fire time")
	}
	if e.IsDue(now.Add(-time.Second)) {
		t.Error("Expected entry not to be due before its fire time")
	}
}
