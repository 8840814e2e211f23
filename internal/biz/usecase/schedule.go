package usecase

import (
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hobojuki/feishu-hobojuki/internal/biz/domain"
)

var scheduleArgsRe = regexp.MustCompile(`(?s)^(\S+)\s+(.+)$`)

// ParseScheduleArgs splits "HH:MM <payload>" into its parts
func ParseScheduleArgs(args string) (timeOfDay, payload string, err error) {
	args = strings.TrimSpace(args)
	m := scheduleArgsRe.FindStringSubmatch(args)
	if m == nil {
		return "", "", &domain.SchedulingFormatError{Input: args, Reason: "expected HH:MM <message>"}
	}
	if _, _, err := domain.ParseTimeOfDay(m[1]); err != nil {
		return "", "", err
	}
	return m[1], strings.TrimSpace(m[2]), nil
}

// ScheduleQueue holds deferred replies for the lifetime of the process.
// Safe for concurrent use by inbound handlers and the delivery ticker.
type ScheduleQueue struct {
	mu      sync.Mutex
	entries map[string]*domain.ScheduledEntry
	newID   func() string
}

// NewScheduleQueue creates an empty queue
func NewScheduleQueue() *ScheduleQueue {
	return &ScheduleQueue{
		entries: make(map[string]*domain.ScheduledEntry),
		newID:   uuid.NewString,
	}
}

// Schedule queues payload for the next occurrence of timeOfDay after now
func (q *ScheduleQueue) Schedule(timeOfDay, payload string, target domain.ReplyTarget, now time.Time) (domain.ScheduledEntry, error) {
	hour, minute, err := domain.ParseTimeOfDay(timeOfDay)
	if err != nil {
		return domain.ScheduledEntry{}, err
	}
	if strings.TrimSpace(payload) == "" {
		return domain.ScheduledEntry{}, &domain.SchedulingFormatError{Input: timeOfDay, Reason: "empty message"}
	}

	entry := &domain.ScheduledEntry{
		ID:        q.newID(),
		FireAt:    domain.NextFireTime(now, hour, minute),
		Payload:   payload,
		Target:    target,
		CreatedAt: now,
	}

	q.mu.Lock()
	q.entries[entry.ID] = entry
	q.mu.Unlock()

	return *entry, nil
}

// DrainDue removes and returns every entry due at now, oldest fire time first.
// Each entry is returned by exactly one call.
func (q *ScheduleQueue) DrainDue(now time.Time) []domain.ScheduledEntry {
	q.mu.Lock()
	var due []domain.ScheduledEntry
	for id, e := range q.entries {
		if e.IsDue(now) {
			due = append(due, *e)
			delete(q.entries, id)
		}
	}
	q.mu.Unlock()

	sortEntries(due)
	return due
}

// Pending returns a snapshot of queued entries, oldest fire time first
func (q *ScheduleQueue) Pending() []domain.ScheduledEntry {
	q.mu.Lock()
	result := make([]domain.ScheduledEntry, 0, len(q.entries))
	for _, e := range q.entries {
		result = append(result, *e)
	}
	q.mu.Unlock()

	sortEntries(result)
	return result
}

// Cancel removes an entry; returns false if it was not queued
func (q *ScheduleQueue) Cancel(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.entries[id]; !ok {
		return false
	}
	delete(q.entries, id)
	return true
}

// Len returns the number of queued entries
func (q *ScheduleQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

func sortEntries(entries []domain.ScheduledEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].FireAt.Equal(entries[j].FireAt) {
			return entries[i].CreatedAt.Before(entries[j].CreatedAt)
		}
		return entries[i].FireAt.Before(entries[j].FireAt)
	})
}
