package history

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Entry is one call in the history, newest first. ReleasedAt stays zero
// while the call is still up.
type Entry struct {
	ID              string    `json:"id"`
	Direction       string    `json:"direction"`
	Number          string    `json:"number"`
	DisplayName     string    `json:"display_name"`
	StartedAt       time.Time `json:"started_at"`
	ReleasedAt      time.Time `json:"released_at,omitzero"`
	DurationSeconds int64     `json:"duration_seconds"`
}

// Log keeps in-memory call history for the lifetime of the process.
type Log struct {
	mu      sync.Mutex
	entries []Entry
	limit   int
}

// NewLog caps the history at limit entries; zero means unbounded.
func NewLog(limit int) *Log {
	return &Log{limit: limit}
}

// Append records a new call at the head of the history and returns its id.
func (l *Log) Append(direction, number, displayName string, startedAt time.Time) string {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := Entry{
		ID:          uuid.NewString(),
		Direction:   direction,
		Number:      number,
		DisplayName: displayName,
		StartedAt:   startedAt,
	}
	l.entries = append([]Entry{entry}, l.entries...)
	if l.limit > 0 && len(l.entries) > l.limit {
		l.entries = l.entries[:l.limit]
	}
	return entry.ID
}

// Release closes out the entry when the call ends. Unknown ids are ignored;
// the entry may have been evicted by the cap.
func (l *Log) Release(id string, releasedAt time.Time, durationSeconds int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := range l.entries {
		if l.entries[i].ID == id {
			l.entries[i].ReleasedAt = releasedAt
			l.entries[i].DurationSeconds = durationSeconds
			return
		}
	}
}

// Entries returns a copy of the history, newest first.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Entry(nil), l.entries...)
}
