package model

import (
	"encoding/json"
	"time"
)

// MaxLogEntries caps the number of log entries kept per job. Older entries
// are dropped first.
const MaxLogEntries = 200

// LogEntry is a single line in a job's log trail.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
}

// JobLog is an append-only, bounded list of log entries. It is stored as a
// JSON array in the log_messages column.
type JobLog []LogEntry

// Append adds an entry and trims the log to MaxLogEntries.
func (l *JobLog) Append(now time.Time, level, message string) {
	*l = append(*l, LogEntry{Timestamp: now.UTC(), Level: level, Message: message})
	if over := len(*l) - MaxLogEntries; over > 0 {
		trimmed := make(JobLog, MaxLogEntries)
		copy(trimmed, (*l)[over:])
		*l = trimmed
	}
}

// Tail returns a copy of the last n entries.
func (l JobLog) Tail(n int) []LogEntry {
	if n <= 0 {
		return []LogEntry{}
	}
	start := len(l) - n
	if start < 0 {
		start = 0
	}
	out := make([]LogEntry, len(l)-start)
	copy(out, l[start:])
	return out
}

// MarshalJSON always encodes an empty log as [] rather than null.
func (l JobLog) MarshalJSON() ([]byte, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]LogEntry(l))
}
