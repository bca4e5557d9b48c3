package logging

import (
	"slices"
	"sync"
	"time"
)

// LogEntry is one buffered record. Records logged by a stream run or a
// background job carry its identifier in RunID or JobID.
type LogEntry struct {
	Timestamp  time.Time      `json:"timestamp"`
	Level      string         `json:"level"`
	Module     string         `json:"module"`
	Message    string         `json:"message"`
	RunID      string         `json:"run_id,omitempty"`
	JobID      uint64         `json:"job_id,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// RingBuffer keeps the most recent log entries, overwriting the oldest.
type RingBuffer struct {
	mu      sync.RWMutex
	entries []LogEntry
	next    int
	full    bool
}

// NewRingBuffer creates a buffer holding up to size entries.
func NewRingBuffer(size int) *RingBuffer {
	if size <= 0 {
		size = 1
	}
	return &RingBuffer{entries: make([]LogEntry, size)}
}

// Write stores entry.
func (rb *RingBuffer) Write(entry LogEntry) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.entries[rb.next] = entry
	rb.next++
	if rb.next == len(rb.entries) {
		rb.next = 0
		rb.full = true
	}
}

// Count returns the number of buffered entries.
func (rb *RingBuffer) Count() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.count()
}

func (rb *RingBuffer) count() int {
	if rb.full {
		return len(rb.entries)
	}
	return rb.next
}

// ReadAll returns every buffered entry, oldest first.
func (rb *RingBuffer) ReadAll() []LogEntry {
	return rb.Recent(0, nil)
}

// Recent returns the newest n entries accepted by keep, oldest first.
// n <= 0 means no limit; a nil keep accepts every entry.
func (rb *RingBuffer) Recent(n int, keep func(LogEntry) bool) []LogEntry {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	size := len(rb.entries)
	var out []LogEntry
	for i := range rb.count() {
		if n > 0 && len(out) == n {
			break
		}
		e := rb.entries[(rb.next-1-i+size)%size]
		if keep == nil || keep(e) {
			out = append(out, e)
		}
	}
	slices.Reverse(out)
	return out
}
