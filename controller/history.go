package controller

import (
	"sync"
	"time"

	"github.com/isdmx/jailrun/orchestrator"
)

// DefaultHistorySize is used when NewHistory is given a non-positive size.
const DefaultHistorySize = 50

// Entry is one line of the status log.
type Entry struct {
	Time    time.Time          `json:"time"`
	Phase   orchestrator.Phase `json:"phase"`
	Message string             `json:"message"`
}

// History is a bounded, append-only log of state transitions.
type History struct {
	mu      sync.Mutex
	size    int
	entries []Entry
	now     func() time.Time
}

// NewHistory creates a History keeping the last size entries.
func NewHistory(size int) *History {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &History{size: size, now: time.Now}
}

// Record appends next. It has the orchestrator.Observer signature.
func (h *History) Record(_, next orchestrator.State) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.entries = append(h.entries, Entry{
		Time:    h.now(),
		Phase:   next.Phase(),
		Message: next.String(),
	})
	if over := len(h.entries) - h.size; over > 0 {
		h.entries = append(h.entries[:0:0], h.entries[over:]...)
	}
}

// Entries returns a copy of the log, oldest first.
func (h *History) Entries() []Entry {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Entry, len(h.entries))
	copy(out, h.entries)
	return out
}
